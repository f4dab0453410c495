package handler

import (
	"github.com/gin-gonic/gin"

	"homedrive-go/internal/middleware"
	"homedrive-go/internal/service"
	"homedrive-go/pkg/log"
)

// UserHandler 负责处理所有与用户会话相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// LoginRequest 定义了用户登录 API 的请求体结构。
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[UserHandler] 登录请求参数无效: %v", err)
		badRequest(c, "Username and password are required.")
		return
	}

	accessToken, refreshToken, err := h.userService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		log.Warnf("[UserHandler] 用户 '%s' 登录失败: %v", req.Username, err)
		renderError(c, err)
		return
	}

	log.Infof("[UserHandler] 用户 '%s' 登录成功", req.Username)
	success(c, gin.H{
		"token":        accessToken,
		"refreshToken": refreshToken,
	})
}

// GetProfile 获取当前登录用户的信息，用户已由 AuthMiddleware 注入到上下文中。
func (h *UserHandler) GetProfile(c *gin.Context) {
	success(c, middleware.CurrentUser(c))
}

// Logout 把当前 token 加入黑名单。
func (h *UserHandler) Logout(c *gin.Context) {
	tokenString := c.GetString(middleware.ContextToken)
	if err := h.userService.Logout(c.Request.Context(), tokenString); err != nil {
		renderError(c, err)
		return
	}
	log.Infof("[UserHandler] 用户 '%s' 已登出", middleware.CurrentUser(c).Username)
	success(c, nil)
}
