// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"homedrive-go/internal/model"
	"homedrive-go/internal/service"
	"homedrive-go/pkg/log"
	"homedrive-go/pkg/token"
)

// 上下文中保存当前用户与 claims 的键。
const (
	ContextUser   = "user"
	ContextClaims = "claims"
	ContextToken  = "token"
)

// TokenFromRequest 从 Authorization 头中提取 token。
// WebSocket 和浏览器直接下载无法设置请求头，此时退回到 ?token= 查询参数。
func TokenFromRequest(c *gin.Context) string {
	const bearerPrefix = "Bearer "
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix)
	}
	return c.Query("token")
}

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会验证 token 的有效性、检查是否已登出，并将完整的 User 对象存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := TokenFromRequest(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing credentials."})
			return
		}

		claims, err := jwtManager.VerifyKind(tokenString, token.KindAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token."})
			return
		}

		// 已登出的 token 在黑名单中，直到自然过期
		revoked, err := userService.IsTokenRevoked(c.Request.Context(), tokenString)
		if err != nil {
			log.Errorf("[AuthMiddleware] 检查 token 黑名单失败: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
			return
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token."})
			return
		}

		// 用户可能已被删除
		user, err := userService.GetProfile(c.Request.Context(), claims.Username)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found."})
			return
		}

		c.Set(ContextUser, user)
		c.Set(ContextClaims, claims)
		c.Set(ContextToken, tokenString)
		c.Next()
	}
}

// CurrentUser 返回 AuthMiddleware 注入的用户，未认证时为 nil。
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
