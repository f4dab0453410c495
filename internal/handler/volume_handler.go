package handler

import (
	"github.com/gin-gonic/gin"

	"homedrive-go/internal/middleware"
	"homedrive-go/internal/model"
	"homedrive-go/internal/service"
	"homedrive-go/pkg/log"
)

// VolumeHandler 负责卷的管理接口。
type VolumeHandler struct {
	volumeService service.VolumeService
}

// NewVolumeHandler 创建一个新的 VolumeHandler 实例。
func NewVolumeHandler(volumeService service.VolumeService) *VolumeHandler {
	return &VolumeHandler{volumeService: volumeService}
}

// List 列出当前用户可见的卷及其权限。
func (h *VolumeHandler) List(c *gin.Context) {
	vols, err := h.volumeService.List(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, vols)
}

// CreateVolumeRequest 定义了挂载卷 API 的请求体结构。
type CreateVolumeRequest struct {
	Name string `json:"name" binding:"required"`
	Path string `json:"path" binding:"required"`
}

// Create 挂载新卷并安排首次索引。
func (h *VolumeHandler) Create(c *gin.Context) {
	var req CreateVolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Volume name and path are required.")
		return
	}
	vol, job, err := h.volumeService.Create(c.Request.Context(), middleware.CurrentUser(c), req.Name, req.Path)
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, gin.H{"volume": vol, "job": job.ProgressView()})
}

// RenameVolumeRequest 定义了卷重命名 API 的请求体结构。
type RenameVolumeRequest struct {
	Name string `json:"name" binding:"required"`
}

// Rename 修改卷名。
func (h *VolumeHandler) Rename(c *gin.Context) {
	var req RenameVolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Volume name is required.")
		return
	}
	vol, err := h.volumeService.Rename(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req.Name)
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, vol)
}

// Delete 卸载卷，主机上的文件不受影响。
func (h *VolumeHandler) Delete(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if err := h.volumeService.Delete(c.Request.Context(), user, c.Param("id")); err != nil {
		renderError(c, err)
		return
	}
	log.Infof("[VolumeHandler] 用户 '%s' 卸载了卷 %s", user.Username, c.Param("id"))
	success(c, nil)
}

// RequestIndex 安排一次重新索引。
func (h *VolumeHandler) RequestIndex(c *gin.Context) {
	job, err := h.volumeService.RequestIndex(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, job.ProgressView())
}

// GrantRequest 定义了授权 API 的请求体结构。Permission 为 0 时撤销授权。
type GrantRequest struct {
	UserID     uint             `json:"userId" binding:"required"`
	Permission model.Permission `json:"permission"`
}

// Grant 设置用户在卷上的权限。
func (h *VolumeHandler) Grant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid grant request.")
		return
	}
	if err := h.volumeService.Grant(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req.UserID, req.Permission); err != nil {
		renderError(c, err)
		return
	}
	success(c, nil)
}
