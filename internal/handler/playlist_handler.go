package handler

import (
	"github.com/gin-gonic/gin"

	"homedrive-go/internal/middleware"
	"homedrive-go/internal/service"
)

const playlistNotFound = "Playlist not found."

// PlaylistHandler 处理播放列表相关的 API 请求。
type PlaylistHandler struct {
	service service.PlaylistService
}

// NewPlaylistHandler 创建一个新的 PlaylistHandler。
func NewPlaylistHandler(service service.PlaylistService) *PlaylistHandler {
	return &PlaylistHandler{service: service}
}

func (h *PlaylistHandler) List(c *gin.Context) {
	lists, err := h.service.List(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, lists)
}

// CreatePlaylistRequest 定义了新建播放列表 API 的请求体结构。
type CreatePlaylistRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *PlaylistHandler) Create(c *gin.Context) {
	var req CreatePlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Playlist name cannot be empty.")
		return
	}
	p, err := h.service.Create(c.Request.Context(), middleware.CurrentUser(c), req.Name)
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, p)
}

func (h *PlaylistHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id", playlistNotFound)
	if !ok {
		return
	}
	d, err := h.service.Get(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, d)
}

func (h *PlaylistHandler) Delete(c *gin.Context) {
	id, ok := uintParam(c, "id", playlistNotFound)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		renderError(c, err)
		return
	}
	success(c, nil)
}

// AddFileRequest 定义了向播放列表追加文件 API 的请求体结构。
type AddFileRequest struct {
	FileID string `json:"fileId" binding:"required"`
}

func (h *PlaylistHandler) AddFile(c *gin.Context) {
	id, ok := uintParam(c, "id", playlistNotFound)
	if !ok {
		return
	}
	var req AddFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "fileId is required.")
		return
	}
	entry, err := h.service.AddFile(c.Request.Context(), middleware.CurrentUser(c), id, req.FileID)
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, entry)
}

func (h *PlaylistHandler) RemoveFile(c *gin.Context) {
	id, ok := uintParam(c, "id", playlistNotFound)
	if !ok {
		return
	}
	if err := h.service.RemoveFile(c.Request.Context(), middleware.CurrentUser(c), id, c.Param("fileId")); err != nil {
		renderError(c, err)
		return
	}
	success(c, nil)
}
