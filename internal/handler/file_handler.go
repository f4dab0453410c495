package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"homedrive-go/internal/middleware"
	"homedrive-go/internal/service"
	"homedrive-go/pkg/log"
)

// FileHandler 负责目录浏览和文件的增删改查、下载。
type FileHandler struct {
	fileService service.FileService
	linkService service.LinkService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(fileService service.FileService, linkService service.LinkService) *FileHandler {
	return &FileHandler{fileService: fileService, linkService: linkService}
}

// Get 返回单个文件的记录。
func (h *FileHandler) Get(c *gin.Context) {
	f, err := h.fileService.Get(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, f)
}

// Children 列出目录的直接子项。
func (h *FileHandler) Children(c *gin.Context) {
	children, err := h.fileService.Children(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, children)
}

// CreateFolderRequest 定义了新建目录 API 的请求体结构。
type CreateFolderRequest struct {
	Name     string `json:"name" binding:"required"`
	ExistsOK bool   `json:"existsOk"`
}

// CreateFolder 在 :id 目录下新建子目录。
func (h *FileHandler) CreateFolder(c *gin.Context) {
	var req CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Folder name is required.")
		return
	}
	f, err := h.fileService.CreateFolder(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req.Name, req.ExistsOK)
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, f)
}

// RenameRequest 定义了重命名 API 的请求体结构。
type RenameRequest struct {
	Name string `json:"name" binding:"required"`
}

// Rename 重命名文件或目录。
func (h *FileHandler) Rename(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "New name is required.")
		return
	}
	f, err := h.fileService.Rename(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req.Name)
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, f)
}

// Delete 删除文件或目录（递归）。
func (h *FileHandler) Delete(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if err := h.fileService.Delete(c.Request.Context(), user, c.Param("id")); err != nil {
		renderError(c, err)
		return
	}
	log.Infof("[FileHandler] 用户 '%s' 删除了文件 %s", user.Username, c.Param("id"))
	success(c, nil)
}

// MoveRequest 定义了移动 API 的请求体结构。
type MoveRequest struct {
	FileIDs  []string             `json:"fileIds" binding:"required"`
	DestID   string               `json:"destId" binding:"required"`
	Strategy service.MoveStrategy `json:"strategy" binding:"omitempty,oneof=Rename Overwrite"`
}

// Move 把一组文件移动到目标目录，同名目录合并。
func (h *FileHandler) Move(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid move request.")
		return
	}
	if err := h.fileService.Move(c.Request.Context(), middleware.CurrentUser(c), req.FileIDs, req.DestID, req.Strategy); err != nil {
		renderError(c, err)
		return
	}
	success(c, nil)
}

// Download 下载文件，支持 Range。
func (h *FileHandler) Download(c *gin.Context) {
	f, fh, err := h.fileService.Open(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	defer fh.Close()
	serveFile(c, f, fh)
}

// Thumbnail 返回音频文件的封面图。
func (h *FileHandler) Thumbnail(c *gin.Context) {
	data, mediaType, err := h.fileService.Thumbnail(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, mediaType, data)
}

// CreateLink 为文件生成快速访问链接。
func (h *FileHandler) CreateLink(c *gin.Context) {
	link, err := h.linkService.Create(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, link)
}

// PublicDownload 通过快速访问链接下载文件，不需要登录。
func (h *FileHandler) PublicDownload(c *gin.Context) {
	f, fh, err := h.linkService.Open(c.Request.Context(), c.Param("linkId"))
	if err != nil {
		renderError(c, err)
		return
	}
	defer fh.Close()
	serveFile(c, f, fh)
}
