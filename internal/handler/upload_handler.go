package handler

import (
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"homedrive-go/internal/middleware"
	"homedrive-go/internal/service"
	"homedrive-go/pkg/log"
)

// UploadHandler 负责处理文件上传和压缩请求。
type UploadHandler struct {
	fileService service.FileService
	zipService  service.ZipService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(fileService service.FileService, zipService service.ZipService) *UploadHandler {
	return &UploadHandler{fileService: fileService, zipService: zipService}
}

// Upload 处理 multipart 上传。表单字段 files 是文件，可选的 paths 与之一一对应，
// 给出包含中间目录的相对路径；缺省时使用文件名。
func (h *UploadHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "Invalid multipart form.")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		badRequest(c, "No file uploaded.")
		return
	}
	paths := form.Value["paths"]

	uploads := make([]service.Upload, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for i, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			renderError(c, err)
			return
		}
		opened = append(opened, f)
		rel := fh.Filename
		if i < len(paths) && paths[i] != "" {
			rel = paths[i]
		}
		uploads = append(uploads, service.Upload{RelPath: rel, Reader: f})
	}

	user := middleware.CurrentUser(c)
	files, err := h.fileService.CreateFiles(c.Request.Context(), user, c.Param("id"), uploads)
	if err != nil {
		log.Warnf("[UploadHandler] 用户 '%s' 上传失败: %v", user.Username, err)
		renderError(c, err)
		return
	}
	log.Infof("[UploadHandler] 用户 '%s' 上传了 %d 个文件", user.Username, len(files))
	success(c, files)
}

// CompressRequest 定义了压缩 API 的请求体结构。
type CompressRequest struct {
	FileIDs  []string `json:"fileIds" binding:"required"`
	ParentID string   `json:"parentId" binding:"required"`
	Name     string   `json:"name" binding:"required"`
}

// Compress 安排一个压缩任务，返回排队中的任务。
func (h *UploadHandler) Compress(c *gin.Context) {
	var req CompressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid compress request.")
		return
	}
	job, err := h.zipService.EnqueueZip(c.Request.Context(), middleware.CurrentUser(c), req.FileIDs, req.ParentID, req.Name)
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, job.ProgressView())
}
