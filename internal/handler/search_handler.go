package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"homedrive-go/internal/middleware"
	"homedrive-go/pkg/log"
)

const defaultSearchLimit = 100

// Search 按文件名分词搜索用户可读卷中的文件。
func (h *FileHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		badRequest(c, "Query is required.")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSearchLimit)))
	if err != nil || limit <= 0 {
		limit = defaultSearchLimit
	}

	results, err := h.fileService.Search(c.Request.Context(), middleware.CurrentUser(c), query, limit)
	if err != nil {
		renderError(c, err)
		return
	}
	log.Infof("[SearchHandler] 搜索 '%s' 返回 %d 条结果", query, len(results))
	success(c, results)
}
