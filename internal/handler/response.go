// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"homedrive-go/internal/apperr"
	"homedrive-go/pkg/log"
)

// renderError 把业务错误写成 {"error": msg}。未分类的错误和文件系统错误只记录日志，对外返回通用消息。
func renderError(c *gin.Context, err error) {
	status := apperr.Status(err)
	var ae *apperr.Error
	if status == http.StatusInternalServerError {
		log.Errorf("[Handler] %s %s 处理失败: %v", c.Request.Method, c.Request.URL.Path, err)
	} else if errors.As(err, &ae) && ae.Err != nil {
		log.Warnf("[Handler] %s %s 文件系统操作失败: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

// badRequest 用于请求参数绑定失败。
func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// uintParam 解析路径中的数字 ID，失败时写 404。
func uintParam(c *gin.Context, name, notFound string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": notFound})
		return 0, false
	}
	return uint(id), true
}
