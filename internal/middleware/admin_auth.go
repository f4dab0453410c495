package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware 检查用户是否为超级用户。
// 此中间件必须在 AuthMiddleware 之后使用。
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			// AuthMiddleware 未能注入用户，属于路由配置错误
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
			return
		}
		if !user.IsSuperuser() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "No permission."})
			return
		}
		c.Next()
	}
}
