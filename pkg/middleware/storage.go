package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/hsrelay/pkg/context"
	"github.com/yeisme/hsrelay/pkg/internal/storage"
)

// StorageMiddleware 把 Manager 注入请求 context，service 层从中取用依赖.
func StorageMiddleware(manager *storage.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(context.WithStorageManager(c.Request.Context(), manager))
		c.Next()
	}
}
