package middleware

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// GzipMiddleware 压缩响应体，excluded 中的路径不压缩（如 /metrics 自行协商编码）.
func GzipMiddleware(excluded ...string) gin.HandlerFunc {
	return gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths(excluded))
}
