// Package handle 提供 HTTP 请求处理器，把 gin 请求交给 service 层并写出响应.
package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/hsrelay/pkg/internal/types"
)

// NotFound 未注册路由.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "Not found"})
}

// RelayHandlers 中继接口处理器集合，由 router.Register 绑定.
type RelayHandlers struct{}

// Upload 返回文件上传处理器.
func (RelayHandlers) Upload() gin.HandlerFunc { return UploadFile }

// Analyse 返回文本分析处理器.
func (RelayHandlers) Analyse() gin.HandlerFunc { return Analyse }
