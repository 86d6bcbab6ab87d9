// Package middleware 提供 gin 中间件：请求 ID、日志、CORS、压缩、追踪、指标、限流与依赖注入.
package middleware

import (
	crand "crypto/rand"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid"

	"github.com/yeisme/hsrelay/pkg/log"
)

const (
	// HeaderRequestID 请求 ID 头.
	HeaderRequestID = "X-Request-ID"
	// ContextKeyRequestID gin.Context 中保存请求 ID 的键.
	ContextKeyRequestID = "request_id"

	maxRequestIDLen = 128
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(crand.Reader, 0)
)

// NewRequestID 生成一个 ULID.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// RequestIDMiddleware 透传或生成 X-Request-ID，并写入请求 context 与响应头.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = NewRequestID()
		}

		c.Set(ContextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(log.WithRequestID(c.Request.Context(), id))

		c.Next()
	}
}
