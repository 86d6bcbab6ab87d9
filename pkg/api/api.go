// Package api 汇总对外 HTTP 接口的路由注册.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/hsrelay/pkg/internal/handle"
	"github.com/yeisme/hsrelay/pkg/internal/router"
)

// RegisterGroup 注册中继与健康检查路由到传入的 gin 引擎.
func RegisterGroup(e *gin.Engine) *gin.Engine {
	router.Register(e.Group("/api"), handle.RelayHandlers{})
	router.RegisterHealthCheckRoute(&e.RouterGroup)
	e.NoRoute(handle.NotFound)

	return e
}
