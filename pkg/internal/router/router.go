// Package router 管理路由配置，把路径绑定到 handle 提供的处理器.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/hsrelay/pkg/internal/handle"
)

// Handlers 定义由应用层注入的中继处理器. router 包只负责将路径和处理器绑定到 gin 引擎.
type Handlers interface {
	Upload() gin.HandlerFunc
	Analyse() gin.HandlerFunc
}

// Register 将中继路由绑定到传入的路由组，handlers 为 nil 时使用 handle.RelayHandlers.
// 路由对所有方法注册，方法检查由处理器完成：
//
//	ANY /uploadFile -> Upload
//	ANY /analyse    -> Analyse
func Register(group *gin.RouterGroup, handlers Handlers) Handlers {
	if handlers == nil {
		handlers = handle.RelayHandlers{}
	}

	group.Any("/uploadFile", handlers.Upload())
	group.Any("/analyse", handlers.Analyse())

	return handlers
}
