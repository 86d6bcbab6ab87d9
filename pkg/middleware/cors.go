package middleware

import (
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/hsrelay/pkg/configs"
)

// CORSMiddleware CORS中间件，来源取自 server.allow_origins，包含 "*" 时允许全部.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AddAllowHeaders(HeaderRequestID)
	config.AddExposeHeaders(HeaderRequestID)

	if cfg.Debug || len(cfg.AllowOrigins) == 0 || slices.Contains(cfg.AllowOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = cfg.AllowOrigins
	}

	return cors.New(config)
}
