package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/hsrelay/pkg/metrics"
)

const unmatchedRoute = "unmatched"

// PrometheusMiddleware Prometheus监控中间件，endpoint 使用路由模板避免高基数.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = unmatchedRoute
		}

		method := c.Request.Method

		metrics.RequestCounter.WithLabelValues(method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}
