package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/hsrelay/pkg/context"
	"github.com/yeisme/hsrelay/pkg/internal/types"
)

const (
	statusOK          = "ok"
	statusUnavailable = "unavailable"
)

// Health 进程存活检查，不访问上游.
func Health(c *gin.Context) {
	resp := types.HealthResponse{Status: statusOK}
	if cl := ctxPkg.GetClassifier(c.Request.Context()); cl != nil {
		resp.Upstream = cl.BaseURL()
	}

	c.JSON(http.StatusOK, resp)
}

// UpstreamHealth 探测分类服务是否可达.
func UpstreamHealth(c *gin.Context) {
	cl := ctxPkg.GetClassifier(c.Request.Context())
	if cl == nil {
		c.JSON(http.StatusServiceUnavailable, types.HealthResponse{Status: statusUnavailable, Error: "classifier not initialized"})
		return
	}

	if err := cl.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, types.HealthResponse{Status: statusUnavailable, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, types.HealthResponse{Status: statusOK})
}
