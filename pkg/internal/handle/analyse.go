package handle

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/hsrelay/pkg/internal/service"
	"github.com/yeisme/hsrelay/pkg/internal/types"
	"github.com/yeisme/hsrelay/pkg/log"
	"github.com/yeisme/hsrelay/pkg/rule"
)

const (
	msgAnalyseMethod = "Method Not Allowed"
	msgAnalyseNoText = "No text provided"
	msgAnalyseFailed = "Error in calling the API: "
)

// Analyse 转发 {"text": ...} 到分类服务，响应统一为 {"text": ...}.
func Analyse(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusMethodNotAllowed, types.AnalyseResponse{Text: msgAnalyseMethod})
		return
	}

	ctx := c.Request.Context()
	l := log.FromContext(ctx)

	var req types.AnalyseRequest
	if err := sonic.ConfigDefault.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		l.Debug().Err(err).Msg("invalid analyse body")
		c.JSON(http.StatusBadRequest, types.AnalyseResponse{Text: msgAnalyseNoText})

		return
	}

	if err := rule.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.AnalyseResponse{Text: msgAnalyseNoText})
		return
	}

	raw, err := service.NewAnalyzeService(ctx).Analyse(ctx, req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.AnalyseResponse{Text: msgAnalyseFailed + err.Error()})
		return
	}

	c.JSON(http.StatusOK, types.AnalyseResponse{Text: string(raw)})
}
