package handle

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/hsrelay/pkg/internal/relay"
	"github.com/yeisme/hsrelay/pkg/internal/service"
	"github.com/yeisme/hsrelay/pkg/internal/types"
)

const contentTypeJSON = "application/json"

// UploadFile 接收 multipart 上传并转发给分类服务.
// 成功时原样返回上游 JSON，失败时只返回固定文案.
func UploadFile(c *gin.Context) {
	ctx := c.Request.Context()

	res, err := service.NewUploadService(ctx).Relay(ctx, c.Writer, c.Request)
	if err != nil {
		c.JSON(relay.HTTPStatus(err), types.ErrorResponse{Error: relay.PublicMessage(err)})
		return
	}

	c.Data(res.Status, contentTypeJSON, res.Body)
}
