package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/yeisme/hsrelay/pkg/internal/classifier"
	"github.com/yeisme/hsrelay/pkg/log"
)

// 出站 multipart 的默认值.
const (
	DefaultFilename    = "file"
	DefaultContentType = "application/octet-stream"
)

// Uploader 上游上传端点.
type Uploader interface {
	Upload(ctx context.Context, contentType string, body []byte) (json.RawMessage, error)
}

// Result 上游成功响应，Body 原样透传.
type Result struct {
	Body json.RawMessage
	// Status 客户端响应码，上游任意 2xx 都固定返回 200.
	Status int
}

// Forwarder 把提取出的内容重新编码并转发到分类服务.
type Forwarder struct {
	client Uploader
	field  string
}

// NewForwarder 创建 Forwarder，field 为出站文件字段名.
func NewForwarder(client Uploader, field string) *Forwarder {
	return &Forwarder{client: client, field: field}
}

// Forward 发送一次上游请求并把失败翻译为 *Error.
func (f *Forwarder) Forward(ctx context.Context, p *ExtractedPayload) (*Result, error) {
	body, contentType, err := EncodeMultipart(f.field, p)
	if err != nil {
		return nil, newError(KindUnknownFailure, "forward.encode", err)
	}

	raw, err := f.client.Upload(ctx, contentType, body)
	if err != nil {
		return nil, Translate(ctx, err)
	}

	return &Result{Body: raw, Status: http.StatusOK}, nil
}

// Translate 把分类服务客户端的错误映射到中继错误类别.
func Translate(ctx context.Context, err error) *Error {
	var se *classifier.StatusError
	if errors.As(err, &se) {
		l := log.FromContext(ctx)
		l.Error().
			Int("status", se.Status).
			Str("body", se.Body).
			Msg("classification service returned an error")

		e := newError(KindUpstreamError, "forward.upstream", err)
		e.Status = se.Status

		return e
	}

	switch {
	case errors.Is(err, classifier.ErrTimeout):
		return newError(KindUpstreamError, "forward.upstream", err).withSub(SubTimeout)
	case errors.Is(err, classifier.ErrCircuitOpen):
		return newError(KindUpstreamError, "forward.upstream", err).withSub(SubCircuitOpen)
	case errors.Is(err, classifier.ErrInvalidBody):
		return newError(KindUpstreamError, "forward.upstream", err).withSub(SubInvalidBody)
	case errors.Is(err, context.Canceled):
		return newError(KindUnknownFailure, "forward.upstream", err).withSub(SubCanceled)
	default:
		return newError(KindUnknownFailure, "forward.upstream", err)
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// EncodeMultipart 生成只含一个文件字段的 multipart/form-data 请求体.
func EncodeMultipart(field string, p *ExtractedPayload) ([]byte, string, error) {
	filename := p.Filename
	if filename == "" {
		filename = DefaultFilename
	}

	contentType := p.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create part: %w", err)
	}

	if _, err := part.Write(p.Data); err != nil {
		return nil, "", fmt.Errorf("write part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}
