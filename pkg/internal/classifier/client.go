// Package classifier 封装对外部分类服务的 HTTP 调用.
//
// 每次调用最多发送一次请求，受超时与可选熔断器约束，不做重试.
//
// Example:
//
//	client := classifier.New(cfg.Upstream)
//	raw, err := client.Upload(ctx, contentType, body)
//	var se *classifier.StatusError
//	if errors.As(err, &se) {
//		// 上游返回非 2xx
//	}
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/metrics"
	"github.com/yeisme/hsrelay/pkg/tracing"
)

// 端点名称，用于指标与 span.
const (
	EndpointUpload  = "upload"
	EndpointAnalyze = "analyze"
	EndpointPing    = "ping"
)

var (
	// ErrTimeout 上游调用超过配置的超时时间.
	ErrTimeout = errors.New("classifier: request timed out")
	// ErrCircuitOpen 熔断器处于打开状态，请求未发出.
	ErrCircuitOpen = errors.New("classifier: circuit open")
	// ErrInvalidBody 上游 2xx 响应体不是合法 JSON 或超出读取上限.
	ErrInvalidBody = errors.New("classifier: invalid response body")
)

// StatusError 上游返回了非 2xx 状态码.
type StatusError struct {
	Status int
	Body   string // 仅用于日志
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("classifier: upstream returned status %d", e.Status)
}

// Client 分类服务客户端，可并发使用.
type Client struct {
	hc         *http.Client
	baseURL    string
	uploadURL  string
	analyzeURL string
	timeout    time.Duration
	maxBody    int64
	cb         *gobreaker.CircuitBreaker
}

// Option 客户端选项.
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client，测试时使用.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// New 根据上游配置创建客户端.
func New(cfg configs.UpstreamConfig, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConns
	}

	c := &Client{
		// 超时通过 context 控制，不设置 http.Client.Timeout
		hc:         &http.Client{Transport: otelhttp.NewTransport(transport)},
		baseURL:    cfg.BaseURL,
		uploadURL:  cfg.UploadURL(),
		analyzeURL: cfg.AnalyzeURL(),
		timeout:    cfg.Timeout,
		maxBody:    cfg.MaxBodyBytes,
	}

	if c.maxBody <= 0 {
		c.maxBody = configs.DefaultUpstreamMaxBodyBytes
	}

	if cfg.CircuitBreaker.Enabled {
		c.cb = newBreaker(cfg.CircuitBreaker)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL 返回上游基础地址.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upload 把已编码的 multipart 请求体 POST 到上传端点，返回原样的 JSON 响应.
func (c *Client) Upload(ctx context.Context, contentType string, body []byte) (json.RawMessage, error) {
	return c.call(ctx, EndpointUpload, c.uploadURL, contentType, body)
}

type analyzeRequest struct {
	Text string `json:"text"`
}

// Analyze 把文本以 {"text": ...} 发送到分析端点.
func (c *Client) Analyze(ctx context.Context, text string) (json.RawMessage, error) {
	body, err := sonic.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode analyze request: %w", err)
	}

	return c.call(ctx, EndpointAnalyze, c.analyzeURL, "application/json", body)
}

// Ping 以 GET 探测上游基础地址，收到任何 5xx 以下的响应即视为可达.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}

	start := time.Now()

	resp, err := c.hc.Do(req)
	if err != nil {
		observe(EndpointPing, "error", start)
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBody))

	observe(EndpointPing, strconv.Itoa(resp.StatusCode), start)

	if resp.StatusCode >= http.StatusInternalServerError {
		return &StatusError{Status: resp.StatusCode}
	}

	return nil
}

// call 经熔断器执行一次 POST.
func (c *Client) call(ctx context.Context, endpoint, url, contentType string, body []byte) (json.RawMessage, error) {
	ctx, span := tracing.StartSpan(ctx, "classifier."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("classifier.request_bytes", len(body))),
	)

	var (
		raw json.RawMessage
		err error
	)

	if c.cb == nil {
		raw, err = c.post(ctx, endpoint, url, contentType, body)
	} else {
		var out any

		out, err = c.cb.Execute(func() (any, error) {
			return c.post(ctx, endpoint, url, contentType, body)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		} else if out != nil {
			raw, _ = out.(json.RawMessage)
		}
	}

	var se *StatusError
	if errors.As(err, &se) {
		span.SetAttributes(attribute.Int("http.response.status_code", se.Status))
	}

	tracing.EndSpan(span, err)

	return raw, err
}

func (c *Client) post(ctx context.Context, endpoint, url, contentType string, body []byte) (json.RawMessage, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()

	resp, err := c.hc.Do(req)
	if err != nil {
		observe(endpoint, "error", start)
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))

	observe(endpoint, strconv.Itoa(resp.StatusCode), start)

	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(data)}
	}

	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrInvalidBody, c.maxBody)
	}

	if !sonic.Valid(data) {
		return nil, ErrInvalidBody
	}

	return json.RawMessage(data), nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.timeout)
}

// transportError 区分超时、调用方取消与其他网络错误.
func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), context.Canceled) {
		return err
	}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	return err
}

func observe(endpoint, status string, start time.Time) {
	metrics.UpstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
}
