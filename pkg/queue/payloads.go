package queue

import (
	"encoding/json"
	"time"
)

// EventHeader 事件头.
type EventHeader struct {
	Topic      string    `json:"topic"`
	TraceID    string    `json:"trace_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"` // 入站 X-Request-ID
	Producer   string    `json:"producer,omitempty"`
	OccurredAt time.Time `json:"occurred_at"` // UTC
	Version    string    `json:"version,omitempty"`
}

// Message 信封，T 为主题对应的负载.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// 分类来源.
const (
	SourceUpload = "upload" // /api/uploadFile
	SourceText   = "text"   // /api/analyse
)

// ClassificationPayload 一次分类中继的结果.
// 不包含原始文件或文本内容，只记录其 xxhash 摘要.
type ClassificationPayload struct {
	Source      string `json:"source"`
	FileName    string `json:"file_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	InputHash   string `json:"input_hash,omitempty"`
	// UpstreamStatus 上游状态码，未到达上游时为 0.
	UpstreamStatus int   `json:"upstream_status,omitempty"`
	DurationMS     int64 `json:"duration_ms"`
	// ErrorKind 失败类别，如 parse_failure、upstream_error/timeout.
	ErrorKind string `json:"error_kind,omitempty"`
	// Result 上游原始 JSON，仅成功时存在.
	Result json.RawMessage `json:"result,omitempty"`
}
