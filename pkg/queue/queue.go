// Package queue 定义分类结果事件：信封格式、主题与负载，以及 watermill 消息的编解码.
//
// 信封是 JSON 对象 {header, payload}，header 同时镜像到 watermill 元数据，
// 消费者不解包也能按 request_id / trace_id 过滤:
//
//	{
//	  "header": {
//	    "topic": "hs.classification.completed",
//	    "trace_id": "4bf92f3577b34da6a3ce929d0e0e4736",
//	    "request_id": "01J9Z...",
//	    "producer": "hsrelay",
//	    "occurred_at": "2025-01-02T03:04:05.123456Z",
//	    "version": "v1"
//	  },
//	  "payload": {
//	    "source": "upload",
//	    "file_name": "note.txt",
//	    "content_type": "text/plain",
//	    "size": 19,
//	    "input_hash": "9f0c...",
//	    "upstream_status": 200,
//	    "duration_ms": 42,
//	    "result": {"label": "neutral"}
//	  }
//	}
//
// 事件只带输入的 xxhash 摘要，不带上传内容或原文.
package queue

import (
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
)

// PayloadVersionV1 当前信封版本，消费者应忽略未知字段.
const PayloadVersionV1 = "v1"

// 镜像到 watermill 元数据的键.
const (
	MetaTopic      = "topic"
	MetaTraceID    = "trace_id"
	MetaRequestID  = "request_id"
	MetaProducer   = "producer"
	MetaVersion    = "version"
	MetaOccurredAt = "occurred_at"
)

// ErrNoPublisher 事件总线未启用.
var ErrNoPublisher = errors.New("queue: no publisher")

// HeaderOption 修改事件头.
type HeaderOption func(*EventHeader)

// WithTraceID 设置 TraceID.
func WithTraceID(id string) HeaderOption { return func(h *EventHeader) { h.TraceID = id } }

// WithRequestID 设置 RequestID.
func WithRequestID(id string) HeaderOption { return func(h *EventHeader) { h.RequestID = id } }

// WithProducer 设置 Producer.
func WithProducer(p string) HeaderOption { return func(h *EventHeader) { h.Producer = p } }

// WithOccurredAt 覆盖事件时间，统一转为 UTC.
func WithOccurredAt(t time.Time) HeaderOption { return func(h *EventHeader) { h.OccurredAt = t.UTC() } }

// NewEventHeader 创建事件头，OccurredAt 默认为当前 UTC 时间.
func NewEventHeader(topic string, opts ...HeaderOption) EventHeader {
	h := EventHeader{Topic: topic, OccurredAt: time.Now().UTC(), Version: PayloadVersionV1}
	for _, opt := range opts {
		opt(&h)
	}

	return h
}

// Encode 序列化信封.
func Encode[T any](msg Message[T]) ([]byte, error) { return sonic.Marshal(msg) }

// Decode 反序列化信封.
func Decode[T any](b []byte) (Message[T], error) {
	var m Message[T]
	err := sonic.Unmarshal(b, &m)

	return m, err
}

// NewWatermillMessage 构造 watermill 消息，ID 为单调递增的 ULID.
func NewWatermillMessage[T any](topic string, payload T, opts ...HeaderOption) (*message.Message, error) {
	h := NewEventHeader(topic, opts...)

	data, err := Encode(Message[T]{Header: h, Payload: payload})
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(watermill.NewULID(), data)

	for _, kv := range [...][2]string{
		{MetaTopic, h.Topic},
		{MetaTraceID, h.TraceID},
		{MetaRequestID, h.RequestID},
		{MetaProducer, h.Producer},
		{MetaVersion, h.Version},
		{MetaOccurredAt, h.OccurredAt.Format(time.RFC3339Nano)},
	} {
		if kv[1] != "" {
			msg.Metadata.Set(kv[0], kv[1])
		}
	}

	return msg, nil
}

// ParseWatermillMessage 解出泛型信封.
func ParseWatermillMessage[T any](msg *message.Message) (Message[T], error) {
	return Decode[T](msg.Payload)
}
