package service

import (
	"bytes"
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/internal/relay"
	mqc "github.com/yeisme/hsrelay/pkg/internal/storage/mq"
	"github.com/yeisme/hsrelay/pkg/log"
	"github.com/yeisme/hsrelay/pkg/metrics"
	"github.com/yeisme/hsrelay/pkg/queue"
)

// eventSink 发布分类结果事件，mq 为 nil 时不发布.
type eventSink struct {
	mq  *mqc.Client
	cfg configs.EventsConfig
}

func newEventSink(mq *mqc.Client, cfg configs.EventsConfig) *eventSink {
	return &eventSink{mq: mq, cfg: cfg}
}

// publish 根据 err 选择 completed 或 failed 主题，在后台 goroutine 中发布，失败只记录日志.
func (e *eventSink) publish(ctx context.Context, payload queue.ClassificationPayload, err error) {
	if e == nil || e.mq == nil {
		return
	}

	if err == nil && !e.cfg.Completed || err != nil && !e.cfg.Failed {
		return
	}

	opts := []queue.HeaderOption{
		queue.WithProducer(e.cfg.Producer),
		queue.WithRequestID(log.RequestID(ctx)),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		opts = append(opts, queue.WithTraceID(sc.TraceID().String()))
	}

	// Result 可能与缓存共享底层数组.
	payload.Result = bytes.Clone(payload.Result)
	failed := err != nil
	l := log.FromContext(ctx)
	pub := e.mq.Publisher()

	e.mq.Go(func() {
		var perr error
		if failed {
			perr = queue.PublishClassificationFailed(pub, payload, opts...)
		} else {
			perr = queue.PublishClassificationCompleted(pub, payload, opts...)
		}

		if perr != nil {
			l.Warn().Err(perr).Str("source", payload.Source).Msg("publish classification event failed")
		}
	})
}

// outcome 返回指标与事件使用的结果标签，如 ok、upstream_error/timeout.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}

	var re *relay.Error
	if !errors.As(err, &re) {
		return string(relay.KindUnknownFailure)
	}

	if re.SubKind != "" {
		return string(re.Kind) + "/" + re.SubKind
	}

	return string(re.Kind)
}

// record 记录中继结果指标.
func record(endpoint string, err error) {
	metrics.RelayOutcomes.WithLabelValues(endpoint, outcome(err)).Inc()
}
