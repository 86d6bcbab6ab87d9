package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/yeisme/hsrelay/pkg/cache"
	ctxPkg "github.com/yeisme/hsrelay/pkg/context"
	"github.com/yeisme/hsrelay/pkg/internal/relay"
	"github.com/yeisme/hsrelay/pkg/internal/storage"
	"github.com/yeisme/hsrelay/pkg/log"
	"github.com/yeisme/hsrelay/pkg/queue"
	"github.com/yeisme/hsrelay/pkg/tracing"
)

const (
	endpointAnalyse = "analyse"
	cacheNamespace  = "analyse"
)

// Analyzer 文本分类上游，由 classifier.Client 实现.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (json.RawMessage, error)
}

// AnalyzeService 转发文本分类请求，可选缓存结果.
type AnalyzeService struct {
	analyzer Analyzer
	cache    *cache.Cache // nil 表示不缓存
	ttl      time.Duration
	events   *eventSink
}

// NewAnalyzeService 使用 context 中的 Manager 创建服务.
func NewAnalyzeService(c context.Context) *AnalyzeService {
	return NewAnalyzeServiceFrom(ctxPkg.GetManager(c))
}

// NewAnalyzeServiceFrom 使用给定 Manager 创建服务.
func NewAnalyzeServiceFrom(mgr *storage.Manager) *AnalyzeService {
	return &AnalyzeService{
		analyzer: mgr.GetClassifier(),
		cache:    mgr.GetCache(),
		ttl:      mgr.Config.Cache.TTL,
		events:   newEventSink(mgr.GetMQClient(), mgr.Config.Events),
	}
}

// Analyse 返回上游对 text 的分类结果.
// 启用缓存时相同文本在 TTL 内只请求一次上游，缓存读写失败不影响结果.
func (s *AnalyzeService) Analyse(ctx context.Context, text string) (raw json.RawMessage, err error) {
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "relay.analyse")

	defer func() {
		ev := queue.ClassificationPayload{
			Source:     queue.SourceText,
			Size:       int64(len(text)),
			InputHash:  cache.Digest(text),
			DurationMS: time.Since(start).Milliseconds(),
		}

		if err == nil {
			ev.UpstreamStatus = http.StatusOK
			ev.Result = raw
			record(endpointAnalyse, nil)
		} else {
			rerr := relay.Translate(ctx, err)
			ev.ErrorKind = outcome(rerr)
			ev.UpstreamStatus = rerr.Status
			record(endpointAnalyse, rerr)

			l := log.FromContext(ctx)
			l.Error().Err(err).Msg("text analysis failed")
		}

		s.events.publish(ctx, ev, err)
		tracing.EndSpan(span, err)
	}()

	if s.cache == nil {
		return s.analyzer.Analyze(ctx, text)
	}

	return cache.GetOrSet(ctx, s.cache, s.cache.Key(cacheNamespace, text), func() (json.RawMessage, error) {
		return s.analyzer.Analyze(ctx, text)
	}, s.ttl)
}
