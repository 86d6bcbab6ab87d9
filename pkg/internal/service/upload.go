package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/yeisme/hsrelay/pkg/cache"
	ctxPkg "github.com/yeisme/hsrelay/pkg/context"
	"github.com/yeisme/hsrelay/pkg/internal/relay"
	"github.com/yeisme/hsrelay/pkg/internal/storage"
	"github.com/yeisme/hsrelay/pkg/internal/storage/spool"
	"github.com/yeisme/hsrelay/pkg/log"
	"github.com/yeisme/hsrelay/pkg/metrics"
	"github.com/yeisme/hsrelay/pkg/queue"
	"github.com/yeisme/hsrelay/pkg/tracing"
)

const endpointUpload = "upload"

// UploadService 把一次上传请求依次交给 Intake、Extractor 与 Forwarder.
type UploadService struct {
	spool     *spool.Store
	intake    *relay.Intake
	extractor *relay.Extractor
	forwarder *relay.Forwarder
	events    *eventSink
}

// NewUploadService 使用 context 中的 Manager 创建服务.
func NewUploadService(c context.Context) *UploadService {
	return NewUploadServiceFrom(ctxPkg.GetManager(c))
}

// NewUploadServiceFrom 使用给定 Manager 创建服务.
func NewUploadServiceFrom(mgr *storage.Manager) *UploadService {
	cfg := mgr.Config

	return &UploadService{
		spool:     mgr.GetSpool(),
		intake:    relay.NewIntake(cfg.Upload),
		extractor: relay.NewExtractor(relay.DefaultChunkSize),
		forwarder: relay.NewForwarder(mgr.GetClassifier(), cfg.Upstream.FileField),
		events:    newEventSink(mgr.GetMQClient(), cfg.Events),
	}
}

// Relay 处理一次上传并返回上游响应.
// 本次请求创建的临时文件在返回前全部删除，删除失败只记录日志.
func (s *UploadService) Relay(ctx context.Context, w http.ResponseWriter, r *http.Request) (res *relay.Result, err error) {
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "relay.upload")
	l := log.FromContext(ctx)

	scope := s.spool.Scope()
	defer func() {
		if cerr := scope.Cleanup(); cerr != nil {
			l.Warn().Err(cerr).Msg("spool cleanup failed")
		}
	}()

	ev := queue.ClassificationPayload{Source: queue.SourceUpload}

	defer func() {
		ev.DurationMS = time.Since(start).Milliseconds()
		if err != nil {
			ev.ErrorKind = outcome(err)

			var re *relay.Error
			if errors.As(err, &re) {
				ev.UpstreamStatus = re.Status
			}

			logFailure(ctx, err)
		}

		record(endpointUpload, err)
		s.events.publish(ctx, ev, err)
		tracing.EndSpan(span, err)
	}()

	file, err := s.accept(ctx, w, r, scope)
	if err != nil {
		return nil, err
	}

	ev.FileName = file.Filename
	ev.ContentType = file.ContentType
	ev.Size = file.Size
	metrics.UploadBytes.Observe(float64(file.Size))

	payload, err := s.extract(ctx, file)
	if err != nil {
		return nil, err
	}

	ev.InputHash = cache.DigestBytes(payload.Data)

	res, err = s.forward(ctx, payload)
	if err != nil {
		return nil, err
	}

	ev.UpstreamStatus = res.Status
	ev.Result = res.Body

	l.Info().
		Str("file", file.Filename).
		Str("content_type", file.ContentType).
		Int64("size", file.Size).
		Dur("elapsed", time.Since(start)).
		Msg("upload relayed")

	return res, nil
}

func (s *UploadService) accept(ctx context.Context, w http.ResponseWriter, r *http.Request,
	scope *spool.Scope,
) (*relay.AcceptedFile, error) {
	ctx, span := tracing.StartSpan(ctx, "relay.intake")
	file, err := s.intake.Accept(ctx, w, r, scope)
	tracing.EndSpan(span, err)

	return file, err
}

func (s *UploadService) extract(ctx context.Context, file *relay.AcceptedFile) (*relay.ExtractedPayload, error) {
	ctx, span := tracing.StartSpan(ctx, "relay.extract")
	payload, err := s.extractor.Extract(ctx, file)
	tracing.EndSpan(span, err)

	return payload, err
}

func (s *UploadService) forward(ctx context.Context, payload *relay.ExtractedPayload) (*relay.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "relay.forward")
	res, err := s.forwarder.Forward(ctx, payload)
	tracing.EndSpan(span, err)

	return res, err
}

// logFailure 按错误类别选择日志级别，客户端错误记为 debug.
func logFailure(ctx context.Context, err error) {
	l := log.FromContext(ctx)

	switch relay.KindOf(err) {
	case relay.KindMethodNotAllowed, relay.KindNoFileProvided:
		l.Debug().Err(err).Msg("upload rejected")
	case relay.KindParseFailure:
		l.Warn().Err(err).Msg("upload rejected")
	default:
		if relay.SubKindOf(err) == relay.SubCanceled {
			l.Info().Err(err).Msg("upload canceled by client")
			return
		}

		l.Error().Err(err).Msg("upload relay failed")
	}
}
