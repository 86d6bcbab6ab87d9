// Package tracing 初始化 OpenTelemetry TracerProvider，并提供流水线各阶段使用的 span 辅助函数.
//
// 导出器由 tracing.exporter_type 选择：otlp-http、otlp-grpc 或 zipkin.
// 未启用时仍安装 W3C 传播器，出站请求会透传入站的 traceparent.
//
//	if err := tracing.InitTracer(ctx, cfg.Tracing); err != nil {
//		return err
//	}
//	defer tracing.ShutdownTracer(ctx)
//
//	ctx, span := tracing.StartSpan(ctx, "relay.forward")
//	defer func() { tracing.EndSpan(span, err) }()
package tracing

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/hsrelay/pkg/configs"
)

// TracerName 本服务使用的 tracer 名称.
const TracerName = "github.com/yeisme/hsrelay"

type exporterFactory func(ctx context.Context, cfg configs.TracingConfig) (sdktrace.SpanExporter, error)

var exporters = map[string]exporterFactory{
	"otlp-http": func(ctx context.Context, cfg configs.TracingConfig) (sdktrace.SpanExporter, error) {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	},
	"otlp-grpc": func(ctx context.Context, cfg configs.TracingConfig) (sdktrace.SpanExporter, error) {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}

		return otlptracegrpc.New(ctx, opts...)
	},
	"zipkin": func(_ context.Context, cfg configs.TracingConfig) (sdktrace.SpanExporter, error) {
		return zipkin.New(cfg.Endpoint)
	},
}

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

func init() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}

// InitTracer 按配置安装全局 TracerProvider，未启用时什么也不做.
func InitTracer(ctx context.Context, cfg configs.TracingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	newExporter, ok := exporters[cfg.ExporterType]
	if !ok {
		return fmt.Errorf("unsupported trace exporter %q", cfg.ExporterType)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return err
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create %s exporter: %w", cfg.ExporterType, err)
	}

	tp := NewProvider(exp, res, cfg)

	mu.Lock()
	provider = tp
	mu.Unlock()

	otel.SetTracerProvider(tp)

	return nil
}

// NewProvider 用给定导出器构建 TracerProvider，批处理与采样参数取自配置.
func NewProvider(exp sdktrace.SpanExporter, res *resource.Resource, cfg configs.TracingConfig) *sdktrace.TracerProvider {
	var batchOpts []sdktrace.BatchSpanProcessorOption

	if cfg.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}

	if cfg.MaxBatchSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxExportBatchSize(cfg.MaxBatchSize))
	}

	if cfg.MaxQueueSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxQueueSize(cfg.MaxQueueSize))
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exp, batchOpts...),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}
	if res != nil {
		opts = append(opts, sdktrace.WithResource(res))
	}

	return sdktrace.NewTracerProvider(opts...)
}

func newResource(ctx context.Context, cfg configs.TracingConfig) (*resource.Resource, error) {
	attrs := make([]attribute.KeyValue, 0, len(cfg.ResourceLabels)+2)
	for k, v := range cfg.ResourceLabels {
		attrs = append(attrs, attribute.String(k, v))
	}

	// 显式的服务名与版本覆盖同名标签
	attrs = append(attrs,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithProcessPID(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	return res, nil
}

// ShutdownTracer 刷新并关闭已安装的 TracerProvider.
func ShutdownTracer(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()

	if tp == nil {
		return nil
	}

	return tp.Shutdown(ctx)
}

// StartSpan 在全局 provider 上开启一个 span.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName, opts...)
}

// EndSpan 根据 err 设置状态并结束 span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
