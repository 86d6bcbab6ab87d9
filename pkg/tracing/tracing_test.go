package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yeisme/hsrelay/pkg/configs"
)

func TestInitTracerDisabled(t *testing.T) {
	require.NoError(t, InitTracer(context.Background(), configs.TracingConfig{Enabled: false}))
	require.NoError(t, ShutdownTracer(context.Background()))
}

func TestInitTracerUnknownExporter(t *testing.T) {
	err := InitTracer(context.Background(), configs.TracingConfig{Enabled: true, ExporterType: "jaeger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jaeger")
}

func TestEndSpanRecordsError(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))

	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tracer := tp.Tracer(TracerName)

	_, ok := tracer.Start(context.Background(), "relay.ok")
	EndSpan(ok, nil)

	_, failed := tracer.Start(context.Background(), "relay.forward")
	EndSpan(failed, errors.New("upstream returned 503"))

	spans := exp.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "relay.ok", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	assert.Equal(t, "relay.forward", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "upstream returned 503", spans[1].Status.Description)
	require.Len(t, spans[1].Events, 1)
	assert.Equal(t, "exception", spans[1].Events[0].Name)
}

func TestNewProviderSamplesByRatio(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := NewProvider(exp, nil, configs.TracingConfig{SampleRate: 0})

	_, span := tp.Tracer(TracerName).Start(context.Background(), "dropped")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Empty(t, exp.GetSpans())
}
