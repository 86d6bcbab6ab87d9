package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/hsrelay/pkg/configs"
)

func decodeLine(t *testing.T, b []byte) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, sonic.Unmarshal(bytes.TrimSpace(b), &m))

	return m
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer

	l := New(configs.LogConfig{Level: "debug", Format: configs.LogFormatJSON}, false, &buf)
	l.Debug().Str("file", "note.txt").Msg("upload relayed")

	m := decodeLine(t, buf.Bytes())
	assert.Equal(t, "debug", m["level"])
	assert.Equal(t, "upload relayed", m["message"])
	assert.Equal(t, "note.txt", m["file"])
	assert.Equal(t, "hsrelay", m["service"])
}

func TestNewLevelFallback(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer

	l := New(configs.LogConfig{Level: "verbose", Format: configs.LogFormatJSON}, false, &buf)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	l.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}

func TestFromContextAddsIDs(t *testing.T) {
	var buf bytes.Buffer

	Logger()

	prev := logger
	logger = New(configs.LogConfig{Level: "info", Format: configs.LogFormatJSON}, false, &buf)

	t.Cleanup(func() { logger = prev })

	tid, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)

	sid, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = WithRequestID(ctx, "01HZX")

	assert.Equal(t, "01HZX", RequestID(ctx))

	l := FromContext(ctx)
	l.Info().Msg("hello")

	m := decodeLine(t, buf.Bytes())
	assert.Equal(t, "01HZX", m["request_id"])
	assert.Equal(t, tid.String(), m["trace_id"])
	assert.Equal(t, sid.String(), m["span_id"])
}

func TestGinWriterSplitsLines(t *testing.T) {
	var buf bytes.Buffer

	l := New(configs.LogConfig{Level: "info", Format: configs.LogFormatJSON}, false, &buf)
	w := NewGinWriter(&l, zerolog.WarnLevel)

	n, err := w.Write([]byte("[GIN-debug] one\n\n[GIN-debug] two\n"))
	require.NoError(t, err)
	assert.Equal(t, 33, n)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	first := decodeLine(t, lines[0])
	assert.Equal(t, "warn", first["level"])
	assert.Equal(t, "gin", first["component"])
	assert.Equal(t, "[GIN-debug] one", first["message"])
}
