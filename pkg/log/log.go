// Package log 提供基于 zerolog 的日志工具，支持 stderr 和文件输出（lumberjack 轮转）.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/hsrelay/pkg/configs"
)

var (
	logger   zerolog.Logger
	initOnce sync.Once
)

type ctxKey struct{}

// Init 初始化全局 logger.
func Init() {
	initOnce.Do(initLogger)
}

func initLogger() {
	cfg := configs.GetConfig()
	logger = New(cfg.Log, cfg.Server.Debug, os.Stderr)
	log.Logger = logger

	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

// New 按配置构造 logger，终端输出写到 out.
// log.format 为 json 时直接输出 JSON 行，便于容器日志采集.
func New(logCfg configs.LogConfig, debug bool, out io.Writer) zerolog.Logger {
	lvl := zerolog.InfoLevel

	if logCfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(logCfg.Level))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid log level %q, defaulting to info\n", logCfg.Level)
		} else {
			lvl = parsed
		}
	}

	zerolog.SetGlobalLevel(lvl)

	writers := []io.Writer{out}
	if logCfg.Format != configs.LogFormatJSON {
		writers[0] = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = out
			w.TimeFormat = time.Kitchen
		})
	}

	// 文件始终写 JSON
	if logCfg.EnableFile {
		writers = append(writers, &lumberjack.Logger{
			Filename:   logCfg.FilePath,
			MaxSize:    logCfg.MaxSize,
			MaxBackups: logCfg.MaxBackups,
			MaxAge:     logCfg.MaxAge,
			Compress:   logCfg.Compress,
		})
	}

	lc := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Str("service", "hsrelay")
	if debug {
		lc = lc.Caller()
	}

	return lc.Logger()
}

// Logger 返回全局 logger，首次使用时按全局配置初始化.
func Logger() *zerolog.Logger {
	initOnce.Do(initLogger)

	return &logger
}

// WithRequestID 将请求 ID 写入 context，供 FromContext 使用.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID 从 context 中读取请求 ID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext 返回附带 request_id 与 trace_id/span_id 的 logger.
func FromContext(ctx context.Context) zerolog.Logger {
	l := *Logger()
	if ctx == nil {
		return l
	}

	lc := l.With()
	if id := RequestID(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		lc = lc.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}

	return lc.Logger()
}

// GinWriter 把 gin.DefaultWriter / DefaultErrorWriter 的文本行转成 zerolog 事件.
type GinWriter struct {
	logger *zerolog.Logger
	level  zerolog.Level
}

// NewGinWriter 以固定级别写入 logger.
func NewGinWriter(logger *zerolog.Logger, level zerolog.Level) *GinWriter {
	return &GinWriter{logger: logger, level: level}
}

func (w *GinWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			w.logger.WithLevel(w.level).Str("component", "gin").Msg(line)
		}
	}

	return len(p), nil
}
