package mq

import (
	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// NewLoggerAdapter 让 watermill 的内部日志进入 zerolog，并标注 component=events.
func NewLoggerAdapter(l *zerolog.Logger) watermill.LoggerAdapter {
	child := l.With().Str("component", "events").Logger()
	return &zerologAdapter{l: child}
}

type zerologAdapter struct {
	l zerolog.Logger
}

func (z *zerologAdapter) log(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	if len(fields) > 0 {
		ev = ev.Fields(map[string]any(fields))
	}

	ev.Msg(msg)
}

func (z *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	z.log(z.l.Error().Err(err), msg, fields)
}

func (z *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	z.log(z.l.Info(), msg, fields)
}

func (z *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	z.log(z.l.Debug(), msg, fields)
}

func (z *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	z.log(z.l.Trace(), msg, fields)
}

func (z *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zerologAdapter{l: z.l.With().Fields(map[string]any(fields)).Logger()}
}
