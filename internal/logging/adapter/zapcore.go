// Package adapter plugs a logging.Logger into zap and log/slog so
// applications can use the mail transport as one of their log outputs.
package adapter

import (
	"go.uber.org/zap/zapcore"

	"github.com/Chichichkin/LogMailer/internal/logging"
)

// Core is a zapcore.Core that forwards each entry to a logging.Logger. Use it
// with zapcore.NewTee to mail a subset of an application's logs.
type Core struct {
	zapcore.LevelEnabler
	out    logging.Logger
	fields []zapcore.Field
}

// flusher is implemented by loggers that buffer entries, such as the mail
// transport.
type flusher interface {
	Flush()
}

var _ zapcore.Core = (*Core)(nil)

func NewCore(out logging.Logger, enab zapcore.LevelEnabler) *Core {
	return &Core{LevelEnabler: enab, out: out}
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	if ent.LoggerName != "" {
		enc.Fields["logger"] = ent.LoggerName
	}
	if ent.Caller.Defined {
		enc.Fields["caller"] = ent.Caller.TrimmedPath()
	}
	if ent.Stack != "" {
		enc.Fields["stack"] = ent.Stack
	}

	var meta any
	if len(enc.Fields) > 0 {
		meta = enc.Fields
	}

	var logErr error
	c.out.Log(zapLevel(ent.Level), ent.Message, meta, func(err error, _ bool) {
		logErr = err
	})
	if logErr != nil {
		return logErr
	}

	// zap panics or exits right after writing these levels.
	if ent.Level > zapcore.ErrorLevel {
		c.flush()
	}
	return nil
}

// Sync delivers anything the underlying logger has buffered.
func (c *Core) Sync() error {
	c.flush()
	return nil
}

func (c *Core) flush() {
	if f, ok := c.out.(flusher); ok {
		f.Flush()
	}
}

func zapLevel(l zapcore.Level) string {
	switch l {
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return "error"
	default:
		return l.String()
	}
}
