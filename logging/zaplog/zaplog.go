// Package zaplog adapts a zap logger to core.Logger.
package zaplog

import (
	"github.com/Swind/go-owner-executor/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger forwards core.Logger calls to a *zap.Logger.
type Logger struct {
	zl *zap.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps zl. A nil zl yields a no-op logger.
func New(zl *zap.Logger) *Logger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Logger{zl: zl}
}

// NewConsole builds a console logger at level, in the same layout the
// services using this package log with.
func NewConsole(level zapcore.Level) (*Logger, error) {
	config := zap.NewProductionConfig()
	config.Level.SetLevel(level)
	config.Encoding = "console"
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	config.EncoderConfig.ConsoleSeparator = " "

	zl, err := config.Build()
	if err != nil {
		return nil, err
	}
	return New(zl), nil
}

// Zap returns the wrapped logger.
func (l *Logger) Zap() *zap.Logger { return l.zl }

func (l *Logger) Debug(msg string, fields ...core.Field) { l.zl.Debug(msg, convert(fields)...) }
func (l *Logger) Info(msg string, fields ...core.Field)  { l.zl.Info(msg, convert(fields)...) }
func (l *Logger) Warn(msg string, fields ...core.Field)  { l.zl.Warn(msg, convert(fields)...) }
func (l *Logger) Error(msg string, fields ...core.Field) { l.zl.Error(msg, convert(fields)...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.zl.Sync() }

func convert(fields []core.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		case []byte:
			out = append(out, zap.ByteString(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}
