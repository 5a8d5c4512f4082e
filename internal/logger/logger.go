package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Structured JSON logging backed by zap.
// Call sites pass a flat field map so handlers stay free of zap types.

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// Init builds the process logger. development switches to the console encoder.
func Init(level string, development bool) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// SetLogger replaces the process logger.
func SetLogger(l *zap.Logger) {
	current.Store(l.With(zap.String("service", "waterwise")))
}

// Sync flushes buffered entries.
func Sync() {
	_ = current.Load().Sync()
}

func Info(message string, fields map[string]interface{}) {
	current.Load().Info(message, toZap(fields)...)
}

func Warn(message string, fields map[string]interface{}) {
	current.Load().Warn(message, toZap(fields)...)
}

func Error(message string, fields map[string]interface{}) {
	current.Load().Error(message, toZap(fields)...)
}

// Fatal logs and exits the process.
func Fatal(message string, fields map[string]interface{}) {
	current.Load().Fatal(message, toZap(fields)...)
}

func toZap(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
