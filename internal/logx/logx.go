// Package logx wraps go.uber.org/zap for structured logging across the
// capture engine, trimmed from sofatutor-llm-proxy's
// internal/logging/logger.go: the component-tagging and level/format
// setup survive, but the HTTP-request-scoped context propagation helpers
// (WithRequestID, WithClientIP, ...) are dropped since nothing in this
// engine's request model is an inbound HTTP request.
package logx

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names used as the "component" field across the engine's
// packages.
const (
	ComponentSession  = "session"
	ComponentStream   = "stream"
	ComponentPipeline = "bodypipeline"
	ComponentAdapter  = "adapter"
	ComponentCorrelate = "correlate"
)

// Logger is a thin wrapper around *zap.Logger so callers depend on this
// package's narrow surface rather than zap directly.
type Logger struct {
	z *zap.Logger
}

// New builds a Logger at the given level ("debug"|"info"|"warn"|"error")
// and format ("json"|"console"), writing to stdout. Mirrors
// sofatutor-llm-proxy's NewLogger shape, minus the file-output option
// this engine doesn't need (output files are HAR archives, not logs).
func New(level, format string) (*Logger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), lvl)
	return &Logger{z: zap.New(core)}, nil
}

// WithComponent returns a child Logger with a "component" field set.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{z: l.z.With(zap.String("component", component))}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }

// Err wraps an error as a zap field, matching the field-naming style the
// teacher uses for its canonical field constants.
func Err(err error) zap.Field { return zap.Error(err) }

var (
	noopOnce sync.Once
	noop     *Logger
)

// Noop returns a shared Logger that discards everything, for callers
// that were not given an explicit Logger.
func Noop() *Logger {
	noopOnce.Do(func() {
		noop = &Logger{z: zap.NewNop()}
	})
	return noop
}
