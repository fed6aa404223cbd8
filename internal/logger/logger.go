package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging surface used across packages. Each helper
// logs the given object as a single field named key.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

// zapLogger implements Logger on top of a zap core.
type zapLogger struct {
	l *zap.Logger
}

// Package-level logger available after Init for code without an injected Logger.
var std Logger = &NopLogger{}

// Init builds a JSON zap logger at the given level and installs it as the
// package default.
func Init(level string) (Logger, error) {
	var lvl zapcore.Level
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info":
		lvl = zapcore.InfoLevel
	case "warn", "warning":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(zapcore.Lock(os.Stdout)),
		lvl,
	)

	log := &zapLogger{l: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))}
	std = log
	return log, nil
}

// Close flushes any buffered log entries.
func Close() error {
	if zl, ok := std.(*zapLogger); ok {
		return zl.l.Sync()
	}
	return nil
}

func (z *zapLogger) InfoObj(msg, key string, obj interface{}) {
	z.l.Info(msg, zap.Any(key, obj))
}

func (z *zapLogger) DebugObj(msg, key string, obj interface{}) {
	z.l.Debug(msg, zap.Any(key, obj))
}

func (z *zapLogger) WarnObj(msg, key string, obj interface{}) {
	z.l.Warn(msg, zap.Any(key, obj))
}

func (z *zapLogger) ErrorObj(msg, key string, obj interface{}) {
	z.l.Error(msg, zap.Any(key, obj))
}

// Package-level helpers delegating to the installed logger.

func InfoObj(msg, key string, obj interface{})  { std.InfoObj(msg, key, obj) }
func DebugObj(msg, key string, obj interface{}) { std.DebugObj(msg, key, obj) }
func WarnObj(msg, key string, obj interface{})  { std.WarnObj(msg, key, obj) }
func ErrorObj(msg, key string, obj interface{}) { std.ErrorObj(msg, key, obj) }

// NopLogger discards everything; useful in tests and as a nil-safe default.
type NopLogger struct{}

func (*NopLogger) InfoObj(string, string, interface{})  {}
func (*NopLogger) DebugObj(string, string, interface{}) {}
func (*NopLogger) WarnObj(string, string, interface{})  {}
func (*NopLogger) ErrorObj(string, string, interface{}) {}
