// Package logger wraps zap with the object-per-call logging style used across the harvesters.
package logger

import (
	"os"
	"strings"

	"github.com/Adda-Baaj/coupon-harvester/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Package-level logger to be used across packages after Init.
var S *zap.SugaredLogger

// Logger is the object-logging surface passed into collectors and stores.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

// Init builds the JSON logger from config and returns a Logger bound to it.
func Init(cfg *config.Config) (Logger, error) {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(zapcore.Lock(os.Stdout)),
		parseLevel(cfg.LogLevel),
	)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("app", cfg.AppName), zap.String("env", cfg.Env))
	S = base.Sugar()
	return Zap(), nil
}

func encoderConfig() zapcore.EncoderConfig {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderCfg
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close flushes any buffered loggers.
func Close() error {
	if S == nil {
		return nil
	}
	return S.Sync()
}

// Zap returns a Logger bound to the package-level logger.
func Zap() Logger { return zapLogger{} }

// Component tags every entry of log with a component name when log writes through zap.
// Other loggers are returned unchanged.
func Component(log Logger, name string) Logger {
	if z, ok := log.(zapLogger); ok {
		return zapLogger{fields: append(z.fields[:len(z.fields):len(z.fields)], zap.String("component", name))}
	}
	return Ensure(log)
}

// Ensure substitutes a NopLogger for nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return NopLogger{}
	}
	return log
}

type zapLogger struct {
	fields []zap.Field
}

func (l zapLogger) write(lvl zapcore.Level, msg, key string, obj interface{}) {
	if S == nil {
		return
	}
	S.Desugar().With(l.fields...).Log(lvl, msg, zap.Any(key, obj))
}

func (l zapLogger) InfoObj(msg, key string, obj interface{})  { l.write(zapcore.InfoLevel, msg, key, obj) }
func (l zapLogger) DebugObj(msg, key string, obj interface{}) { l.write(zapcore.DebugLevel, msg, key, obj) }
func (l zapLogger) WarnObj(msg, key string, obj interface{})  { l.write(zapcore.WarnLevel, msg, key, obj) }
func (l zapLogger) ErrorObj(msg, key string, obj interface{}) { l.write(zapcore.ErrorLevel, msg, key, obj) }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) InfoObj(string, string, interface{})  {}
func (NopLogger) DebugObj(string, string, interface{}) {}
func (NopLogger) WarnObj(string, string, interface{})  {}
func (NopLogger) ErrorObj(string, string, interface{}) {}

// Package-level helpers for code that has no Logger at hand, such as main.

func InfoObj(msg, key string, obj interface{})  { zapLogger{}.write(zapcore.InfoLevel, msg, key, obj) }
func DebugObj(msg, key string, obj interface{}) { zapLogger{}.write(zapcore.DebugLevel, msg, key, obj) }
func WarnObj(msg, key string, obj interface{})  { zapLogger{}.write(zapcore.WarnLevel, msg, key, obj) }
func ErrorObj(msg, key string, obj interface{}) { zapLogger{}.write(zapcore.ErrorLevel, msg, key, obj) }
