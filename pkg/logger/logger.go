package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the key/value logger used across the service.
// Arguments after msg are alternating keys and values.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Fatal(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a console logger for the given level ("debug", "info", "warn", "error").
func New(level string) Logger {
	return build(level, false)
}

// NewProduction builds a JSON logger.
func NewProduction(level string) Logger {
	return build(level, true)
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger, mostly useful with zaptest/observer.
func FromZap(l *zap.Logger) Logger {
	return &zapLogger{s: l.Sugar()}
}

func build(level string, json bool) Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if json {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), parseLevel(level))
	return &zapLogger{s: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()}
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

func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l *zapLogger) Fatal(msg string, kv ...interface{}) { l.s.Fatalw(msg, kv...) }

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

func (l *zapLogger) Sync() error {
	return l.s.Sync()
}
