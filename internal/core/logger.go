package core

import "go.uber.org/zap"

// Logger is the structured logging seam used throughout this module,
// so every package logs the same way
// (`logger.Error("message", core.ErrorLogField("error", err))`)
// regardless of which concrete sink is wired up.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is a single structured logging key/value pair.
type Field = zap.Field

// ErrorLogField wraps an error as a named structured field.
func ErrorLogField(key string, err error) Field {
	return zap.NamedError(key, err)
}

// StringField wraps a string as a named structured field.
func StringField(key, value string) Field {
	return zap.String(key, value)
}

// IntField wraps an int as a named structured field.
func IntField(key string, value int) Field {
	return zap.Int(key, value)
}

// zapLogger adapts *zap.Logger to the Logger interface.
type zapLogger struct {
	l *zap.Logger
}

// NewZapLogger builds a Logger backed by zap, using a human-readable
// console encoder in development and JSON in production.
func NewZapLogger(environment string, level string) (Logger, error) {
	var cfg zap.Config
	if environment == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if level != "" {
		lvl := zap.NewAtomicLevel()
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l: l}, nil
}

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, fields...) }

// NopLogger discards everything; used as a safe default in tests that
// don't care about log output.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
