package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

type contextKey string

// CorrelationIDContextKey is the context key used by the correlation middleware.
const CorrelationIDContextKey contextKey = "correlation_id"

// Init initializes the global logger
func Init(environment string) error {
	var err error
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	log, err = config.Build()
	if err != nil {
		return err
	}

	return nil
}

// Get returns the global logger instance
func Get() *zap.Logger {
	if log == nil {
		// Fallback to a basic logger if Init wasn't called
		log, _ = zap.NewDevelopment()
	}
	return log
}

// WithCorrelationID stores a correlation ID on the context for later
// retrieval by WithContext.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDContextKey, id)
}

// WithContext returns a logger annotated with the request's correlation ID,
// if one is present on the context.
func WithContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return Get()
	}
	if id, ok := ctx.Value(CorrelationIDContextKey).(string); ok && id != "" {
		return Get().With(zap.String("correlation_id", id))
	}
	return Get()
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	Get().Fatal(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	if log != nil {
		return log.Sync()
	}
	return nil
}
