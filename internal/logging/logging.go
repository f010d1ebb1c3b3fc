// Package logging sets up the process-wide slog logger and carries
// correlation ids through contexts.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs a JSON logger writing to w as the slog default.
func Init(w io.Writer, levelStr string) {
	level := ParseLevel(levelStr)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	slog.Debug("logger initialized", "level", level.String())
}

// WithCorrelation attaches a correlation id (subscription or request id) to ctx.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationFromContext extracts the correlation id from context
func CorrelationFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns a logger with the correlation id attached
func FromContext(ctx context.Context) *slog.Logger {
	if id := CorrelationFromContext(ctx); id != "" {
		return slog.Default().With("correlation_id", id)
	}
	return slog.Default()
}
