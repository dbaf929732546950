// Package logger provides structured logging using log/slog. It sets up a
// JSON handler with service-level context and carries the (spec, symbol)
// session key through context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const sessionKey ctxKey = "session"

// Init creates the service logger, writing JSON to stdout, and installs it
// as the slog default.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps "debug", "info", "warn" and "error" to a level. Anything
// else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FormatSession returns the session key "{specID}|{symbol}".
func FormatSession(specID, symbol string) string {
	return specID + "|" + symbol
}

// WithSession stores the session key in the context.
func WithSession(ctx context.Context, specID, symbol string) context.Context {
	return context.WithValue(ctx, sessionKey, FormatSession(specID, symbol))
}

// SessionKey extracts the session key from ctx. Returns "" if not set.
func SessionKey(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey).(string); ok {
		return v
	}
	return ""
}

// LogWithSession returns slog attributes carrying the session key.
// Usage: slog.Warn("msg", logger.LogWithSession(ctx)...)
func LogWithSession(ctx context.Context) []any {
	key := SessionKey(ctx)
	if key == "" {
		return nil
	}
	return []any{slog.String("session", key)}
}
