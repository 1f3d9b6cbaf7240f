// Package logging provides structured logging configuration using log/slog.
//
// Job IDs are attached via context so every log entry produced while a job
// runs can be correlated to its run artifact.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

var jobKey contextKey

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// Use "json" format in production for machine parsing (ELK, CloudWatch, etc.)
// Use "text" format in development for human readability.
func Setup(level, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// WithJob stores a job ID in the context for FromContext to pick up.
func WithJob(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobKey, jobID)
}

// FromContext returns a logger enriched with the context's job ID, when one
// was attached with WithJob. This keeps every log line for one run
// correlatable with its artifact.
//
// Usage:
//
//	ctx = logging.WithJob(ctx, job.ID())
//	logger := logging.FromContext(ctx)
//	logger.Info("processing document", "input", path)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if jobID, ok := ctx.Value(jobKey).(string); ok && jobID != "" {
		logger = logger.With("job", jobID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// This is useful for creating pass-specific loggers that carry consistent
// context through a multi-step run.
//
// Usage:
//
//	passLogger := logging.WithFields(ctx,
//	    "sheet", sheetName,
//	    "table", tableID,
//	)
//	passLogger.Info("pass started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
