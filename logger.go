package metastore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with metastore-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// LogMutation logs a catalog mutation. written is false when the mutation
// left the manifest unchanged and nothing was persisted.
func (l *Logger) LogMutation(ctx context.Context, op, indexID string, version uint64, attempts int, written bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"index_id", indexID,
			"attempts", attempts,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, op+" completed",
		"index_id", indexID,
		"version", version,
		"attempts", attempts,
		"written", written,
	)
}

// LogConflict logs a conditional write lost to a concurrent writer.
func (l *Logger) LogConflict(ctx context.Context, indexID string, attempt int) {
	l.DebugContext(ctx, "version conflict, retrying",
		"index_id", indexID,
		"attempt", attempt,
	)
}

// LogIndexSkipped logs an index that vanished or failed while listing.
func (l *Logger) LogIndexSkipped(ctx context.Context, indexID string, err error) {
	l.WarnContext(ctx, "skipping index",
		"index_id", indexID,
		"error", err,
	)
}

// LogGCCycle logs the outcome of a garbage collection cycle.
func (l *Logger) LogGCCycle(ctx context.Context, indexes, candidates, deleted, failed int, duration time.Duration, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "gc cycle failed",
			"indexes", indexes,
			"deleted", deleted,
			"failed", failed,
			"duration", duration,
			"error", err,
		)
	case failed > 0:
		l.WarnContext(ctx, "gc cycle completed with failures",
			"indexes", indexes,
			"candidates", candidates,
			"deleted", deleted,
			"failed", failed,
			"duration", duration,
		)
	default:
		l.InfoContext(ctx, "gc cycle completed",
			"indexes", indexes,
			"candidates", candidates,
			"deleted", deleted,
			"duration", duration,
		)
	}
}

// LogSplitDeleteFailed logs a split file the garbage collector could not remove.
func (l *Logger) LogSplitDeleteFailed(ctx context.Context, indexID, splitID, fileName string, err error) {
	l.WarnContext(ctx, "split file deletion failed",
		"index_id", indexID,
		"split_id", splitID,
		"file", fileName,
		"error", err,
	)
}
