package lrucache

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with cache-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithCache adds a cache name field to the logger.
func (l *Logger) WithCache(name string) *Logger {
	if name == "" {
		return l
	}
	return &Logger{
		Logger: l.Logger.With("cache", name),
	}
}

// WithWorker adds a worker id field to the logger.
func (l *Logger) WithWorker(id int) *Logger {
	return &Logger{
		Logger: l.Logger.With("worker", id),
	}
}

// LogLoad logs a provider call.
func (l *Logger) LogLoad(ctx context.Context, key any, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "load failed",
			"key", key,
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "load completed",
			"key", key,
			"duration", duration,
		)
	}
}

// LogEviction logs the eviction of the least recently used entry.
func (l *Logger) LogEviction(ctx context.Context, key any) {
	l.DebugContext(ctx, "entry evicted",
		"key", key,
	)
}

// LogStaleResult logs a load result that was dropped because the key was reset
// or the provider was replaced while the load was running.
func (l *Logger) LogStaleResult(ctx context.Context, key any) {
	l.DebugContext(ctx, "stale load result dropped",
		"key", key,
	)
}

// LogDisposeError logs a value whose Close failed.
func (l *Logger) LogDisposeError(ctx context.Context, err error) {
	l.WarnContext(ctx, "dispose failed",
		"error", err,
	)
}

// LogWorkerPanic logs a panic that escaped a worker task.
func (l *Logger) LogWorkerPanic(ctx context.Context, worker int, key any, recovered any) {
	l.ErrorContext(ctx, "worker recovered from panic",
		"worker", worker,
		"key", key,
		"panic", recovered,
	)
}

// LogClose logs cache shutdown.
func (l *Logger) LogClose(ctx context.Context, resident, pending int) {
	l.InfoContext(ctx, "cache closed",
		"resident", resident,
		"pending", pending,
	)
}
