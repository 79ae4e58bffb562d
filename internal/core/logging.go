package core

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	cycleKey
)

type cycleRef struct {
	pipelineID string
	cycleID    string
}

// WithLogger attaches a slog logger to the context. Attach one already
// carrying pipeline_id and cycle_id so every layer logs them.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the logger attached to ctx, or slog.Default().
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return LoggerFromContextOr(ctx, nil)
}

// LoggerFromContextOr prefers the context logger, then fallback, then
// slog.Default().
func LoggerFromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// WithCycle records which pipeline and cycle the work under ctx belongs to.
func WithCycle(ctx context.Context, pipelineID, cycleID string) context.Context {
	if ctx == nil {
		return ctx
	}
	return context.WithValue(ctx, cycleKey, cycleRef{pipelineID: pipelineID, cycleID: cycleID})
}

// CycleFromContext returns the pipeline and cycle IDs set by WithCycle.
func CycleFromContext(ctx context.Context) (pipelineID, cycleID string) {
	if ctx == nil {
		return "", ""
	}
	ref, _ := ctx.Value(cycleKey).(cycleRef)
	return ref.pipelineID, ref.cycleID
}
