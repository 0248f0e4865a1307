package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With stores a child logger carrying the given fields in the context.
// Used by the trace middleware so downstream code logs with the trace
// id attached.
func With(ctx context.Context, fields ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, From(ctx).With(fields...))
}

// From returns the logger stored in ctx, falling back to the process
// logger.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return L()
}
