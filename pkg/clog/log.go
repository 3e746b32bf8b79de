package clog

import (
	"context"
	"log/slog"
)

func logAt(ctx context.Context, level Level, msg string) {
	switch level {
	case LevelDebug:
		slog.DebugContext(ctx, msg)
	case LevelInfo:
		slog.InfoContext(ctx, msg)
	case LevelWarn:
		slog.WarnContext(ctx, msg)
	default:
		slog.ErrorContext(ctx, msg)
	}
}
