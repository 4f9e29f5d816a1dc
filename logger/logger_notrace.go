//go:build !debug_trace
// +build !debug_trace

// logger_notrace.go provides a no-op trace logging function when the
// debug_trace build tag is not set; per-sample tracing in the resampling
// hot path is too expensive to even check a level for.

package logger

import (
	"context"
)

// Tracef is just a shorthand for Logf(ctx, logger.LevelTrace, ...)
func Tracef(ctx context.Context, format string, args ...any) {}
