// Package internal holds small helpers shared across the project that are
// not part of its public surface.
package internal

import (
	"context"
	"runtime"

	"github.com/tom-doerr/video-upscaling/logger"
)

// SetFinalizerFree installs a GC finalizer that calls Free on the given
// libav-backed object. It is a safety net for error paths; the happy path
// is still expected to Free/Close explicitly.
func SetFinalizerFree[T interface{ Free() }](
	ctx context.Context,
	freer T,
) {
	runtime.SetFinalizer(freer, func(freer T) {
		logger.Debugf(ctx, "freeing %T", freer)
		freer.Free()
	})
}
