// Package media is the collaborator layer over libav (via go-astiav): it
// probes containers, demuxes and decodes video into rasters, and encodes
// upscaled rasters back into a container with audio passed through
// unmodified.
//
// The resampling engine never sees libav; everything crossing the boundary
// is converted to raster.Raster / frame.Frame values.
package media

import (
	"context"

	"github.com/tom-doerr/video-upscaling/internal"
)

func setFinalizerFree[T interface{ Free() }](
	ctx context.Context,
	freer T,
) {
	internal.SetFinalizerFree(ctx, freer)
}
