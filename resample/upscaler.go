// upscaler.go applies the kernel sampler across whole rasters.

package resample

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/xaionaro-go/observability"

	"github.com/tom-doerr/video-upscaling/raster"
	"github.com/tom-doerr/video-upscaling/types"
)

// Upscaler resamples rasters by a positive integer factor.
//
// It is stateless apart from its configuration and safe for concurrent use.
type Upscaler struct {
	Kernel Kernel

	// Workers bounds the number of goroutines filling output rows;
	// 0 means runtime.NumCPU().
	Workers int
}

func NewUpscaler() *Upscaler {
	return &Upscaler{Kernel: NewKernel()}
}

// Upscale returns a new raster of dimensions (W·scale, H·scale). The input
// raster is never touched; scale == 1 returns a value-identical copy
// without resampling.
//
// Output rows are filled in parallel: each worker writes a disjoint set of
// rows of the output buffer by index, reading only the immutable source,
// so no locking is involved.
func (u *Upscaler) Upscale(
	ctx context.Context,
	src *raster.Raster,
	scale int,
) (*raster.Raster, error) {
	if scale < 1 {
		return nil, types.Categorizef(types.ErrInvalidInput, "scale factor %d: must be >= 1", scale)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if scale == 1 {
		return src.Clone(), nil
	}

	dst, err := raster.New(src.Width*scale, src.Height*scale, src.Channels)
	if err != nil {
		return nil, err
	}

	workers := u.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > dst.Height {
		workers = dst.Height
	}

	invScale := 1 / float64(scale)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		firstRow := w
		errSlot := &errs[w]
		observability.Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			for oy := firstRow; oy < dst.Height; oy += workers {
				if err := ctx.Err(); err != nil {
					*errSlot = err
					return
				}
				u.upscaleRow(src, dst, oy, invScale)
			}
		})
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return dst, nil
}

func (u *Upscaler) upscaleRow(src, dst *raster.Raster, oy int, invScale float64) {
	sy := float64(oy) * invScale
	for ox := 0; ox < dst.Width; ox++ {
		sx := float64(ox) * invScale
		for ch := 0; ch < src.Channels; ch++ {
			dst.Set(ox, oy, ch, u.Kernel.SampleAt(src, sx, sy, ch))
		}
	}
}
