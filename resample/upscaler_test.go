package resample

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tom-doerr/video-upscaling/raster"
	"github.com/tom-doerr/video-upscaling/types"
)

func checkerboard2x2(t *testing.T) *raster.Raster {
	t.Helper()
	r, err := raster.New(2, 2, 3)
	require.NoError(t, err)
	white := []struct{ x, y int }{{1, 0}, {0, 1}}
	for _, p := range white {
		for ch := 0; ch < 3; ch++ {
			r.Set(p.x, p.y, ch, 255)
		}
	}
	return r
}

func TestUpscaleDimensions(t *testing.T) {
	u := NewUpscaler()
	src, err := raster.New(3, 5, 3)
	require.NoError(t, err)

	for _, scale := range []int{1, 2, 3, 7} {
		dst, err := u.Upscale(context.Background(), src, scale)
		require.NoError(t, err)
		require.Equal(t, 3*scale, dst.Width)
		require.Equal(t, 5*scale, dst.Height)
		require.Equal(t, 3, dst.Channels)
	}
}

func TestUpscaleByOneIsIdentityCopy(t *testing.T) {
	u := NewUpscaler()
	src := checkerboard2x2(t)

	dst, err := u.Upscale(context.Background(), src, 1)
	require.NoError(t, err)
	require.Equal(t, src.Pix, dst.Pix)
	// it has to be a copy, not the same buffer
	dst.Set(0, 0, 0, 1)
	require.NotEqual(t, src.Pix, dst.Pix)
}

func TestUpscaleRejectsBadScale(t *testing.T) {
	u := NewUpscaler()
	src := checkerboard2x2(t)

	for _, scale := range []int{0, -1, -100} {
		_, err := u.Upscale(context.Background(), src, scale)
		require.ErrorIs(t, err, types.ErrInvalidInput, "scale=%d", scale)
	}
}

func TestUpscaleRejectsMalformedRaster(t *testing.T) {
	u := NewUpscaler()
	src := checkerboard2x2(t)
	src.Pix = src.Pix[:5]

	_, err := u.Upscale(context.Background(), src, 2)
	require.ErrorIs(t, err, types.ErrMalformedRaster)
}

func TestUpscaleSinglePixel(t *testing.T) {
	// Degenerate edge-clamp case: every output pixel replicates the only
	// input pixel.
	src, err := raster.New(1, 1, 3)
	require.NoError(t, err)
	src.Set(0, 0, 0, 12)
	src.Set(0, 0, 1, 34)
	src.Set(0, 0, 2, 56)

	u := NewUpscaler()
	for _, scale := range []int{2, 3, 5} {
		dst, err := u.Upscale(context.Background(), src, scale)
		require.NoError(t, err)
		for y := 0; y < dst.Height; y++ {
			for x := 0; x < dst.Width; x++ {
				require.EqualValues(t, 12, dst.At(x, y, 0))
				require.EqualValues(t, 34, dst.At(x, y, 1))
				require.EqualValues(t, 56, dst.At(x, y, 2))
			}
		}
	}
}

func TestUpscaleCheckerboardPreservesCorners(t *testing.T) {
	src := checkerboard2x2(t)
	u := NewUpscaler()

	dst, err := u.Upscale(context.Background(), src, 2)
	require.NoError(t, err)
	require.Equal(t, 4, dst.Width)
	require.Equal(t, 4, dst.Height)

	corners := []struct{ sx, sy, dx, dy int }{
		{0, 0, 0, 0},
		{1, 0, 3, 0},
		{0, 1, 0, 3},
		{1, 1, 3, 3},
	}
	for _, c := range corners {
		for ch := 0; ch < 3; ch++ {
			require.EqualValues(
				t,
				src.At(c.sx, c.sy, ch),
				dst.At(c.dx, c.dy, ch),
				"corner (%d,%d) channel %d", c.dx, c.dy, ch,
			)
		}
	}
}

func TestUpscaleSourceUntouched(t *testing.T) {
	src := checkerboard2x2(t)
	before := src.Clone()

	u := NewUpscaler()
	_, err := u.Upscale(context.Background(), src, 3)
	require.NoError(t, err)
	require.Equal(t, before.Pix, src.Pix)
}

func TestUpscaleWorkerCountsAgree(t *testing.T) {
	src, err := raster.New(7, 9, 4)
	require.NoError(t, err)
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 31)
	}

	reference := &Upscaler{Kernel: NewKernel(), Workers: 1}
	want, err := reference.Upscale(context.Background(), src, 3)
	require.NoError(t, err)

	for _, workers := range []int{2, 4, 100} {
		u := &Upscaler{Kernel: NewKernel(), Workers: workers}
		got, err := u.Upscale(context.Background(), src, 3)
		require.NoError(t, err)
		require.Equal(t, want.Pix, got.Pix, "workers=%d", workers)
	}
}

func TestUpscaleCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src, err := raster.New(16, 16, 3)
	require.NoError(t, err)
	_, err = NewUpscaler().Upscale(ctx, src, 2)
	require.ErrorIs(t, err, context.Canceled)
}
