// Package resample implements the bicubic resampling engine: the cubic
// convolution kernel sampler and the raster upscaler built on top of it.
package resample

import (
	"math"

	"github.com/tom-doerr/video-upscaling/raster"
)

// DefaultA is the default free parameter of the cubic convolution kernel
// (Keys 1981). -0.5 is the Catmull-Rom form, the usual choice for
// photographic upscaling.
const DefaultA = -0.5

// Kernel is a cubic convolution kernel with free parameter A. The zero
// value is not useful; construct it with NewKernel or set A explicitly.
type Kernel struct {
	// A is the cubic convolution parameter; must be negative for the
	// kernel to be interpolating.
	A float64
}

func NewKernel() Kernel {
	return Kernel{A: DefaultA}
}

// weight evaluates the kernel at distance x >= 0:
//
//	(A+2)|x|^3 - (A+3)|x|^2 + 1      for |x| <= 1
//	A|x|^3 - 5A|x|^2 + 8A|x| - 4A    for 1 < |x| < 2
//	0                                 otherwise
func (k Kernel) weight(x float64) float64 {
	switch {
	case x <= 1:
		return ((k.A+2)*x-(k.A+3))*x*x + 1
	case x < 2:
		return ((k.A*x-5*k.A)*x+8*k.A)*x - 4*k.A
	default:
		return 0
	}
}

// Weights returns the four tap coefficients for fractional offset
// t ∈ [0,1), for source samples at offsets -1, 0, +1, +2 relative to the
// integer part of the sample position. The taps sum to 1 within floating
// tolerance for any interpolating A.
func (k Kernel) Weights(t float64) [4]float64 {
	return [4]float64{
		k.weight(1 + t),
		k.weight(t),
		k.weight(1 - t),
		k.weight(2 - t),
	}
}

// SampleAt computes one interpolated sample of channel ch at fractional
// source coordinates (x, y): a separable 4×4 cubic convolution, sample
// coordinates outside the raster clamped to the nearest edge pixel
// (edge-replicate). The accumulation runs in float64; the result is
// rounded to nearest with ties away from zero and clamped to [0, 255].
//
// Pure function of (raster, position, channel); no bounds besides the
// edge clamp are enforced here.
func (k Kernel) SampleAt(r *raster.Raster, x, y float64, ch int) uint8 {
	xi := int(math.Floor(x))
	yi := int(math.Floor(y))
	wx := k.Weights(x - float64(xi))
	wy := k.Weights(y - float64(yi))

	var acc float64
	for j := 0; j < 4; j++ {
		sy := clampIndex(yi+j-1, r.Height-1)
		var row float64
		for i := 0; i < 4; i++ {
			sx := clampIndex(xi+i-1, r.Width-1)
			row += wx[i] * float64(r.At(sx, sy, ch))
		}
		acc += wy[j] * row
	}

	v := math.Round(acc)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clampIndex(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}
