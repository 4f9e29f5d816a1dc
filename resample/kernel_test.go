package resample

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tom-doerr/video-upscaling/raster"
)

func TestWeightsSumToOne(t *testing.T) {
	for _, a := range []float64{DefaultA, -0.75, -1} {
		k := Kernel{A: a}
		for _, offset := range []float64{0, 0.125, 0.25, 0.5, 0.75, 0.999} {
			w := k.Weights(offset)
			sum := w[0] + w[1] + w[2] + w[3]
			require.InDelta(t, 1.0, sum, 1e-12, "A=%v t=%v", a, offset)
		}
	}
}

func TestWeightsAtZeroOffsetAreIdentity(t *testing.T) {
	w := NewKernel().Weights(0)
	require.Equal(t, [4]float64{0, 1, 0, 0}, w)
}

func TestSampleAtConstantNeighborhood(t *testing.T) {
	// Interpolating a constant must return exactly that constant,
	// otherwise the weights do not normalize.
	r, err := raster.New(4, 4, 1)
	require.NoError(t, err)
	for i := range r.Pix {
		r.Pix[i] = 173
	}

	k := NewKernel()
	for _, pos := range []struct{ x, y float64 }{
		{1.5, 1.5}, {0.25, 2.75}, {0, 0}, {3.999, 3.999},
	} {
		require.EqualValues(t, 173, k.SampleAt(r, pos.x, pos.y, 0), "at (%v,%v)", pos.x, pos.y)
	}
}

func TestSampleAtIntegerPositionsIsExact(t *testing.T) {
	r, err := raster.New(5, 5, 1)
	require.NoError(t, err)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			r.Set(x, y, 0, uint8(10*y+x))
		}
	}

	k := NewKernel()
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			require.EqualValues(t, 10*y+x, k.SampleAt(r, float64(x), float64(y), 0))
		}
	}
}

func TestSampleAtEdgeReplication(t *testing.T) {
	// A 1x1 raster forces every tap onto the same pixel, whatever the
	// sample position is.
	r, err := raster.New(1, 1, 1)
	require.NoError(t, err)
	r.Set(0, 0, 0, 88)

	k := NewKernel()
	for _, pos := range []struct{ x, y float64 }{
		{0, 0}, {0.5, 0.5}, {0.99, 0.01},
	} {
		require.EqualValues(t, 88, k.SampleAt(r, pos.x, pos.y, 0))
	}
}

func TestSampleAtClampsOvershoot(t *testing.T) {
	// Catmull-Rom overshoots next to a hard step; the result must still
	// stay within the sample range.
	r, err := raster.New(4, 1, 1)
	require.NoError(t, err)
	r.Set(0, 0, 0, 0)
	r.Set(1, 0, 0, 0)
	r.Set(2, 0, 0, 255)
	r.Set(3, 0, 0, 255)

	k := NewKernel()
	// On the low side of the step the unclamped result is about -17.9,
	// on the high side about 272.9.
	require.EqualValues(t, 0, k.SampleAt(r, 0.75, 0, 0))
	require.EqualValues(t, 255, k.SampleAt(r, 2.25, 0, 0))
}
