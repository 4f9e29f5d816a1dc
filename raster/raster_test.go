package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tom-doerr/video-upscaling/types"
)

func TestNewRejectsBadGeometry(t *testing.T) {
	for _, tc := range []struct{ w, h, ch int }{
		{0, 1, 3},
		{1, 0, 3},
		{-4, 4, 3},
		{4, 4, 0},
	} {
		_, err := New(tc.w, tc.h, tc.ch)
		require.ErrorIs(t, err, types.ErrMalformedRaster, "geometry %+v", tc)
	}
}

func TestValidateDetectsShortBuffer(t *testing.T) {
	r, err := New(2, 2, 3)
	require.NoError(t, err)
	require.NoError(t, r.Validate())

	r.Pix = r.Pix[:len(r.Pix)-1]
	require.ErrorIs(t, r.Validate(), types.ErrMalformedRaster)
}

func TestAtSetRoundTrip(t *testing.T) {
	r, err := New(3, 2, 4)
	require.NoError(t, err)
	r.Set(2, 1, 3, 0xab)
	require.EqualValues(t, 0xab, r.At(2, 1, 3))
	require.EqualValues(t, 0, r.At(2, 1, 2))
}

func TestCloneIsDeep(t *testing.T) {
	r, err := New(2, 2, 3)
	require.NoError(t, err)
	r.Set(0, 0, 0, 7)

	c := r.Clone()
	c.Set(0, 0, 0, 9)
	require.EqualValues(t, 7, r.At(0, 0, 0))
	require.EqualValues(t, 9, c.At(0, 0, 0))
}

func TestFromImageRGBAFastPath(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 20, 13, 22))
	img.SetRGBA(11, 21, color.RGBA{R: 1, G: 2, B: 3, A: 4})

	r, err := FromImage(img)
	require.NoError(t, err)
	require.Equal(t, 3, r.Width)
	require.Equal(t, 2, r.Height)
	require.Equal(t, 4, r.Channels)
	require.EqualValues(t, 2, r.At(1, 1, 1))
}

func TestFromImageGenericPath(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(1, 0, color.NRGBA{R: 250, G: 100, B: 50, A: 255})

	r, err := FromImage(img)
	require.NoError(t, err)
	require.EqualValues(t, 250, r.At(1, 0, 0))
	require.EqualValues(t, 255, r.At(1, 0, 3))
}

func TestToRGBARoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.SetRGBA(2, 1, color.RGBA{R: 9, G: 8, B: 7, A: 255})

	r, err := FromImage(img)
	require.NoError(t, err)
	out, err := r.ToRGBA()
	require.NoError(t, err)
	require.Equal(t, img.Pix, out.Pix)
}

func TestToRGBAFromThreeChannels(t *testing.T) {
	r, err := New(1, 1, 3)
	require.NoError(t, err)
	r.Set(0, 0, 0, 42)

	img, err := r.ToRGBA()
	require.NoError(t, err)
	require.Equal(t, color.RGBA{R: 42, A: 0xff}, img.RGBAAt(0, 0))
}

func TestToRGBARejectsOddChannelCounts(t *testing.T) {
	r, err := New(1, 1, 2)
	require.NoError(t, err)
	_, err = r.ToRGBA()
	require.ErrorIs(t, err, types.ErrMalformedRaster)
}
