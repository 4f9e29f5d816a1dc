package upscaling

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/stretchr/testify/require"

	"github.com/tom-doerr/video-upscaling/types"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 40), G: uint8(y * 40), B: 128, A: 255})
		}
	}
	require.NoError(t, imgio.Save(path, img, imgio.PNGEncoder()))
}

func TestUpscaleImagePNG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	dst := filepath.Join(dir, "out.png")
	writeTestPNG(t, src, 5, 3)

	err := UpscaleImage(context.Background(), ImageConfig{
		Source:      src,
		Destination: dst,
		Scale:       3,
	})
	require.NoError(t, err)

	out, err := imgio.Open(dst)
	require.NoError(t, err)
	require.Equal(t, 15, out.Bounds().Dx())
	require.Equal(t, 9, out.Bounds().Dy())

	// no temporary file may be left behind
	require.NoFileExists(t, dst+".partial")
}

func TestUpscaleImageScaleOneIsLossless(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	dst := filepath.Join(dir, "out.png")
	writeTestPNG(t, src, 4, 4)

	err := UpscaleImage(context.Background(), ImageConfig{
		Source:      src,
		Destination: dst,
		Scale:       1,
	})
	require.NoError(t, err)

	in, err := imgio.Open(src)
	require.NoError(t, err)
	out, err := imgio.Open(dst)
	require.NoError(t, err)
	require.Equal(t, in.Bounds(), out.Bounds())
	for y := 0; y < in.Bounds().Dy(); y++ {
		for x := 0; x < in.Bounds().Dx(); x++ {
			require.Equal(t, in.At(x, y), out.At(x, y), "pixel (%d, %d)", x, y)
		}
	}
}

func TestUpscaleImageRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	dst := filepath.Join(dir, "out.png")
	writeTestPNG(t, src, 2, 2)
	writeTestPNG(t, dst, 1, 1)

	err := UpscaleImage(context.Background(), ImageConfig{
		Source:      src,
		Destination: dst,
		Scale:       2,
	})
	require.ErrorIs(t, err, types.ErrInvalidInput)

	err = UpscaleImage(context.Background(), ImageConfig{
		Source:      src,
		Destination: dst,
		Scale:       2,
		Force:       true,
	})
	require.NoError(t, err)
}

func TestUpscaleImageInvalidScale(t *testing.T) {
	err := UpscaleImage(context.Background(), ImageConfig{
		Source:      "does-not-matter.png",
		Destination: "irrelevant.png",
		Scale:       0,
	})
	require.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestUpscaleImageUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	writeTestPNG(t, src, 2, 2)

	err := UpscaleImage(context.Background(), ImageConfig{
		Source:      src,
		Destination: filepath.Join(dir, "out.tiff"),
		Scale:       2,
	})
	require.ErrorIs(t, err, types.ErrInvalidInput)
}
