package upscaling

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"

	"github.com/tom-doerr/video-upscaling/logger"
	"github.com/tom-doerr/video-upscaling/raster"
	"github.com/tom-doerr/video-upscaling/types"
)

// DefaultJPEGQuality is used when encoding JPEG output and no quality was
// requested.
const DefaultJPEGQuality = 95

type ImageConfig struct {
	Source      string
	Destination string

	// Scale is the integer upscale factor, >= 1.
	Scale int

	// Workers bounds row-level parallelism; 0 means runtime.NumCPU().
	Workers int

	// KernelA overrides the cubic convolution parameter;
	// 0 means resample.DefaultA.
	KernelA float64

	// Force allows overwriting an existing destination file.
	Force bool

	JPEGQuality int
}

// UpscaleImage decodes the image at cfg.Source, upscales it by cfg.Scale
// and encodes it to cfg.Destination (format chosen by the destination's
// extension). Like the video path it writes to a temporary file and
// renames on success.
func UpscaleImage(ctx context.Context, cfg ImageConfig) (_err error) {
	logger.Debugf(ctx, "UpscaleImage(ctx, '%s' -> '%s' x%d)", cfg.Source, cfg.Destination, cfg.Scale)
	defer func() {
		logger.Debugf(ctx, "/UpscaleImage(ctx, '%s' -> '%s' x%d): %v", cfg.Source, cfg.Destination, cfg.Scale, _err)
	}()

	if err := validateTarget(cfg.Source, cfg.Destination, cfg.Scale, cfg.Force); err != nil {
		return err
	}
	encoder, err := encoderFor(cfg.Destination, cfg.JPEGQuality)
	if err != nil {
		return err
	}

	img, err := imgio.Open(cfg.Source)
	if err != nil {
		return types.Categorize(types.ErrIO, fmt.Errorf("unable to read the image '%s': %w", cfg.Source, err))
	}
	src, err := raster.FromImage(img)
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "decoded '%s': %dx%d", cfg.Source, src.Width, src.Height)

	upscaled, err := newUpscalerFor(cfg.KernelA, cfg.Workers).Upscale(ctx, src, cfg.Scale)
	if err != nil {
		return err
	}
	out, err := upscaled.ToRGBA()
	if err != nil {
		return err
	}

	tmpPath := cfg.Destination + ".partial"
	if err := imgio.Save(tmpPath, out, encoder); err != nil {
		return types.Categorize(types.ErrIO, fmt.Errorf("unable to write '%s': %w", tmpPath, err))
	}
	if err := os.Rename(tmpPath, cfg.Destination); err != nil {
		_ = os.Remove(tmpPath)
		return types.Categorize(types.ErrIO, fmt.Errorf("unable to move the result into place: %w", err))
	}
	logger.Infof(ctx, "upscaled '%s' %dx%d -> '%s' %dx%d", cfg.Source, src.Width, src.Height, cfg.Destination, upscaled.Width, upscaled.Height)
	return nil
}

func encoderFor(path string, jpegQuality int) (imgio.Encoder, error) {
	if jpegQuality == 0 {
		jpegQuality = DefaultJPEGQuality
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return imgio.PNGEncoder(), nil
	case ".jpg", ".jpeg":
		return imgio.JPEGEncoder(jpegQuality), nil
	case ".bmp":
		return imgio.BMPEncoder(), nil
	default:
		return nil, types.Categorizef(types.ErrInvalidInput, "unsupported output image format '%s'", filepath.Ext(path))
	}
}
