// Package raster provides the in-memory pixel grid the resampling engine
// operates on: a packed, channel-interleaved buffer of 8-bit samples.
package raster

import (
	"github.com/tom-doerr/video-upscaling/types"
)

// Raster is a 2D grid of multi-channel 8-bit pixel samples, stored
// row-major and channel-interleaved. A Raster is never mutated after it
// has been produced; stages that need a different raster build a new one.
type Raster struct {
	Width    int
	Height   int
	Channels int

	// Pix holds the samples; Pix[(y*Width+x)*Channels+ch] is the sample
	// of channel ch at (x, y). len(Pix) == Width*Height*Channels.
	Pix []uint8
}

// New allocates a zeroed raster of the given geometry.
func New(width, height, channels int) (*Raster, error) {
	r := &Raster{
		Width:    width,
		Height:   height,
		Channels: channels,
	}
	if err := r.validateGeometry(); err != nil {
		return nil, err
	}
	r.Pix = make([]uint8, width*height*channels)
	return r, nil
}

func (r *Raster) validateGeometry() error {
	if r == nil {
		return types.Categorizef(types.ErrMalformedRaster, "raster is nil")
	}
	if r.Width < 1 || r.Height < 1 {
		return types.Categorizef(types.ErrMalformedRaster, "dimensions %dx%d: both must be >= 1", r.Width, r.Height)
	}
	if r.Channels < 1 {
		return types.Categorizef(types.ErrMalformedRaster, "channel count %d: must be >= 1", r.Channels)
	}
	return nil
}

// Validate reports whether the raster satisfies its invariants: positive
// dimensions and channel count, and a sample buffer of exactly
// Width*Height*Channels bytes (a short or long buffer is the packed
// equivalent of ragged rows).
func (r *Raster) Validate() error {
	if err := r.validateGeometry(); err != nil {
		return err
	}
	if want := r.Width * r.Height * r.Channels; len(r.Pix) != want {
		return types.Categorizef(
			types.ErrMalformedRaster,
			"sample buffer has %d bytes, geometry %dx%dx%d requires %d",
			len(r.Pix), r.Width, r.Height, r.Channels, want,
		)
	}
	return nil
}

// At returns the sample of channel ch at (x, y). The caller is responsible
// for passing in-range coordinates.
func (r *Raster) At(x, y, ch int) uint8 {
	return r.Pix[(y*r.Width+x)*r.Channels+ch]
}

// Set stores a sample; only used while a new raster is being filled.
func (r *Raster) Set(x, y, ch int, v uint8) {
	r.Pix[(y*r.Width+x)*r.Channels+ch] = v
}

// Clone returns a value-identical deep copy.
func (r *Raster) Clone() *Raster {
	out := &Raster{
		Width:    r.Width,
		Height:   r.Height,
		Channels: r.Channels,
		Pix:      make([]uint8, len(r.Pix)),
	}
	copy(out.Pix, r.Pix)
	return out
}
