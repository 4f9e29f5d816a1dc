// image.go bridges Raster to Go's image types; this is how decoded frames
// and image files enter and leave the resampling engine.

package raster

import (
	"image"
	"image/color"

	"github.com/tom-doerr/video-upscaling/types"
)

// FromImage converts an image into a 4-channel RGBA raster. *image.RGBA is
// copied row-by-row; anything else goes through the generic color model.
func FromImage(img image.Image) (*Raster, error) {
	bounds := img.Bounds()
	r, err := New(bounds.Dx(), bounds.Dy(), 4)
	if err != nil {
		return nil, err
	}

	if rgba, ok := img.(*image.RGBA); ok {
		rowLen := r.Width * r.Channels
		for y := 0; y < r.Height; y++ {
			srcOff := rgba.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(r.Pix[y*rowLen:(y+1)*rowLen], rgba.Pix[srcOff:srcOff+rowLen])
		}
		return r, nil
	}

	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			c := color.RGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA)
			r.Set(x, y, 0, c.R)
			r.Set(x, y, 1, c.G)
			r.Set(x, y, 2, c.B)
			r.Set(x, y, 3, c.A)
		}
	}
	return r, nil
}

// ToRGBA converts the raster back into an *image.RGBA. 3-channel rasters
// get an opaque alpha channel; other channel counts are not representable.
func (r *Raster) ToRGBA() (*image.RGBA, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	switch r.Channels {
	case 3, 4:
	default:
		return nil, types.Categorizef(
			types.ErrMalformedRaster,
			"cannot convert a %d-channel raster to RGBA", r.Channels,
		)
	}

	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	if r.Channels == 4 {
		rowLen := r.Width * 4
		for y := 0; y < r.Height; y++ {
			copy(img.Pix[img.PixOffset(0, y):], r.Pix[y*rowLen:(y+1)*rowLen])
		}
		return img, nil
	}
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			off := img.PixOffset(x, y)
			img.Pix[off+0] = r.At(x, y, 0)
			img.Pix[off+1] = r.At(x, y, 1)
			img.Pix[off+2] = r.At(x, y, 2)
			img.Pix[off+3] = 0xff
		}
	}
	return img, nil
}
