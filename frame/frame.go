// Package frame defines the decoded video frame value and the pull-based
// sequence abstraction the upscaling pipeline consumes.
package frame

import (
	"context"

	"github.com/asticode/go-astiav"

	"github.com/tom-doerr/video-upscaling/raster"
)

// Frame is one decoded video frame: its raster plus the timing needed to
// re-encode it at the original rate.
type Frame struct {
	// Index is the 0-based position in presentation order.
	Index int64

	Raster *raster.Raster

	PTS      int64
	Duration int64
	TimeBase astiav.Rational
}

// Source is an ordered, finite sequence of frames extracted from a media
// container: single-pass, not restartable, pulled one frame at a time so
// that only a bounded number of frames is ever in memory.
//
// Next returns io.EOF once the sequence is exhausted; any other error is
// terminal as well. Frames are returned with strictly ascending Index.
type Source interface {
	Next(ctx context.Context) (*Frame, error)
	Close(ctx context.Context) error
}
