package media

import (
	"context"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/davecgh/go-spew/spew"

	"github.com/tom-doerr/video-upscaling/logger"
	"github.com/tom-doerr/video-upscaling/types"
)

// Info is metadata of a media container, as declared by the container
// itself. DeclaredFrames is 0 when the container does not carry a frame
// count (common for e.g. MPEG-TS); a positive value is authoritative.
type Info struct {
	Width          int
	Height         int
	FrameRate      astiav.Rational
	DeclaredFrames int64
	HasAudio       bool
	Duration       time.Duration
	VideoCodec     string
}

// Probe opens the container at path read-only, extracts the metadata the
// pipeline needs, and closes it again.
func Probe(ctx context.Context, path string) (_ret *Info, _err error) {
	logger.Debugf(ctx, "Probe(ctx, '%s')", path)
	defer func() { logger.Debugf(ctx, "/Probe(ctx, '%s'): %v %v", path, _ret, _err) }()

	fmtCtx := astiav.AllocFormatContext()
	if fmtCtx == nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to allocate a format context")
	}

	if err := fmtCtx.OpenInput(path, nil, nil); err != nil {
		fmtCtx.Free()
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to open '%s': %w", path, err)
	}
	defer func() {
		fmtCtx.CloseInput()
		fmtCtx.Free()
	}()

	if err := fmtCtx.FindStreamInfo(nil); err != nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to get stream info of '%s': %w", path, err)
	}

	info, err := infoFromFormatContext(ctx, fmtCtx)
	if err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "probed '%s': %s", path, spew.Sdump(info))
	return info, nil
}

func infoFromFormatContext(
	ctx context.Context,
	fmtCtx *astiav.FormatContext,
) (*Info, error) {
	info := &Info{}
	var videoStream *astiav.Stream
	for _, stream := range fmtCtx.Streams() {
		switch stream.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if videoStream == nil {
				videoStream = stream
			}
		case astiav.MediaTypeAudio:
			info.HasAudio = true
		default:
			logger.Debugf(ctx, "ignoring stream #%d of type %s", stream.Index(), stream.CodecParameters().MediaType())
		}
	}
	if videoStream == nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "the container has no video stream")
	}

	info.Width = videoStream.CodecParameters().Width()
	info.Height = videoStream.CodecParameters().Height()
	info.FrameRate = fmtCtx.GuessFrameRate(videoStream, nil)
	if info.FrameRate.Num() == 0 {
		info.FrameRate = videoStream.AvgFrameRate()
	}
	info.DeclaredFrames = videoStream.NbFrames()
	info.VideoCodec = videoStream.CodecParameters().CodecID().String()
	// FormatContext.Duration is in AV_TIME_BASE units (microseconds).
	if d := fmtCtx.Duration(); d > 0 {
		info.Duration = time.Duration(d) * time.Microsecond
	}
	return info, nil
}
