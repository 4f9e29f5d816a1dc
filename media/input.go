package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"

	"github.com/tom-doerr/video-upscaling/frame"
	"github.com/tom-doerr/video-upscaling/helpers/closuresignaler"
	"github.com/tom-doerr/video-upscaling/logger"
	"github.com/tom-doerr/video-upscaling/raster"
	"github.com/tom-doerr/video-upscaling/types"
)

type InputConfig struct {
	// OnAudioPacket receives every demuxed audio packet, in demux order,
	// for passthrough. The packet is valid only during the call. A nil
	// callback drops the audio.
	OnAudioPacket func(ctx context.Context, pkt *astiav.Packet, stream *astiav.Stream) error
}

// Input demuxes a container and decodes its first video stream into
// rasters. It implements frame.Source: one pass, presentation order,
// io.EOF at the end.
type Input struct {
	URL string

	cfg         InputConfig
	fmtCtx      *astiav.FormatContext
	videoStream *astiav.Stream
	audioStream *astiav.Stream
	decCodecCtx *astiav.CodecContext
	swsCtx      *astiav.SoftwareScaleContext

	pkt       *astiav.Packet
	decFrame  *astiav.Frame
	rgbaFrame *astiav.Frame

	nextIndex int64
	draining  bool
	closer    *closuresignaler.ClosureSignaler
}

var _ frame.Source = (*Input)(nil)

func NewInput(
	ctx context.Context,
	path string,
	cfg InputConfig,
) (_ret *Input, _err error) {
	logger.Debugf(ctx, "NewInput(ctx, '%s')", path)
	defer func() { logger.Debugf(ctx, "/NewInput(ctx, '%s'): %v", path, _err) }()

	i := &Input{
		URL:    path,
		cfg:    cfg,
		closer: closuresignaler.New(),
	}
	defer func() {
		if _err != nil {
			i.Close(ctx)
		}
	}()

	i.fmtCtx = astiav.AllocFormatContext()
	if i.fmtCtx == nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to allocate a format context")
	}
	if err := i.fmtCtx.OpenInput(path, nil, nil); err != nil {
		i.fmtCtx.Free()
		i.fmtCtx = nil
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to open input '%s': %w", path, err)
	}
	if err := i.fmtCtx.FindStreamInfo(nil); err != nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to get stream info: %w", err)
	}

	for _, stream := range i.fmtCtx.Streams() {
		switch stream.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if i.videoStream == nil {
				i.videoStream = stream
			}
		case astiav.MediaTypeAudio:
			if i.audioStream == nil {
				i.audioStream = stream
			}
		}
	}
	if i.videoStream == nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "'%s' has no video stream", path)
	}

	if err := i.openDecoder(ctx); err != nil {
		return nil, err
	}

	i.pkt = astiav.AllocPacket()
	i.decFrame = astiav.AllocFrame()
	i.rgbaFrame = astiav.AllocFrame()
	return i, nil
}

func (i *Input) openDecoder(ctx context.Context) error {
	codecParams := i.videoStream.CodecParameters()
	decCodec := astiav.FindDecoder(codecParams.CodecID())
	if decCodec == nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to find a decoder for codec %s", codecParams.CodecID())
	}
	i.decCodecCtx = astiav.AllocCodecContext(decCodec)
	if i.decCodecCtx == nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to allocate a codec context for %s", decCodec.Name())
	}
	if err := i.decCodecCtx.FromCodecParameters(codecParams); err != nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to apply the codec parameters: %w", err)
	}
	if err := i.decCodecCtx.Open(decCodec, nil); err != nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to open the %s decoder: %w", decCodec.Name(), err)
	}
	logger.Debugf(
		ctx,
		"decoding stream #%d: %s %dx%d, pixel format %s",
		i.videoStream.Index(),
		codecParams.CodecID(), codecParams.Width(), codecParams.Height(), codecParams.PixelFormat(),
	)
	return nil
}

// AudioStream returns the input audio stream selected for passthrough, or
// nil if the container has none.
func (i *Input) AudioStream() *astiav.Stream {
	return i.audioStream
}

// VideoTimeBase is the time base the frames' PTS values are expressed in.
func (i *Input) VideoTimeBase() astiav.Rational {
	return i.videoStream.TimeBase()
}

// Next returns the next decoded video frame in presentation order,
// converted to an RGBA raster; io.EOF once the stream is exhausted.
// Audio packets encountered while demuxing are handed to the
// OnAudioPacket callback along the way.
func (i *Input) Next(ctx context.Context) (*frame.Frame, error) {
	if i.closer.IsClosed() {
		return nil, io.ErrClosedPipe
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := i.receiveFrame(ctx)
		switch {
		case err == nil:
			return f, nil
		case errors.Is(err, astiav.ErrEagain):
			if i.draining {
				// EAGAIN after entering drain mode should not happen
				return nil, types.Categorizef(types.ErrMediaToolchain, "decoder stalled while draining")
			}
		case errors.Is(err, astiav.ErrEof):
			return nil, io.EOF
		default:
			return nil, types.Categorizef(types.ErrMediaToolchain, "unable to decode: %w", err)
		}

		if err := i.feedDecoder(ctx); err != nil {
			return nil, err
		}
	}
}

// feedDecoder demuxes packets until it fed exactly one video packet to the
// decoder (or switched the decoder into drain mode at EOF). Audio packets
// seen on the way are passed through.
func (i *Input) feedDecoder(ctx context.Context) error {
	for {
		if err := i.fmtCtx.ReadFrame(i.pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				logger.Debugf(ctx, "demuxer is exhausted; draining the decoder")
				i.draining = true
				if err := i.decCodecCtx.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEagain) {
					return types.Categorizef(types.ErrMediaToolchain, "unable to flush the decoder: %w", err)
				}
				return nil
			}
			return types.Categorizef(types.ErrMediaToolchain, "unable to read a packet: %w", err)
		}

		switch i.pkt.StreamIndex() {
		case i.videoStream.Index():
			err := i.decCodecCtx.SendPacket(i.pkt)
			i.pkt.Unref()
			if err != nil && !errors.Is(err, astiav.ErrEagain) {
				return types.Categorizef(types.ErrMediaToolchain, "unable to send a packet to the decoder: %w", err)
			}
			return nil
		default:
			if i.audioStream != nil && i.pkt.StreamIndex() == i.audioStream.Index() && i.cfg.OnAudioPacket != nil {
				if err := i.cfg.OnAudioPacket(ctx, i.pkt, i.audioStream); err != nil {
					i.pkt.Unref()
					return fmt.Errorf("audio passthrough failed: %w", err)
				}
			}
			i.pkt.Unref()
		}
	}
}

func (i *Input) receiveFrame(ctx context.Context) (*frame.Frame, error) {
	if err := i.decCodecCtx.ReceiveFrame(i.decFrame); err != nil {
		return nil, err
	}

	r, err := i.frameToRaster(ctx, i.decFrame)
	if err != nil {
		return nil, err
	}

	f := &frame.Frame{
		Index:    i.nextIndex,
		Raster:   r,
		PTS:      i.decFrame.Pts(),
		Duration: i.decFrame.Duration(),
		TimeBase: i.videoStream.TimeBase(),
	}
	i.nextIndex++
	logger.Tracef(ctx, "decoded frame #%d (pts:%d, position:%v)", f.Index, f.PTS, PTSToDuration(f.PTS, f.TimeBase))
	return f, nil
}

// frameToRaster converts a decoded frame (whatever its pixel format) into
// an RGBA raster in Go memory, via a software scale context.
func (i *Input) frameToRaster(ctx context.Context, f *astiav.Frame) (*raster.Raster, error) {
	if i.swsCtx == nil {
		swsCtx, err := astiav.CreateSoftwareScaleContext(
			f.Width(), f.Height(), f.PixelFormat(),
			f.Width(), f.Height(), astiav.PixelFormatRgba,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
		)
		if err != nil {
			return nil, types.Categorizef(types.ErrMediaToolchain, "unable to create a software scale context: %w", err)
		}
		i.swsCtx = swsCtx
		setFinalizerFree(ctx, swsCtx)
	}

	i.rgbaFrame.Unref()
	if err := i.swsCtx.ScaleFrame(f, i.rgbaFrame); err != nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to convert the frame to RGBA: %w", err)
	}

	img, err := i.rgbaFrame.Data().GuessImageFormat()
	if err != nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to guess the image format: %w", err)
	}
	if err := i.rgbaFrame.Data().ToImage(img); err != nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to convert the frame into Go's format: %w", err)
	}

	r, err := raster.FromImage(img)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases all demuxer/decoder resources. It is safe to call more
// than once.
func (i *Input) Close(ctx context.Context) error {
	if i == nil || i.closer.IsClosed() {
		return nil
	}
	i.closer.Close(ctx)
	logger.Debugf(ctx, "closing the input '%s'", i.URL)

	if i.swsCtx != nil {
		// freed by its finalizer
		i.swsCtx = nil
	}
	if i.rgbaFrame != nil {
		i.rgbaFrame.Free()
		i.rgbaFrame = nil
	}
	if i.decFrame != nil {
		i.decFrame.Free()
		i.decFrame = nil
	}
	if i.pkt != nil {
		i.pkt.Free()
		i.pkt = nil
	}
	if i.decCodecCtx != nil {
		i.decCodecCtx.Free()
		i.decCodecCtx = nil
	}
	if i.fmtCtx != nil {
		i.fmtCtx.CloseInput()
		i.fmtCtx.Free()
		i.fmtCtx = nil
	}
	return nil
}

func (i *Input) String() string {
	return fmt.Sprintf("Input(%s)", i.URL)
}
