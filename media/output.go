package media

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/xsync"

	"github.com/tom-doerr/video-upscaling/frame"
	"github.com/tom-doerr/video-upscaling/helpers/closuresignaler"
	"github.com/tom-doerr/video-upscaling/logger"
	"github.com/tom-doerr/video-upscaling/types"
)

const (
	// Defaults matching the usual "archive a processed video" settings.
	DefaultVideoCodec = "libx264"
	DefaultPreset     = "slow"
	DefaultCRF        = "20"
)

type OutputConfig struct {
	Destination string

	// Output video geometry (already upscaled).
	Width  int
	Height int

	// FrameRate and VideoTimeBase are taken from the source so the output
	// plays back at exactly the original rate; frame PTS values are
	// carried over unchanged.
	FrameRate     astiav.Rational
	VideoTimeBase astiav.Rational

	// AudioStream is the source audio stream to remux unmodified;
	// nil means the output has no audio.
	AudioStream *astiav.Stream

	CodecName string // defaults to DefaultVideoCodec
	Preset    string // defaults to DefaultPreset
	CRF       string // defaults to DefaultCRF
}

// Output encodes upscaled frames (plus passthrough audio packets) into a
// container. Everything is written to a temporary file next to the
// destination; the destination path only comes into existence on
// Finalize, via an atomic rename. Discard removes the temporary file.
//
// WriteFrame and WriteAudioPacket may be called from different goroutines;
// the muxer is protected by a lock.
type Output struct {
	Destination string

	locker      xsync.Mutex
	tmpPath     string
	fmtCtx      *astiav.FormatContext
	ioCtx       *astiav.IOContext
	encCodecCtx *astiav.CodecContext
	videoStream *astiav.Stream
	audioStream *astiav.Stream
	inAudio     *astiav.Stream
	swsCtx      *astiav.SoftwareScaleContext
	rgbaFrame   *astiav.Frame
	encFrame    *astiav.Frame
	pkt         *astiav.Packet
	finalized   bool
	closer      *closuresignaler.ClosureSignaler
}

func NewOutput(
	ctx context.Context,
	cfg OutputConfig,
) (_ret *Output, _err error) {
	logger.Debugf(ctx, "NewOutput(ctx, %#+v)", cfg)
	defer func() { logger.Debugf(ctx, "/NewOutput(ctx, '%s'): %v", cfg.Destination, _err) }()

	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, types.Categorizef(types.ErrInvalidInput, "output geometry %dx%d", cfg.Width, cfg.Height)
	}

	o := &Output{
		Destination: cfg.Destination,
		tmpPath:     cfg.Destination + ".partial",
		inAudio:     cfg.AudioStream,
		closer:      closuresignaler.New(),
	}
	defer func() {
		if _err != nil {
			o.Discard(ctx)
		}
	}()

	// The container format is guessed from the final destination name,
	// while the bytes go to the temporary path.
	fmtCtx, err := astiav.AllocOutputFormatContext(nil, "", cfg.Destination)
	if err != nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to allocate an output format context for '%s': %w", cfg.Destination, err)
	}
	o.fmtCtx = fmtCtx
	setFinalizerFree(ctx, o.fmtCtx)

	if err := o.openEncoder(ctx, cfg); err != nil {
		return nil, err
	}
	if err := o.initStreams(ctx, cfg); err != nil {
		return nil, err
	}

	if !o.fmtCtx.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		ioCtx, err := astiav.OpenIOContext(
			o.tmpPath,
			astiav.NewIOContextFlags(astiav.IOContextFlagWrite),
			nil,
			nil,
		)
		if err != nil {
			return nil, types.Categorizef(types.ErrIO, "unable to open '%s' for writing: %w", o.tmpPath, err)
		}
		o.ioCtx = ioCtx
		o.fmtCtx.SetPb(ioCtx)
	}

	if err := o.fmtCtx.WriteHeader(nil); err != nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to write the header: %w", err)
	}

	o.rgbaFrame = astiav.AllocFrame()
	o.rgbaFrame.SetWidth(cfg.Width)
	o.rgbaFrame.SetHeight(cfg.Height)
	o.rgbaFrame.SetPixelFormat(astiav.PixelFormatRgba)
	if err := o.rgbaFrame.AllocBuffer(0); err != nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to allocate the RGBA staging frame: %w", err)
	}
	o.encFrame = astiav.AllocFrame()
	o.pkt = astiav.AllocPacket()

	swsCtx, err := astiav.CreateSoftwareScaleContext(
		cfg.Width, cfg.Height, astiav.PixelFormatRgba,
		cfg.Width, cfg.Height, o.encCodecCtx.PixelFormat(),
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return nil, types.Categorizef(types.ErrMediaToolchain, "unable to create a software scale context: %w", err)
	}
	o.swsCtx = swsCtx
	setFinalizerFree(ctx, swsCtx)

	return o, nil
}

func (o *Output) openEncoder(ctx context.Context, cfg OutputConfig) error {
	codecName := cfg.CodecName
	if codecName == "" {
		codecName = DefaultVideoCodec
	}
	encCodec := astiav.FindEncoderByName(codecName)
	if encCodec == nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to find the encoder '%s'", codecName)
	}

	o.encCodecCtx = astiav.AllocCodecContext(encCodec)
	if o.encCodecCtx == nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to allocate a codec context for '%s'", codecName)
	}
	o.encCodecCtx.SetWidth(cfg.Width)
	o.encCodecCtx.SetHeight(cfg.Height)
	o.encCodecCtx.SetPixelFormat(astiav.PixelFormatYuv420P)
	o.encCodecCtx.SetTimeBase(cfg.VideoTimeBase)
	o.encCodecCtx.SetFramerate(cfg.FrameRate)
	o.encCodecCtx.SetSampleAspectRatio(astiav.NewRational(1, 1))
	if o.fmtCtx.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
		o.encCodecCtx.SetFlags(o.encCodecCtx.Flags() | astiav.CodecContextFlags(astiav.CodecContextFlagGlobalHeader))
	}

	preset := cfg.Preset
	if preset == "" {
		preset = DefaultPreset
	}
	crf := cfg.CRF
	if crf == "" {
		crf = DefaultCRF
	}
	opts := astiav.NewDictionary()
	defer opts.Free()
	opts.Set("preset", preset, 0)
	opts.Set("crf", crf, 0)

	if err := o.encCodecCtx.Open(encCodec, opts); err != nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to open the '%s' encoder: %w", codecName, err)
	}
	logger.Debugf(ctx, "encoding %dx%d with %s (preset:%s, crf:%s) at %s fps", cfg.Width, cfg.Height, codecName, preset, crf, cfg.FrameRate)
	return nil
}

func (o *Output) initStreams(ctx context.Context, cfg OutputConfig) error {
	o.videoStream = o.fmtCtx.NewStream(nil)
	if o.videoStream == nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to create the output video stream")
	}
	if err := o.encCodecCtx.ToCodecParameters(o.videoStream.CodecParameters()); err != nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to copy the encoder parameters: %w", err)
	}
	o.videoStream.SetTimeBase(o.encCodecCtx.TimeBase())
	o.videoStream.SetAvgFrameRate(cfg.FrameRate)
	o.videoStream.SetRFrameRate(cfg.FrameRate)

	if cfg.AudioStream != nil {
		o.audioStream = o.fmtCtx.NewStream(nil)
		if o.audioStream == nil {
			return types.Categorizef(types.ErrMediaToolchain, "unable to create the output audio stream")
		}
		if err := cfg.AudioStream.CodecParameters().Copy(o.audioStream.CodecParameters()); err != nil {
			return types.Categorizef(types.ErrMediaToolchain, "unable to copy the audio codec parameters: %w", err)
		}
		o.audioStream.CodecParameters().SetCodecTag(0)
		o.audioStream.SetTimeBase(cfg.AudioStream.TimeBase())
		logger.Debugf(ctx, "passing the audio stream through as output stream #%d", o.audioStream.Index())
	}
	return nil
}

// WriteFrame encodes one upscaled frame. Frames must arrive in strictly
// ascending presentation order; re-sequencing out-of-order completions is
// the pipeline's job.
func (o *Output) WriteFrame(ctx context.Context, f *frame.Frame) (_err error) {
	logger.Tracef(ctx, "WriteFrame(#%d)", f.Index)
	defer func() { logger.Tracef(ctx, "/WriteFrame(#%d): %v", f.Index, _err) }()
	return xsync.DoR1(ctx, &o.locker, func() error {
		return o.writeFrame(ctx, f)
	})
}

func (o *Output) writeFrame(ctx context.Context, f *frame.Frame) error {
	if o.closer.IsClosed() {
		return types.Categorizef(types.ErrIO, "the output is already closed")
	}

	img, err := f.Raster.ToRGBA()
	if err != nil {
		return err
	}
	if img.Rect.Dx() != o.rgbaFrame.Width() || img.Rect.Dy() != o.rgbaFrame.Height() {
		return types.Categorizef(
			types.ErrMalformedRaster,
			"frame #%d is %dx%d, the output expects %dx%d",
			f.Index, img.Rect.Dx(), img.Rect.Dy(), o.rgbaFrame.Width(), o.rgbaFrame.Height(),
		)
	}

	if err := o.rgbaFrame.MakeWritable(); err != nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to make the staging frame writable: %w", err)
	}
	if err := o.rgbaFrame.Data().FromImage(img); err != nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to import the raster: %w", err)
	}

	o.encFrame.Unref()
	if err := o.swsCtx.ScaleFrame(o.rgbaFrame, o.encFrame); err != nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to convert the frame for encoding: %w", err)
	}
	o.encFrame.SetPts(f.PTS)
	o.encFrame.SetDuration(f.Duration)

	return o.encode(ctx, o.encFrame)
}

// encode pushes a frame (nil to flush) into the encoder and drains every
// packet it produces into the muxer.
func (o *Output) encode(ctx context.Context, f *astiav.Frame) error {
	if err := o.encCodecCtx.SendFrame(f); err != nil {
		return types.Categorizef(types.ErrMediaToolchain, "unable to send a frame to the encoder: %w", err)
	}
	for {
		if err := o.encCodecCtx.ReceivePacket(o.pkt); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return types.Categorizef(types.ErrMediaToolchain, "unable to receive a packet from the encoder: %w", err)
		}
		o.pkt.SetStreamIndex(o.videoStream.Index())
		o.pkt.RescaleTs(o.encCodecCtx.TimeBase(), o.videoStream.TimeBase())
		if err := o.fmtCtx.WriteInterleavedFrame(o.pkt); err != nil {
			return types.Categorizef(types.ErrMediaToolchain, "unable to mux a video packet: %w", err)
		}
	}
}

// WriteAudioPacket remuxes one source audio packet unmodified (stream
// copy). The packet is consumed.
func (o *Output) WriteAudioPacket(
	ctx context.Context,
	pkt *astiav.Packet,
	srcStream *astiav.Stream,
) (_err error) {
	logger.Tracef(ctx, "WriteAudioPacket")
	defer func() { logger.Tracef(ctx, "/WriteAudioPacket: %v", _err) }()
	return xsync.DoR1(ctx, &o.locker, func() error {
		if o.closer.IsClosed() {
			return types.Categorizef(types.ErrIO, "the output is already closed")
		}
		if o.audioStream == nil {
			return types.Categorizef(types.ErrMediaToolchain, "the output has no audio stream")
		}
		pkt.SetStreamIndex(o.audioStream.Index())
		pkt.RescaleTs(srcStream.TimeBase(), o.audioStream.TimeBase())
		pkt.SetPos(-1)
		if err := o.fmtCtx.WriteInterleavedFrame(pkt); err != nil {
			return types.Categorizef(types.ErrMediaToolchain, "unable to mux an audio packet: %w", err)
		}
		return nil
	})
}

// Finalize flushes the encoder, writes the trailer and atomically renames
// the temporary file onto the destination. After Finalize the Output is
// closed.
func (o *Output) Finalize(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Finalize")
	defer func() { logger.Debugf(ctx, "/Finalize: %v", _err) }()
	return xsync.DoR1(ctx, &o.locker, func() error {
		if o.closer.IsClosed() {
			return types.Categorizef(types.ErrIO, "the output is already closed")
		}
		if err := o.encode(ctx, nil); err != nil {
			return fmt.Errorf("flushing the encoder: %w", err)
		}
		if err := o.fmtCtx.WriteTrailer(); err != nil {
			return types.Categorizef(types.ErrMediaToolchain, "unable to write the trailer: %w", err)
		}
		o.closeLibav(ctx)
		if err := os.Rename(o.tmpPath, o.Destination); err != nil {
			_ = os.Remove(o.tmpPath)
			return types.Categorizef(types.ErrIO, "unable to move the result into place: %w", err)
		}
		o.finalized = true
		return nil
	})
}

// Discard tears the output down without producing a destination file: the
// temporary file is removed. Safe to call on a partially constructed or
// already finalized Output; after a successful Finalize it is a no-op.
func (o *Output) Discard(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Discard")
	defer func() { logger.Debugf(ctx, "/Discard: %v", _err) }()
	return xsync.DoR1(ctx, &o.locker, func() error {
		if o.finalized {
			return nil
		}
		o.closeLibav(ctx)
		if err := os.Remove(o.tmpPath); err != nil && !os.IsNotExist(err) {
			return types.Categorizef(types.ErrIO, "unable to remove '%s': %w", o.tmpPath, err)
		}
		return nil
	})
}

func (o *Output) closeLibav(ctx context.Context) {
	if o.closer.IsClosed() {
		return
	}
	o.closer.Close(ctx)
	if o.pkt != nil {
		o.pkt.Free()
		o.pkt = nil
	}
	if o.encFrame != nil {
		o.encFrame.Free()
		o.encFrame = nil
	}
	if o.rgbaFrame != nil {
		o.rgbaFrame.Free()
		o.rgbaFrame = nil
	}
	if o.encCodecCtx != nil {
		o.encCodecCtx.Free()
		o.encCodecCtx = nil
	}
	if o.ioCtx != nil {
		if err := o.ioCtx.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the IO context: %v", err)
		}
		o.ioCtx = nil
	}
	// o.fmtCtx and o.swsCtx are freed by their finalizers
}

func (o *Output) String() string {
	return fmt.Sprintf("Output(%s)", o.Destination)
}
