package upscaling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"

	"github.com/tom-doerr/video-upscaling/frame"
	"github.com/tom-doerr/video-upscaling/logger"
	"github.com/tom-doerr/video-upscaling/media"
	"github.com/tom-doerr/video-upscaling/resample"
	"github.com/tom-doerr/video-upscaling/types"
)

const (
	// DefaultScale is the scale factor used when the caller does not
	// request one.
	DefaultScale = 2

	// defaultInFlightFrames bounds the decode → upscale → encode queues;
	// together with the worker count it caps peak memory at a small
	// constant number of frames, independent of the video length.
	defaultInFlightFrames = 8
)

type VideoConfig struct {
	Source      string
	Destination string

	// Scale is the integer upscale factor, >= 1.
	Scale int

	// Workers is the number of concurrent frame upscalers;
	// 0 means runtime.NumCPU().
	Workers int

	// InFlight bounds the number of decoded-but-not-yet-encoded frames;
	// 0 means defaultInFlightFrames.
	InFlight int

	// KernelA overrides the cubic convolution parameter;
	// 0 means resample.DefaultA.
	KernelA float64

	// Force allows overwriting an existing destination file.
	Force bool

	CodecName string
	Preset    string
	CRF       string

	// Stats, if set, is updated live while the pipeline runs.
	Stats *Statistics
}

// VideoSummary describes a finished video upscale operation.
type VideoSummary struct {
	Frames       int64         `json:"frames"`
	SourceWidth  int           `json:"source_width"`
	SourceHeight int           `json:"source_height"`
	OutputWidth  int           `json:"output_width"`
	OutputHeight int           `json:"output_height"`
	FrameRateNum int           `json:"frame_rate_num"`
	FrameRateDen int           `json:"frame_rate_den"`
	HasAudio     bool          `json:"has_audio"`
	Elapsed      time.Duration `json:"elapsed"`
}

func newUpscalerFor(kernelA float64, workers int) *resample.Upscaler {
	u := resample.NewUpscaler()
	if kernelA != 0 {
		u.Kernel.A = kernelA
	}
	u.Workers = workers
	return u
}

// validateTarget performs the checks that must fail before any media I/O
// starts: the scale factor, the source's existence and the
// overwrite-protection of the destination.
func validateTarget(source, destination string, scale int, force bool) error {
	if scale < 1 {
		return types.Categorizef(types.ErrInvalidInput, "scale factor %d: must be >= 1", scale)
	}
	if _, err := os.Stat(source); err != nil {
		return types.Categorize(types.ErrInvalidInput, fmt.Errorf("source '%s': %w", source, err))
	}
	if !force {
		if _, err := os.Stat(destination); err == nil {
			return types.Categorizef(types.ErrInvalidInput, "destination '%s' already exists (use force to overwrite)", destination)
		} else if !os.IsNotExist(err) {
			return types.Categorize(types.ErrIO, fmt.Errorf("destination '%s': %w", destination, err))
		}
	}
	return nil
}

// UpscaleVideo upscales the video at cfg.Source by cfg.Scale into
// cfg.Destination, preserving frame rate, frame count and the audio
// track. The destination only comes into existence if the whole operation
// succeeds; on any failure (or cancellation) temporary files are cleaned
// up and nothing is left at the destination path.
func UpscaleVideo(ctx context.Context, cfg VideoConfig) (_ret *VideoSummary, _err error) {
	logger.Debugf(ctx, "UpscaleVideo(ctx, '%s' -> '%s' x%d)", cfg.Source, cfg.Destination, cfg.Scale)
	defer func() {
		logger.Debugf(ctx, "/UpscaleVideo(ctx, '%s' -> '%s' x%d): %v", cfg.Source, cfg.Destination, cfg.Scale, _err)
	}()
	start := time.Now()

	if cfg.Stats == nil {
		cfg.Stats = &Statistics{}
	}
	if err := validateTarget(cfg.Source, cfg.Destination, cfg.Scale, cfg.Force); err != nil {
		return nil, err
	}

	info, err := media.Probe(ctx, cfg.Source)
	if err != nil {
		return nil, err
	}
	logger.Infof(
		ctx,
		"source: %dx%d @ %d/%d fps, %d declared frames, audio:%t",
		info.Width, info.Height,
		info.FrameRate.Num(), info.FrameRate.Den(),
		info.DeclaredFrames, info.HasAudio,
	)

	var output *media.Output
	input, err := media.NewInput(ctx, cfg.Source, media.InputConfig{
		OnAudioPacket: func(ctx context.Context, pkt *astiav.Packet, stream *astiav.Stream) error {
			cfg.Stats.AudioPackets.Inc()
			return output.WriteAudioPacket(ctx, pkt, stream)
		},
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := input.Close(xcontext.DetachDone(ctx)); err != nil {
			logger.Errorf(ctx, "unable to close the input: %v", err)
		}
	}()

	output, err = media.NewOutput(ctx, media.OutputConfig{
		Destination:   cfg.Destination,
		Width:         info.Width * cfg.Scale,
		Height:        info.Height * cfg.Scale,
		FrameRate:     info.FrameRate,
		VideoTimeBase: input.VideoTimeBase(),
		AudioStream:   input.AudioStream(),
		CodecName:     cfg.CodecName,
		Preset:        cfg.Preset,
		CRF:           cfg.CRF,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if _err == nil {
			return
		}
		// cleanup has to happen even when ctx is already canceled
		if err := output.Discard(xcontext.DetachDone(ctx)); err != nil {
			logger.Errorf(ctx, "unable to discard the partial output: %v", err)
		}
	}()

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	inFlight := cfg.InFlight
	if inFlight <= 0 {
		inFlight = defaultInFlightFrames
	}

	p := &pipeline{
		// frames are distributed across workers, so each individual
		// upscale runs single-threaded
		upscaler:       newUpscalerFor(cfg.KernelA, 1),
		scale:          cfg.Scale,
		workers:        workers,
		inFlight:       inFlight,
		declaredFrames: info.DeclaredFrames,
		stats:          cfg.Stats,
	}
	if err := p.run(ctx, input, output); err != nil {
		return nil, err
	}
	if err := output.Finalize(ctx); err != nil {
		return nil, err
	}

	summary := &VideoSummary{
		Frames:       cfg.Stats.FramesEncoded.Load(),
		SourceWidth:  info.Width,
		SourceHeight: info.Height,
		OutputWidth:  info.Width * cfg.Scale,
		OutputHeight: info.Height * cfg.Scale,
		FrameRateNum: info.FrameRate.Num(),
		FrameRateDen: info.FrameRate.Den(),
		HasAudio:     info.HasAudio,
		Elapsed:      time.Since(start),
	}
	logger.Infof(ctx, "upscaled %d frames in %s", summary.Frames, summary.Elapsed)
	return summary, nil
}

// frameSink consumes upscaled frames in strict presentation order.
type frameSink interface {
	WriteFrame(ctx context.Context, f *frame.Frame) error
}

// pipeline is the bounded producer/consumer machinery of one video
// upscale: one decoding producer, `workers` upscale workers and one
// encoding consumer, connected by channels of capacity `inFlight`.
// Workers may complete out of order; the consumer re-sequences by frame
// index before writing.
type pipeline struct {
	upscaler       *resample.Upscaler
	scale          int
	workers        int
	inFlight       int
	declaredFrames int64
	stats          *Statistics
}

func (p *pipeline) run(
	ctx context.Context,
	src frame.Source,
	sink frameSink,
) (_err error) {
	logger.Debugf(ctx, "pipeline.run: workers:%d, inFlight:%d", p.workers, p.inFlight)
	defer func() { logger.Debugf(ctx, "/pipeline.run: %v", _err) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	decodedCh := make(chan *frame.Frame, p.inFlight)
	upscaledCh := make(chan *frame.Frame, p.inFlight)
	errCh := make(chan error, p.workers+2)
	fail := func(err error) {
		select {
		case errCh <- err:
		default:
		}
		cancel()
	}

	var producerWG sync.WaitGroup
	producerWG.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer producerWG.Done()
		defer close(decodedCh)
		if err := p.produce(ctx, src, decodedCh); err != nil {
			fail(err)
		}
	})

	var workersWG sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workersWG.Add(1)
		observability.Go(ctx, func(ctx context.Context) {
			defer workersWG.Done()
			if err := p.upscaleLoop(ctx, decodedCh, upscaledCh); err != nil {
				fail(err)
			}
		})
	}
	observability.Go(ctx, func(ctx context.Context) {
		workersWG.Wait()
		close(upscaledCh)
	})

	if err := p.encodeInOrder(ctx, upscaledCh, sink); err != nil {
		fail(err)
	}

	producerWG.Wait()
	workersWG.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (p *pipeline) produce(
	ctx context.Context,
	src frame.Source,
	decodedCh chan<- *frame.Frame,
) error {
	var extracted int64
	for {
		f, err := src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			logger.Debugf(ctx, "the source is exhausted after %d frames", extracted)
			if p.declaredFrames > 0 && extracted != p.declaredFrames {
				return types.Categorizef(
					types.ErrFrameCountMismatch,
					"the container declared %d frames, extraction produced %d",
					p.declaredFrames, extracted,
				)
			}
			return nil
		default:
			return err
		}

		extracted++
		p.stats.FramesDecoded.Inc()
		select {
		case decodedCh <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *pipeline) upscaleLoop(
	ctx context.Context,
	decodedCh <-chan *frame.Frame,
	upscaledCh chan<- *frame.Frame,
) error {
	for f := range decodedCh {
		upscaled, err := p.upscaler.Upscale(ctx, f.Raster, p.scale)
		if err != nil {
			return fmt.Errorf("frame #%d: %w", f.Index, err)
		}
		out := *f
		out.Raster = upscaled
		p.stats.FramesUpscaled.Inc()
		select {
		case upscaledCh <- &out:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// encodeInOrder restores strict FIFO order: frames arrive from the
// workers in completion order, but are written to the sink in index
// order. The pending map is bounded by inFlight + workers.
func (p *pipeline) encodeInOrder(
	ctx context.Context,
	upscaledCh <-chan *frame.Frame,
	sink frameSink,
) error {
	pending := make(map[int64]*frame.Frame, p.inFlight)
	var next int64
	for {
		var f *frame.Frame
		var ok bool
		select {
		case f, ok = <-upscaledCh:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !ok {
			break
		}

		pending[f.Index] = f
		for {
			g, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			logger.Tracef(ctx, "encoding frame #%d (position:%v)", g.Index, media.PTSToDuration(g.PTS, g.TimeBase))
			if err := sink.WriteFrame(ctx, g); err != nil {
				return fmt.Errorf("frame #%d: %w", g.Index, err)
			}
			p.stats.FramesEncoded.Inc()
			next++
		}
	}
	if len(pending) != 0 {
		return fmt.Errorf("internal error: %d frames stuck in the re-sequencer, next expected index is %d", len(pending), next)
	}
	return nil
}
