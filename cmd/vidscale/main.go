package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	upscaling "github.com/tom-doerr/video-upscaling"
	"github.com/xaionaro-go/observability"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s <image|video> <path-from> <path-to> [--scale <N>]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	scale := pflag.Uint("scale", upscaling.DefaultScale, "integer upscale factor")
	force := pflag.Bool("force", false, "overwrite the destination if it already exists")
	workers := pflag.Uint("workers", 0, "number of concurrent upscaling workers (0 means the number of CPUs)")
	kernelA := pflag.Float64("kernel-a", 0, "cubic convolution 'a' parameter (0 means the default, -0.5)")
	jpegQuality := pflag.Uint("jpeg-quality", upscaling.DefaultJPEGQuality, "JPEG encoding quality (image mode only)")
	codecName := pflag.String("codec", "", "video encoder name (video mode only; empty means libx264)")
	preset := pflag.String("preset", "", "video encoder preset (video mode only)")
	crf := pflag.String("crf", "", "video constant rate factor (video mode only)")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()
	if len(pflag.Args()) != 3 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	mode := pflag.Arg(0)
	fromPath := pflag.Arg(1)
	toPath := pflag.Arg(2)

	astiav.SetLogLevel(upscaling.LogLevelToAstiav(l.Level()))
	astiav.SetLogCallback(func(c astiav.Classer, level astiav.LogLevel, fmt, msg string) {
		var cs string
		if c != nil {
			if cl := c.Class(); cl != nil {
				cs = " - class: " + cl.String()
			}
		}
		l.Logf(
			upscaling.LogLevelFromAstiav(level),
			"%s%s",
			strings.TrimSpace(msg), cs,
		)
	})

	switch mode {
	case "image":
		err := upscaling.UpscaleImage(ctx, upscaling.ImageConfig{
			Source:      fromPath,
			Destination: toPath,
			Scale:       int(*scale),
			Workers:     int(*workers),
			KernelA:     *kernelA,
			Force:       *force,
			JPEGQuality: int(*jpegQuality),
		})
		if err != nil {
			l.Fatalf("unable to upscale image '%s': %v", fromPath, err)
		}
		fmt.Printf("wrote '%s' (%s)\n", toPath, fileSize(toPath))
	case "video":
		stats := &upscaling.Statistics{}
		ctx, cancelFn := context.WithCancel(ctx)
		observability.Go(ctx, func(ctx context.Context) {
			t := time.NewTicker(time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					statsJSON, err := json.Marshal(stats.Snapshot())
					if err != nil {
						l.Fatal(err)
					}
					fmt.Printf("stats:%s\n", statsJSON)
				}
			}
		})
		summary, err := upscaling.UpscaleVideo(ctx, upscaling.VideoConfig{
			Source:      fromPath,
			Destination: toPath,
			Scale:       int(*scale),
			Workers:     int(*workers),
			KernelA:     *kernelA,
			Force:       *force,
			CodecName:   *codecName,
			Preset:      *preset,
			CRF:         *crf,
			Stats:       stats,
		})
		cancelFn()
		if err != nil {
			l.Fatalf("unable to upscale video '%s': %v", fromPath, err)
		}
		summaryJSON, jsonErr := json.Marshal(summary)
		if jsonErr != nil {
			l.Fatal(jsonErr)
		}
		fmt.Printf("summary:%s\n", summaryJSON)
		fmt.Printf("wrote '%s' (%s)\n", toPath, fileSize(toPath))
	default:
		pflag.Usage()
		os.Exit(1)
	}
}

func fileSize(path string) string {
	st, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}
	return humanize.IBytes(uint64(st.Size()))
}
