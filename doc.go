// Package upscaling upscales still images and videos by a positive integer
// factor using bicubic interpolation, preserving the frame rate, frame
// count and audio track of videos.
//
// The resampling engine lives in the resample package; this package
// orchestrates it: the image path decodes/encodes via bild's imgio, the
// video path streams frames through a bounded decode → upscale → encode
// pipeline built on the media package (libav via go-astiav).
package upscaling
