package upscaling

import (
	"go.uber.org/atomic"
)

// Statistics are live counters of a running video pipeline; they may be
// read from any goroutine while the pipeline runs.
type Statistics struct {
	FramesDecoded  atomic.Int64
	FramesUpscaled atomic.Int64
	FramesEncoded  atomic.Int64
	AudioPackets   atomic.Int64
}

// StatisticsSnapshot is a plain-value copy of Statistics.
type StatisticsSnapshot struct {
	FramesDecoded  int64 `json:"frames_decoded"`
	FramesUpscaled int64 `json:"frames_upscaled"`
	FramesEncoded  int64 `json:"frames_encoded"`
	AudioPackets   int64 `json:"audio_packets"`
}

func (s *Statistics) Snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		FramesDecoded:  s.FramesDecoded.Load(),
		FramesUpscaled: s.FramesUpscaled.Load(),
		FramesEncoded:  s.FramesEncoded.Load(),
		AudioPackets:   s.AudioPackets.Load(),
	}
}
