package media

import (
	"math"
	"time"

	"github.com/asticode/go-astiav"
)

const (
	// see https://ffmpeg.org/doxygen/trunk/group__lavu__time.html#ga2eaefe702f95f619ea6f2d08afa01be1
	avNoPTSValue = uint64(0x8000000000000000)
)

const (
	// NoDuration marks a timestamp the container did not provide.
	NoDuration = time.Duration(math.MinInt64)
)

// PTSToDuration converts a timestamp in the given time base into a
// wall-clock position within the stream.
func PTSToDuration(pts int64, timeBase astiav.Rational) time.Duration {
	if uint64(pts) == avNoPTSValue {
		return NoDuration
	}
	return time.Duration(float64(pts) * timeBase.Float64() * float64(time.Second))
}

// DurationToPTS is the inverse of PTSToDuration.
func DurationToPTS(d time.Duration, timeBase astiav.Rational) int64 {
	if d == NoDuration {
		return math.MinInt64 // equivalent to avNoPTSValue
	}
	return int64(d.Seconds() / timeBase.Float64())
}
