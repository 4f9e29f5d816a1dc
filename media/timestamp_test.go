package media

import (
	"math"
	"testing"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
)

func TestPTSToDuration(t *testing.T) {
	tb := astiav.NewRational(1, 90000)
	require.Equal(t, time.Second, PTSToDuration(90000, tb))
	require.Equal(t, 500*time.Millisecond, PTSToDuration(45000, tb))
	require.Equal(t, NoDuration, PTSToDuration(math.MinInt64, tb))
}

func TestDurationToPTS(t *testing.T) {
	tb := astiav.NewRational(1, 90000)
	require.Equal(t, int64(90000), DurationToPTS(time.Second, tb))
	require.Equal(t, int64(math.MinInt64), DurationToPTS(NoDuration, tb))
}
