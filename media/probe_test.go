package media

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tom-doerr/video-upscaling/types"
)

func TestProbeMissingFile(t *testing.T) {
	info, err := Probe(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))
	require.Nil(t, info)
	require.ErrorIs(t, err, types.ErrMediaToolchain)
}

func TestNewInputMissingFile(t *testing.T) {
	input, err := NewInput(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), InputConfig{})
	require.Nil(t, input)
	require.ErrorIs(t, err, types.ErrMediaToolchain)
}
