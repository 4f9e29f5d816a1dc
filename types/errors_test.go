package types

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCategorizeMatchesBothChains(t *testing.T) {
	underlying := fmt.Errorf("opening source: %w", fs.ErrNotExist)
	err := Categorize(ErrInvalidInput, underlying)

	require.ErrorIs(t, err, ErrInvalidInput)
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.NotErrorIs(t, err, ErrMediaToolchain)
}

func TestCategorizeNil(t *testing.T) {
	require.NoError(t, Categorize(ErrIO, nil))
}

func TestCategorizeIdempotent(t *testing.T) {
	err := Categorizef(ErrFrameCountMismatch, "declared 10, extracted 9")
	require.Same(t, err, Categorize(ErrFrameCountMismatch, err))
}

func TestCategorizedErrorMessage(t *testing.T) {
	err := Categorize(ErrMalformedRaster, errors.New("ragged rows"))
	require.Equal(t, "malformed raster: ragged rows", err.Error())
}
