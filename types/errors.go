// Package types holds value types and the error taxonomy shared across the
// video-upscaling project.
package types

import (
	"errors"
	"fmt"
)

// The error categories of the project. Every error returned by the public
// API matches exactly one of these via errors.Is; the underlying diagnostic
// is preserved in the wrap chain.
var (
	// ErrInvalidInput: bad scale factor, missing input file, refusing to
	// overwrite. Detected before any resampling work begins.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedRaster: a decoded image violates the raster invariants.
	ErrMalformedRaster = errors.New("malformed raster")

	// ErrFrameCountMismatch: extraction produced a different number of
	// frames than the container declared.
	ErrFrameCountMismatch = errors.New("frame count mismatch")

	// ErrMediaToolchain: libav reported a failure; wraps the underlying
	// diagnostic.
	ErrMediaToolchain = errors.New("media toolchain failure")

	// ErrIO: read/write/temp-storage failure outside of libav.
	ErrIO = errors.New("i/o failure")
)

type categorizedError struct {
	category error
	err      error
}

func (e *categorizedError) Error() string {
	return fmt.Sprintf("%s: %v", e.category, e.err)
}

func (e *categorizedError) Unwrap() []error {
	return []error{e.category, e.err}
}

// Categorize attaches one of the category sentinels above to err, so that
// errors.Is matches both the category and everything already in err's
// chain. A nil err stays nil; an err already carrying the category is
// returned unchanged.
func Categorize(category, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, category) {
		return err
	}
	return &categorizedError{category: category, err: err}
}

// Categorizef is Categorize over a freshly formatted error.
func Categorizef(category error, format string, args ...any) error {
	return Categorize(category, fmt.Errorf(format, args...))
}
