package mission

import (
	"errors"
	"fmt"

	"github.com/menta2k/minescan/pkg/preprocess"
)

var (
	// ErrImageLoad is returned when a raw frame is unreadable or corrupt
	ErrImageLoad = preprocess.ErrImageLoad
	// ErrMissingPair is returned when an index lacks its image or its metadata file
	ErrMissingPair = errors.New("missing image/metadata pair")
	// ErrIndexRange is returned when the highest IMG_{i} index is implausibly
	// far beyond the number of indices actually present
	ErrIndexRange = errors.New("image index out of range")
	// ErrMetadataParse is returned when a metadata document is not a JSON object
	ErrMetadataParse = errors.New("malformed metadata")
	// ErrDetector wraps any failure surfaced by the detector. It aborts the whole mission.
	ErrDetector = errors.New("detector failed")
	// ErrWrite is returned when an output path cannot be created or written
	ErrWrite = errors.New("write failed")
)

// IndexError records why one image index could not be annotated
type IndexError struct {
	Index int
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d: %v", e.Index, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
