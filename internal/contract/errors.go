package contract

import (
	"errors"
	"fmt"
)

// Per-record and per-image failures. None of them aborts a chunk.
var (
	// ErrMissingSource: the expected video file does not exist.
	ErrMissingSource = errors.New("source video missing")
	// ErrNoFlowExtracted: the video decoded but produced no averaged flow window.
	ErrNoFlowExtracted = errors.New("no flow extracted")
	// ErrDecode: the decoder could not open or read the video.
	ErrDecode = errors.New("video decode failed")
	// ErrUnknownLabel: a record's label has no id in the label index.
	ErrUnknownLabel = errors.New("label not in index")
	// ErrSealed: append attempted on a closed container.
	ErrSealed = errors.New("container is sealed")
)

// CardinalityError reports a corpus whose number of distinct labels differs
// from the expected class count. It is the only fatal dataset error.
type CardinalityError struct {
	Got  int
	Want int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("label cardinality mismatch: found %d distinct labels, expected %d", e.Got, e.Want)
}

// WriteError reports a single image that could not be appended to a chunk
// container.
type WriteError struct {
	RecordID string
	Image    int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write image %d of %s: %v", e.Image, e.RecordID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
