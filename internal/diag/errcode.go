package diag

import (
	"context"
	"errors"
	"os"

	"flowset/internal/contract"
)

// Code is a short error category used in logs and run reports.
type Code string

const (
	CodeUnknown       Code = "unknown"
	CodeMissingSource Code = "missing_source"
	CodeNoFlow        Code = "no_flow"
	CodeDecode        Code = "decode"
	CodeWrite         Code = "write"
	CodeUnknownLabel  Code = "unknown_label"
	CodeCardinality   Code = "cardinality"
	CodeCancel        Code = "cancel"
	CodeIO            Code = "io"
)

// Classify maps an error to its category using sentinels and error types
// only, never message text.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	var ce *contract.CardinalityError
	if errors.As(err, &ce) {
		return CodeCardinality
	}
	var we *contract.WriteError
	if errors.As(err, &we) || errors.Is(err, contract.ErrSealed) {
		return CodeWrite
	}
	switch {
	case errors.Is(err, contract.ErrMissingSource):
		return CodeMissingSource
	case errors.Is(err, contract.ErrNoFlowExtracted):
		return CodeNoFlow
	case errors.Is(err, contract.ErrDecode):
		return CodeDecode
	case errors.Is(err, contract.ErrUnknownLabel):
		return CodeUnknownLabel
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}
