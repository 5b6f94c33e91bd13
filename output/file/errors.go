package file

import (
	"fmt"

	"github.com/c360/readport/errors"
)

// FailureKind tells IO failures, which are retried, from encoding failures,
// which are not
type FailureKind int

const (
	// IOFailure is a filesystem error: disk full, permissions, missing mount
	IOFailure FailureKind = iota
	// EncodingFailure means the batch could not be serialised
	EncodingFailure
	// Abandoned means shutdown ran out of time before the batch was written
	Abandoned
)

// String returns the label used in logs and metrics
func (k FailureKind) String() string {
	switch k {
	case IOFailure:
		return "io"
	case EncodingFailure:
		return "encoding"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// WriteError reports a batch that could not be persisted
type WriteError struct {
	Kind     FailureKind
	Path     string
	Group    string
	Records  int
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	target := e.Path
	if target == "" {
		target = "group " + e.Group
	}
	return fmt.Sprintf("write %d records to %s: %s failure after %d attempt(s): %v",
		e.Records, target, e.Kind, e.Attempts, e.Err)
}

// Unwrap exposes both the cause and the sentinel of the failure kind, so IO
// failures classify as transient and encoding failures as invalid
func (e *WriteError) Unwrap() []error {
	sentinel := errors.ErrStorageUnavailable
	if e.Kind == EncodingFailure {
		sentinel = errors.ErrEncodingFailed
	}
	return []error{sentinel, e.Err}
}
