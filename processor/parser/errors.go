package parser

import (
	"fmt"

	"github.com/c360/readport/errors"
)

// Reason classifies why a line could not become a record
type Reason int

const (
	// NoMatch means the pattern did not match the line
	NoMatch Reason = iota
	// MissingField means a declared field's group did not participate in the match
	MissingField
	// TypeMismatch means a captured token could not be coerced to its declared kind
	TypeMismatch
)

// String returns the label used in logs and metrics
func (r Reason) String() string {
	switch r {
	case NoMatch:
		return "no_match"
	case MissingField:
		return "missing_field"
	case TypeMismatch:
		return "type_mismatch"
	default:
		return "unknown"
	}
}

// maxQuotedLine bounds how much of an offending line is kept in a failure
const maxQuotedLine = 256

// ParseFailure is returned for a line that does not produce a record.
// It is recoverable: the line is dropped and processing continues.
type ParseFailure struct {
	Reason   Reason
	Line     string
	Field    string
	RawValue string
	Err      error
}

func (f *ParseFailure) Error() string {
	switch f.Reason {
	case MissingField:
		return fmt.Sprintf("parse failure: field %q missing in %q", f.Field, f.Line)
	case TypeMismatch:
		if f.Err != nil {
			return fmt.Sprintf("parse failure: field %q: %v", f.Field, f.Err)
		}
		return fmt.Sprintf("parse failure: field %q: bad value %q", f.Field, f.RawValue)
	default:
		return fmt.Sprintf("parse failure: %s: %q", f.Reason, f.Line)
	}
}

// Unwrap exposes the coercion error, or ErrParsingFailed so failures are
// classified as invalid input
func (f *ParseFailure) Unwrap() error {
	if f.Err != nil {
		return f.Err
	}
	return errors.ErrParsingFailed
}

func quoteLine(line []byte) string {
	if len(line) > maxQuotedLine {
		return string(line[:maxQuotedLine]) + "..."
	}
	return string(line)
}
