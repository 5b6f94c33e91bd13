package message

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/c360/readport/errors"
)

// CoercionError reports a captured token that cannot be converted to its
// declared kind
type CoercionError struct {
	Kind   Kind
	Text   string
	Reason string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot convert %q to %s: %s", e.Text, e.Kind, e.Reason)
}

// Unwrap classifies coercion failures as parsing failures
func (e *CoercionError) Unwrap() error {
	return errors.ErrParsingFailed
}

// CoerceOptions tunes float coercion
type CoerceOptions struct {
	// AllowNonFinite admits NaN and ±Inf tokens as float values
	AllowNonFinite bool
}

// Coerce converts a captured token to kind with the default options:
// NaN and infinity tokens are rejected.
func Coerce(text string, kind Kind) (Value, error) {
	return CoerceWith(text, kind, CoerceOptions{})
}

// CoerceWith converts a captured token to kind.
//
// Surrounding whitespace is trimmed for every kind. Integers are base-10
// signed 64-bit. Floats accept decimal and scientific notation only:
// hexadecimal literals, digit separators and out-of-range values fail.
func CoerceWith(text string, kind Kind, opts CoerceOptions) (Value, error) {
	token := strings.TrimSpace(text)

	switch kind {
	case KindText:
		return TextValue(token), nil

	case KindInt:
		if token == "" {
			return Value{}, &CoercionError{Kind: kind, Text: text, Reason: "empty"}
		}
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return Value{}, &CoercionError{Kind: kind, Text: text, Reason: numErrReason(err)}
		}
		return IntValue(n), nil

	case KindFloat:
		if token == "" {
			return Value{}, &CoercionError{Kind: kind, Text: text, Reason: "empty"}
		}
		if strings.ContainsAny(token, "xX_") {
			return Value{}, &CoercionError{Kind: kind, Text: text, Reason: "not a decimal literal"}
		}
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return Value{}, &CoercionError{Kind: kind, Text: text, Reason: numErrReason(err)}
		}
		if (math.IsNaN(f) || math.IsInf(f, 0)) && !opts.AllowNonFinite {
			return Value{}, &CoercionError{Kind: kind, Text: text, Reason: "non-finite value"}
		}
		return FloatValue(f), nil

	default:
		return Value{}, &CoercionError{Kind: kind, Text: text, Reason: "unknown kind"}
	}
}

func numErrReason(err error) string {
	if ne, ok := err.(*strconv.NumError); ok {
		if ne.Err == strconv.ErrRange {
			return "out of range"
		}
		return "not a number"
	}
	return err.Error()
}
