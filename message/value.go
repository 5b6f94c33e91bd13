package message

import (
	"math"
	"strconv"
)

// Value is a coerced field value: exactly one of an int, a float or a text,
// selected by Kind. The zero Value is the empty text.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// IntValue returns an integer Value
func IntValue(v int64) Value {
	return Value{kind: KindInt, i: v}
}

// FloatValue returns a float Value
func FloatValue(v float64) Value {
	return Value{kind: KindFloat, f: v}
}

// TextValue returns a text Value
func TextValue(s string) Value {
	return Value{kind: KindText, s: s}
}

// Kind returns which variant the value holds
func (v Value) Kind() Kind {
	return v.kind
}

// Int returns the integer payload; zero for other kinds
func (v Value) Int() int64 {
	return v.i
}

// Float returns the float payload. Integer values are converted.
func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return float64(v.i)
	default:
		return math.NaN()
	}
}

// Text returns the text payload; empty for other kinds
func (v Value) Text() string {
	return v.s
}

// String formats the value the way it appears in file names and logs
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return v.s
	}
}

// Equal reports whether both values have the same kind and payload.
// NaN floats compare equal to each other so records round-trip in tests.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == other.i
	case KindFloat:
		if math.IsNaN(v.f) && math.IsNaN(other.f) {
			return true
		}
		return v.f == other.f
	default:
		return v.s == other.s
	}
}
