package message

import (
	"fmt"
	"strings"

	"github.com/c360/readport/errors"
)

// Kind is the declared type of a message field.
// The zero value is KindText, the default for fields without a declared type.
type Kind int

const (
	// KindText is a string value, trimmed of surrounding whitespace
	KindText Kind = iota
	// KindInt is a signed 64-bit integer
	KindInt
	// KindFloat is a 64-bit IEEE float
	KindFloat
)

// String returns the configuration spelling of the kind
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the declared kinds
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindInt, KindFloat:
		return true
	default:
		return false
	}
}

// Numeric reports whether values of this kind are numbers
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat
}

// ParseKind parses a kind name as written in configuration files.
// "str" and "string" are accepted as aliases of "text".
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int", "integer":
		return KindInt, nil
	case "float", "double":
		return KindFloat, nil
	case "text", "str", "string":
		return KindText, nil
	default:
		return KindText, errors.Invalidf("Kind", "ParseKind", "unknown type %q (want int, float or text)", name)
	}
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
