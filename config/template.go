package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/c360/readport/errors"
)

// templateRef matches ${section:key}. "$$" is a literal dollar sign.
var templateRef = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*):([^}]+)\}`)

// Expander resolves ${device:KEY} against one device section and
// ${env:NAME} against the environment
type Expander struct {
	device map[string]string
	lookup func(string) (string, bool)
}

// NewExpander creates an expander for a device section. Only scalar values
// of the section can be referenced.
func NewExpander(device map[string]any) *Expander {
	return &Expander{device: scalarValues(device), lookup: os.LookupEnv}
}

// Expand replaces every reference in s
func (e *Expander) Expand(s string) (string, error) {
	var firstErr error
	out := templateRef.ReplaceAllStringFunc(s, func(ref string) string {
		if ref == "$$" {
			return "$"
		}
		m := templateRef.FindStringSubmatch(ref)
		section, key := m[1], strings.TrimSpace(m[2])

		var (
			val string
			ok  bool
		)
		switch section {
		case "device":
			if e.device == nil {
				if firstErr == nil {
					firstErr = errors.Invalidf("Expander", "Expand", "%s: no device section in scope", ref)
				}
				return ref
			}
			val, ok = e.device[key]
		case "env":
			val, ok = e.lookup(key)
			if ok {
				if err := validateEnvVar(key, val); err != nil && firstErr == nil {
					firstErr = errors.WrapInvalid(err, "Expander", "Expand", ref)
				}
			}
		default:
			if firstErr == nil {
				firstErr = errors.Invalidf("Expander", "Expand", "%s: unknown section %q (want device or env)", ref, section)
			}
			return ref
		}
		if !ok && firstErr == nil {
			firstErr = errors.Invalidf("Expander", "Expand", "%s: %s has no option %q", ref, section, key)
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// HasDeviceRef reports whether s references the device section
func HasDeviceRef(s string) bool {
	for _, m := range templateRef.FindAllStringSubmatch(s, -1) {
		if m[1] == "device" {
			return true
		}
	}
	return false
}

func scalarValues(section map[string]any) map[string]string {
	if section == nil {
		return nil
	}
	out := make(map[string]string, len(section))
	for k, v := range section {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case uint64:
			out[k] = strconv.FormatUint(val, 10)
		default:
			if v != nil {
				if _, nested := v.(map[string]any); !nested {
					if _, list := v.([]any); !list {
						out[k] = fmt.Sprint(v)
					}
				}
			}
		}
	}
	return out
}
