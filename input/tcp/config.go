package tcp

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/c360/readport/errors"
	"github.com/c360/readport/pkg/retry"
)

// DefaultMaxLineBytes bounds a single line; longer lines are discarded
const DefaultMaxLineBytes = 64 * 1024

// Config configures the device connection
type Config struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	IdleTimeout  time.Duration `json:"idle_timeout"` // 0 = never force-close an idle connection
	DialTimeout  time.Duration `json:"dial_timeout"`
	Encoding     string        `json:"encoding"` // "", latin1, windows-1252, windows-1251
	MaxLineBytes int           `json:"max_line_bytes"`
	Backoff      retry.Config  `json:"-"`
}

// DefaultConfig returns the connection defaults without an address
func DefaultConfig() Config {
	return Config{
		DialTimeout:  10 * time.Second,
		MaxLineBytes: DefaultMaxLineBytes,
		Backoff:      retry.Reconnect(),
	}
}

// Address returns host:port
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.Invalidf("tcp-input", "Validate", "host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Invalidf("tcp-input", "Validate", "invalid port %d", c.Port)
	}
	if c.IdleTimeout < 0 {
		return errors.Invalidf("tcp-input", "Validate", "idle timeout cannot be negative")
	}
	if c.DialTimeout < 0 {
		return errors.Invalidf("tcp-input", "Validate", "dial timeout cannot be negative")
	}
	if c.MaxLineBytes < 0 {
		return errors.Invalidf("tcp-input", "Validate", "max line bytes cannot be negative")
	}
	if _, err := LookupEncoding(c.Encoding); err != nil {
		return err
	}
	if err := c.Backoff.Validate(); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"tcp-input", "Validate", "reconnect backoff")
	}
	return nil
}

// LookupEncoding maps an encoding name to its 8-bit charset. The empty name,
// "ascii" and "utf-8" mean no decoding and return nil.
func LookupEncoding(name string) (*charmap.Charmap, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ascii", "utf-8", "utf8":
		return nil, nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251, nil
	default:
		return nil, errors.Invalidf("tcp-input", "LookupEncoding", "unsupported encoding %q", name)
	}
}
