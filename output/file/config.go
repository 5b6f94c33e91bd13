package file

import (
	"path/filepath"
	"time"

	"github.com/c360/readport/errors"
	"github.com/c360/readport/message"
	"github.com/c360/readport/pkg/retry"
)

// Output formats
const (
	FormatNPZ     = "npz"
	FormatMsgpack = "msgpack"
)

// DeadLetterName is the default dead-letter file inside the destination
const DeadLetterName = "deadletter.jsonl"

// Config holds configuration for the batch writer
type Config struct {
	Destination string       `json:"destination"`
	FilePrefix  string       `json:"file_prefix"`
	Format      string       `json:"format"`
	DeadLetter  string       `json:"dead_letter"`
	Retry       retry.Config `json:"-"`
}

// DefaultConfig returns default configuration for file output
func DefaultConfig() Config {
	return Config{
		Destination: ".",
		Format:      FormatNPZ,
		Retry: retry.Config{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
}

// Validate checks the configuration against the schema it will persist
func (c *Config) Validate(schema *message.Schema) error {
	if c.Destination == "" {
		return errors.Invalidf("Config", "Validate", "output destination is required")
	}

	switch c.Format {
	case FormatNPZ:
		if schema != nil && !schema.AllNumeric() {
			return errors.Invalidf("Config", "Validate",
				"format npz stores numeric arrays only; declare every field int or float or use format msgpack")
		}
	case FormatMsgpack:
	default:
		return errors.Invalidf("Config", "Validate", "format must be one of: npz, msgpack (got %q)", c.Format)
	}

	if c.Retry.MaxAttempts < 0 {
		return errors.Invalidf("Config", "Validate", "retry max_attempts cannot be negative")
	}
	if err := c.Retry.Validate(); err != nil {
		return errors.Invalidf("Config", "Validate", "%v", err)
	}
	return nil
}

// DeadLetterPath returns the dead-letter file, defaulting inside the destination
func (c *Config) DeadLetterPath() string {
	if c.DeadLetter != "" {
		return c.DeadLetter
	}
	return filepath.Join(c.Destination, DeadLetterName)
}
