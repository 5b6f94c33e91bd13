package pipeline

import (
	"time"

	"github.com/c360/readport/errors"
	"github.com/c360/readport/input/tcp"
	"github.com/c360/readport/message"
	"github.com/c360/readport/output/file"
)

// Default queue sizes between the pipeline stages
const (
	DefaultLineQueue  = 1024
	DefaultFlushQueue = 16
)

// Config is the complete configuration of one device pipeline
type Config struct {
	Device     string
	Input      tcp.Config
	Parser     message.SchemaConfig
	MaxGroups  int // 0 = unlimited
	Output     file.Config
	Checkpoint time.Duration // 0 disables throughput logging

	LineQueue  int
	FlushQueue int

	// ParseLogEvery and ParseLogBurst throttle parse-failure log lines
	ParseLogEvery time.Duration
	ParseLogBurst int
}

// DefaultConfig returns a configuration with the queue and throttle defaults
// filled in; device, input, parser and output still need to be set.
func DefaultConfig() Config {
	return Config{
		Input:         tcp.DefaultConfig(),
		Output:        file.DefaultConfig(),
		LineQueue:     DefaultLineQueue,
		FlushQueue:    DefaultFlushQueue,
		ParseLogEvery: time.Second,
		ParseLogBurst: 10,
	}
}

// Validate checks the configuration and returns the schema it describes
func (c Config) Validate() (*message.Schema, error) {
	if c.Device == "" {
		return nil, errors.Invalidf("pipeline", "Validate", "device name is required")
	}
	if err := c.Input.Validate(); err != nil {
		return nil, err
	}
	schema, err := message.NewSchema(c.Parser)
	if err != nil {
		return nil, err
	}
	if c.MaxGroups < 0 {
		return nil, errors.Invalidf("pipeline", "Validate", "max_groups cannot be negative")
	}
	if err := c.Output.Validate(schema); err != nil {
		return nil, err
	}
	if c.Checkpoint < 0 {
		return nil, errors.Invalidf("pipeline", "Validate", "checkpoint cannot be negative")
	}
	if c.LineQueue < 0 || c.FlushQueue < 0 {
		return nil, errors.Invalidf("pipeline", "Validate", "queue sizes cannot be negative")
	}
	return schema, nil
}
