package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/readport/errors"
	"github.com/c360/readport/input/tcp"
	"github.com/c360/readport/message"
	"github.com/c360/readport/output/file"
	"github.com/c360/readport/pipeline"
)

// Config is the whole configuration file
type Config struct {
	Logging         LoggingConfig  `json:"logging"`
	Metrics         MetricsConfig  `json:"metrics"`
	ShutdownTimeout Duration       `json:"shutdown_timeout"`
	Devices         []DeviceConfig `json:"devices"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Format     string `json:"format"` // text, json
	File       string `json:"file"`   // optional rotating log file, tee'd with stdout
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// MetricsConfig configures the metrics and health endpoint
type MetricsConfig struct {
	Port int    `json:"port"` // 0 disables the endpoint
	Path string `json:"path"`
}

// DeviceConfig describes one instrument and how its messages are stored
type DeviceConfig struct {
	Station      string       `json:"station"`
	Name         string       `json:"name"`
	Host         string       `json:"host"`
	Port         int          `json:"port"`
	Timeout      Duration     `json:"timeout"` // idle timeout; plain numbers are seconds, 0 = never
	DialTimeout  Duration     `json:"dial_timeout"`
	Encoding     string       `json:"encoding"`
	Checkpoint   Duration     `json:"checkpoint"`
	MaxLineBytes int          `json:"max_line_bytes"`
	Reconnect    RetryConfig  `json:"reconnect"`
	Parser       ParserConfig `json:"parser"`
	Output       OutputConfig `json:"output"`
	LineQueue    int          `json:"line_queue"`
	FlushQueue   int          `json:"flush_queue"`
}

// ParserConfig describes the message format
type ParserConfig struct {
	Regex          string            `json:"regex"`
	Fields         []string          `json:"fields"`
	Types          map[string]string `json:"types"`
	GroupBy        string            `json:"group_by"` // <field>:<int|float|text>
	PackLength     int               `json:"pack_length"`
	Multiplier     float64           `json:"multiplier"`
	AllowNonFinite bool              `json:"allow_non_finite"`
	MaxGroups      int               `json:"max_groups"`
}

// OutputConfig describes where batch files go
type OutputConfig struct {
	Destination string      `json:"destination"`
	FilePrefix  string      `json:"file_prefix"`
	Format      string      `json:"format"`
	DeadLetter  string      `json:"dead_letter"`
	Retry       RetryConfig `json:"retry"`
}

// RetryConfig overrides parts of a backoff; zero fields keep the default
type RetryConfig struct {
	MaxAttempts  int      `json:"max_attempts"`
	InitialDelay Duration `json:"initial_delay"`
	MaxDelay     Duration `json:"max_delay"`
}

// ID names the device in logs, metrics and health reports:
// "<station>_<name>" when either is set, "<host>_<port>" otherwise.
func (d DeviceConfig) ID() string {
	var parts []string
	for _, p := range []string{d.Station, d.Name} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s_%d", d.Host, d.Port)
	}
	return strings.Join(parts, "_")
}

// PipelineConfig converts the device section into a pipeline configuration
func (d DeviceConfig) PipelineConfig() (pipeline.Config, error) {
	pc := pipeline.DefaultConfig()
	pc.Device = d.ID()

	pc.Input = tcp.DefaultConfig()
	pc.Input.Host = d.Host
	pc.Input.Port = d.Port
	pc.Input.IdleTimeout = d.Timeout.Duration()
	if d.DialTimeout > 0 {
		pc.Input.DialTimeout = d.DialTimeout.Duration()
	}
	pc.Input.Encoding = d.Encoding
	if d.MaxLineBytes > 0 {
		pc.Input.MaxLineBytes = d.MaxLineBytes
	}
	d.Reconnect.apply(&pc.Input.Backoff.MaxAttempts, &pc.Input.Backoff.InitialDelay, &pc.Input.Backoff.MaxDelay)

	groupBy, err := message.ParseGroupBy(d.Parser.GroupBy)
	if err != nil {
		return pc, err
	}
	types := make(map[string]message.Kind, len(d.Parser.Types))
	for name, kindName := range d.Parser.Types {
		kind, err := message.ParseKind(kindName)
		if err != nil {
			return pc, errors.Invalidf("DeviceConfig", "PipelineConfig", "types.%s: unknown type %q", name, kindName)
		}
		types[name] = kind
	}
	pc.Parser = message.SchemaConfig{
		Pattern:        d.Parser.Regex,
		Fields:         d.Parser.Fields,
		Types:          types,
		GroupBy:        groupBy,
		PackLength:     d.Parser.PackLength,
		Multiplier:     d.Parser.Multiplier,
		AllowNonFinite: d.Parser.AllowNonFinite,
	}
	pc.MaxGroups = d.Parser.MaxGroups

	pc.Output = file.DefaultConfig()
	pc.Output.Destination = d.Output.Destination
	pc.Output.FilePrefix = d.Output.FilePrefix
	if d.Output.Format != "" {
		pc.Output.Format = strings.ToLower(d.Output.Format)
	}
	pc.Output.DeadLetter = d.Output.DeadLetter
	d.Output.Retry.apply(&pc.Output.Retry.MaxAttempts, &pc.Output.Retry.InitialDelay, &pc.Output.Retry.MaxDelay)

	pc.Checkpoint = d.Checkpoint.Duration()
	if d.LineQueue > 0 {
		pc.LineQueue = d.LineQueue
	}
	if d.FlushQueue > 0 {
		pc.FlushQueue = d.FlushQueue
	}
	return pc, nil
}

func (r RetryConfig) apply(maxAttempts *int, initial, maxDelay *time.Duration) {
	if r.MaxAttempts > 0 {
		*maxAttempts = r.MaxAttempts
	}
	if r.InitialDelay > 0 {
		*initial = r.InitialDelay.Duration()
	}
	if r.MaxDelay > 0 {
		*maxDelay = r.MaxDelay.Duration()
	}
}

// Pipelines validates every device section and returns their pipeline
// configurations in file order
func (c *Config) Pipelines() ([]pipeline.Config, error) {
	if len(c.Devices) == 0 {
		return nil, errors.Invalidf("Config", "Pipelines", "at least one device is required")
	}

	seen := make(map[string]int, len(c.Devices))
	out := make([]pipeline.Config, 0, len(c.Devices))
	for i, d := range c.Devices {
		id := d.ID()
		if prev, dup := seen[id]; dup {
			return nil, errors.Invalidf("Config", "Pipelines",
				"devices[%d] and devices[%d] are both named %q; set station/name to tell them apart", prev, i, id)
		}
		seen[id] = i

		pc, err := d.PipelineConfig()
		if err != nil {
			return nil, fmt.Errorf("devices[%d] (%s): %w", i, id, err)
		}
		if _, err := pc.Validate(); err != nil {
			return nil, fmt.Errorf("devices[%d] (%s): %w", i, id, err)
		}
		out = append(out, pc)
	}
	return out, nil
}

// Validate checks the whole configuration, including building every device's
// message schema
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Invalidf("Config", "Validate", "logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return errors.Invalidf("Config", "Validate", "logging.format must be text or json (got %q)", c.Logging.Format)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return errors.Invalidf("Config", "Validate", "metrics.port %d out of range", c.Metrics.Port)
	}
	if c.ShutdownTimeout < 0 {
		return errors.Invalidf("Config", "Validate", "shutdown_timeout cannot be negative")
	}
	_, err := c.Pipelines()
	return err
}
