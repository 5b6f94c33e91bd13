package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/readport/errors"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func documentSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	})
	return compiledSchema, schemaErr
}

// Loader reads configuration files
type Loader struct {
	envPrefix string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader reading READPORT_* overrides from the environment
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "READPORT",
		lookupEnv: os.LookupEnv,
	}
}

// LoadFile loads configuration from a YAML or JSON file
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadFile", "read "+path)
	}
	cfg, err := l.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Load parses a configuration document
func (l *Loader) Load(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "parse configuration")
	}
	if raw == nil {
		return nil, errors.Invalidf("Loader", "Load", "configuration is empty")
	}

	if err := validateDocument(raw); err != nil {
		return nil, err
	}

	merged := deepMergeMaps(defaults(), raw)
	if err := l.expandTemplates(merged); err != nil {
		return nil, err
	}

	// Decode the merged map into the typed configuration
	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode configuration")
	}
	var cfg Config
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode configuration")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// defaults returns the document every file is merged onto
func defaults() map[string]any {
	return map[string]any{
		"logging": map[string]any{
			"level":       "info",
			"format":      "text",
			"max_size_mb": 10,
			"max_backups": 5,
		},
		"metrics": map[string]any{
			"port": 9090,
			"path": "/metrics",
		},
		"shutdown_timeout": "30s",
	}
}

func deviceDefaults() map[string]any {
	return map[string]any{
		"output": map[string]any{
			"format": "npz",
		},
	}
}

// validateDocument checks the raw document against the embedded JSON schema
func validateDocument(raw map[string]any) error {
	schema, err := documentSchema()
	if err != nil {
		return errors.WrapFatal(err, "Loader", "validateDocument", "compile configuration schema")
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return errors.WrapInvalid(err, "Loader", "validateDocument", "validate configuration")
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return errors.Invalidf("Loader", "validateDocument", "%s", strings.Join(problems, "; "))
}

// templatedOutputKeys are the output options that may contain ${...}
var templatedOutputKeys = []string{"destination", "file_prefix", "dead_letter"}

// expandTemplates merges device defaults and resolves references in the
// templated options of every device and in logging.file
func (l *Loader) expandTemplates(doc map[string]any) error {
	devices := GetSlice(doc, "devices")
	var single map[string]any

	for i, item := range devices {
		device, ok := item.(map[string]any)
		if !ok {
			return errors.Invalidf("Loader", "expandTemplates", "devices[%d] is not a mapping", i)
		}
		device = deepMergeMaps(deviceDefaults(), device)
		devices[i] = device
		if len(devices) == 1 {
			single = device
		}

		exp := l.expander(device)
		output := GetMap(device, "output")
		for _, key := range templatedOutputKeys {
			if !HasKey(output, key) {
				continue
			}
			expanded, err := exp.Expand(GetString(output, key, ""))
			if err != nil {
				return fmt.Errorf("devices[%d].output.%s: %w", i, key, err)
			}
			output[key] = expanded
		}
	}

	logging := GetMap(doc, "logging")
	logFile := GetString(logging, "file", "")
	if logFile == "" {
		return nil
	}
	if HasDeviceRef(logFile) && single == nil {
		return errors.Invalidf("Loader", "expandTemplates",
			"logging.file may reference ${device:...} only when exactly one device is configured")
	}
	expanded, err := l.expander(single).Expand(logFile)
	if err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	logging["file"] = expanded
	return nil
}

func (l *Loader) expander(device map[string]any) *Expander {
	exp := NewExpander(device)
	exp.lookup = l.lookupEnv
	return exp
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	env := func(name string) (string, bool, error) {
		key := l.envPrefix + "_" + name
		val, ok := l.lookupEnv(key)
		if !ok || val == "" {
			return "", false, nil
		}
		if err := validateEnvVar(key, val); err != nil {
			return "", false, errors.WrapInvalid(err, "Loader", "applyEnvOverrides", key)
		}
		return val, true, nil
	}

	if val, ok, err := env("LOG_LEVEL"); err != nil {
		return err
	} else if ok {
		cfg.Logging.Level = val
	}
	if val, ok, err := env("LOG_FILE"); err != nil {
		return err
	} else if ok {
		cfg.Logging.File = val
	}
	if val, ok, err := env("METRICS_PORT"); err != nil {
		return err
	} else if ok {
		port, perr := strconv.Atoi(val)
		if perr != nil {
			return errors.Invalidf("Loader", "applyEnvOverrides", "%s_METRICS_PORT=%q is not a port number", l.envPrefix, val)
		}
		cfg.Metrics.Port = port
	}
	if val, ok, err := env("SHUTDOWN_TIMEOUT"); err != nil {
		return err
	} else if ok {
		d, perr := ParseDuration(val)
		if perr != nil {
			return errors.WrapInvalid(perr, "Loader", "applyEnvOverrides", l.envPrefix+"_SHUTDOWN_TIMEOUT")
		}
		cfg.ShutdownTimeout = Duration(d)
	}
	return nil
}

// ShutdownTimeoutOrDefault returns the configured shutdown timeout, 30s when unset
func (c *Config) ShutdownTimeoutOrDefault() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return 30 * time.Second
	}
	return c.ShutdownTimeout.Duration()
}
