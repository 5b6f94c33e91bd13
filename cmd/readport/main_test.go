package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/readport/config"
)

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{"-c", "station.yaml", "-log-level", "debug", "-validate"})
	require.NoError(t, err)
	assert.Equal(t, "station.yaml", cfg.ConfigPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Empty(t, cfg.LogFormat)
	assert.True(t, cfg.Validate)
	assert.False(t, cfg.ShowVersion)
}

func TestValidateFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readport.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices: []\n"), 0o600))

	tests := []struct {
		name    string
		cfg     CLIConfig
		wantErr bool
	}{
		{name: "valid", cfg: CLIConfig{ConfigPath: path}},
		{name: "valid overrides", cfg: CLIConfig{ConfigPath: path, LogLevel: "warn", LogFormat: "json"}},
		{name: "missing file", cfg: CLIConfig{ConfigPath: path + ".missing"}, wantErr: true},
		{name: "bad level", cfg: CLIConfig{ConfigPath: path, LogLevel: "verbose"}, wantErr: true},
		{name: "bad format", cfg: CLIConfig{ConfigPath: path, LogFormat: "xml"}, wantErr: true},
		{name: "version skips checks", cfg: CLIConfig{ConfigPath: path + ".missing", ShowVersion: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetupLogger_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readport_4001.log")

	logger, closer := setupLogger(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		File:       path,
		MaxSizeMB:  10,
		MaxBackups: 5,
	})
	logger.Debug("hidden")
	logger.Info("Connected", "device", "MSU_Test1")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Connected"`)
	assert.Contains(t, string(data), `"device":"MSU_Test1"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readport.yaml")
	doc := `
logging: {level: info, format: json}
devices:
  - station: MSU
    name: Test1
    host: 127.0.0.1
    port: 4001
    parser:
      regex: '^(?P<temp>\S+)$'
      types: {temp: float}
      pack_length: 10
    output:
      destination: ` + t.TempDir() + `
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := loadConfig(&CLIConfig{ConfigPath: path, LogLevel: "debug", LogFormat: "text"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "MSU_Test1", cfg.Devices[0].ID())
}
