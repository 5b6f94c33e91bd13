package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/readport/errors"
	"github.com/c360/readport/message"
	"github.com/c360/readport/output/file"
)

const baseConfig = `
logging:
  level: DEBUG
  file: readport_${device:port}.log
devices:
  - station: MSU
    name: Test
    host: 127.0.0.1
    port: 4001
    timeout: 30
    parser:
      regex: '^(?P<level>\S+) RH= *(?P<rh>\S+) %RH T= *(?P<temp>\S+) .C\s*$'
      types: {rh: float, temp: float}
      group_by: level:int
      pack_length: 12000
    output:
      destination: ./data/
      file_prefix: ${device:station}_${device:name}
`

func testLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return l
}

func TestLoad_Values(t *testing.T) {
	cfg, err := testLoader(nil).Load([]byte(baseConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 1)
	d := cfg.Devices[0]
	assert.Equal(t, "MSU", d.Station)
	assert.Equal(t, "Test", d.Name)
	assert.Equal(t, "127.0.0.1", d.Host)
	assert.Equal(t, 4001, d.Port)
	assert.Equal(t, 30*time.Second, d.Timeout.Duration())
	assert.Equal(t, `^(?P<level>\S+) RH= *(?P<rh>\S+) %RH T= *(?P<temp>\S+) .C\s*$`, d.Parser.Regex)
	assert.Equal(t, "level:int", d.Parser.GroupBy)
	assert.Equal(t, 12000, d.Parser.PackLength)
	assert.Equal(t, "./data/", d.Output.Destination)
	assert.Equal(t, "MSU_Test", d.Output.FilePrefix)
	assert.Equal(t, "npz", d.Output.Format)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "readport_4001.log", cfg.Logging.File)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeoutOrDefault())
	assert.Equal(t, "MSU_Test", d.ID())

	pipelines, err := cfg.Pipelines()
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	pc := pipelines[0]
	assert.Equal(t, "MSU_Test", pc.Device)
	assert.Equal(t, 30*time.Second, pc.Input.IdleTimeout)
	assert.Equal(t, &message.GroupBy{Field: "level", Kind: message.KindInt}, pc.Parser.GroupBy)
	assert.Equal(t, message.KindFloat, pc.Parser.Types["rh"])
	assert.Equal(t, file.FormatNPZ, pc.Output.Format)
}

func TestLoad_NoTimeout(t *testing.T) {
	doc := strings.Replace(baseConfig, "    timeout: 30\n", "", 1)
	cfg, err := testLoader(nil).Load([]byte(doc))
	require.NoError(t, err)
	assert.Zero(t, cfg.Devices[0].Timeout)

	pipelines, err := cfg.Pipelines()
	require.NoError(t, err)
	assert.Zero(t, pipelines[0].Input.IdleTimeout, "no timeout means never force-close")
}

func TestLoad_NoGroupBy(t *testing.T) {
	doc := strings.Replace(baseConfig, "      group_by: level:int\n", "", 1)
	cfg, err := testLoader(nil).Load([]byte(doc))
	require.NoError(t, err)

	pipelines, err := cfg.Pipelines()
	require.NoError(t, err)
	assert.Nil(t, pipelines[0].Parser.GroupBy)
}

func TestLoad_JSONDocument(t *testing.T) {
	doc := `{
  "devices": [{
    "host": "10.0.0.5", "port": 4002, "timeout": "1m",
    "parser": {"regex": "^(?P<u>\\S+) (?P<v>\\S+)$", "types": {"u": "float", "v": "float"}, "pack_length": 10},
    "output": {"destination": "/tmp/out", "format": "msgpack", "retry": {"max_attempts": 2, "initial_delay": 0.5}}
  }]
}`
	cfg, err := testLoader(nil).Load([]byte(doc))
	require.NoError(t, err)
	d := cfg.Devices[0]
	assert.Equal(t, time.Minute, d.Timeout.Duration())
	assert.Equal(t, "10.0.0.5_4002", d.ID())

	pipelines, err := cfg.Pipelines()
	require.NoError(t, err)
	assert.Equal(t, 2, pipelines[0].Output.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, pipelines[0].Output.Retry.InitialDelay)
	assert.Equal(t, file.DefaultConfig().Retry.MaxDelay, pipelines[0].Output.Retry.MaxDelay)
}

func TestLoad_MissingSettings(t *testing.T) {
	doc := `
devices:
  - parser: {}
    output: {}
`
	_, err := testLoader(nil).Load([]byte(doc))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	for _, missing := range []string{"host", "port", "regex", "pack_length", "destination"} {
		assert.Contains(t, err.Error(), missing)
	}
}

func TestLoad_SchemaRejectsUnknownKeys(t *testing.T) {
	doc := strings.Replace(baseConfig, "    timeout: 30\n", "    timeout: 30\n    colour: blue\n", 1)
	_, err := testLoader(nil).Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestLoad_RegexErrors(t *testing.T) {
	tests := []struct {
		name  string
		regex string
	}{
		{"reserved variable", `^x= *(?P<u>\S+) y= *(?P<v>\S+) z= *(?P<w>\S+) T= *(?P<time>\S+).*$`},
		{"invalid regex", `^x= *(?P<u>\S+) y= *(?P<v>\S+) z= *(?P<w>\S+) T= *(?P<temp>\S+.*$`},
		{"unnamed groups", `^x= *(?P<u>\S+) y= *(?P<v>\S+) z= *(?P<w>\S+) T= *(\S+).*$`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `
devices:
  - host: 127.0.0.1
    port: 4001
    parser:
      regex: '` + tt.regex + `'
      pack_length: 12000
    output:
      destination: ./data/
      format: msgpack
`
			_, err := testLoader(nil).Load([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoad_GroupByErrors(t *testing.T) {
	for name, groupBy := range map[string]string{
		"no type":       "level",
		"unknown type":  "level:complex",
		"unknown field": "height:int",
	} {
		t.Run(name, func(t *testing.T) {
			doc := strings.Replace(baseConfig, "group_by: level:int", "group_by: "+groupBy, 1)
			_, err := testLoader(nil).Load([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoad_GroupByConflictsWithTypes(t *testing.T) {
	doc := strings.Replace(baseConfig, "types: {rh: float, temp: float}", "types: {rh: float, temp: float, level: float}", 1)
	_, err := testLoader(nil).Load([]byte(doc))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "group_by")
}

func TestLoad_UnknownType(t *testing.T) {
	doc := strings.Replace(baseConfig, "types: {rh: float, temp: float}", "types: {rh: float, temp: decimal}", 1)
	_, err := testLoader(nil).Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decimal")
}

func TestLoad_NPZRequiresNumericFields(t *testing.T) {
	doc := strings.Replace(baseConfig, "types: {rh: float, temp: float}", "types: {rh: float}", 1)
	_, err := testLoader(nil).Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "npz")
}

func TestLoad_LogFileTemplateNeedsSingleDevice(t *testing.T) {
	doc := baseConfig + `
  - station: MSU
    name: Test2
    host: 127.0.0.1
    port: 4002
    parser:
      regex: '^(?P<v>\S+)$'
      types: {v: float}
      pack_length: 10
    output:
      destination: ./data/
`
	_, err := testLoader(nil).Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one device")

	fixed := strings.Replace(doc, "file: readport_${device:port}.log", "file: readport.log", 1)
	cfg, err := testLoader(nil).Load([]byte(fixed))
	require.NoError(t, err)
	assert.Len(t, cfg.Devices, 2)
}

func TestLoad_DuplicateDevices(t *testing.T) {
	doc := baseConfig + `
  - station: MSU
    name: Test
    host: 127.0.0.1
    port: 4002
    parser:
      regex: '^(?P<v>\S+)$'
      types: {v: float}
      pack_length: 10
    output:
      destination: ./data/
`
	doc = strings.Replace(doc, "file: readport_${device:port}.log", "file: readport.log", 1)
	_, err := testLoader(nil).Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MSU_Test")
}

func TestLoad_EnvTemplatesAndOverrides(t *testing.T) {
	doc := strings.Replace(baseConfig, "destination: ./data/", "destination: ${env:DATA_ROOT}/raw", 1)
	env := map[string]string{
		"DATA_ROOT":             "/srv/readport",
		"READPORT_LOG_LEVEL":    "warn",
		"READPORT_METRICS_PORT": "0",
	}
	cfg, err := testLoader(env).Load([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "/srv/readport/raw", cfg.Devices[0].Output.Destination)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 0, cfg.Metrics.Port)

	_, err = testLoader(map[string]string{}).Load([]byte(doc))
	require.Error(t, err, "unset environment variable")

	env["READPORT_METRICS_PORT"] = "http"
	_, err = testLoader(env).Load([]byte(doc))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseConfig), 0600))

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "MSU_Test", cfg.Devices[0].ID())

	txt := filepath.Join(dir, "readport.txt")
	require.NoError(t, os.WriteFile(txt, []byte(baseConfig), 0600))
	_, err = NewLoader().LoadFile(txt)
	assert.Error(t, err)

	_, err = NewLoader().LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Empty(t *testing.T) {
	_, err := NewLoader().Load([]byte("  \n"))
	assert.Error(t, err)
}
