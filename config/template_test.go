package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpander(t *testing.T) {
	exp := NewExpander(map[string]any{
		"station": "MSU",
		"port":    4001,
		"ratio":   0.5,
		"parser":  map[string]any{"regex": "x"},
	})
	exp.lookup = func(key string) (string, bool) {
		if key == "HOME" {
			return "/home/op", true
		}
		return "", false
	}

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${device:station}_${device:port}", "MSU_4001"},
		{"r=${device:ratio}", "r=0.5"},
		{"${env:HOME}/data", "/home/op/data"},
		{"cost $$5", "cost $5"},
	}
	for _, tt := range tests {
		got, err := exp.Expand(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	for _, bad := range []string{"${device:missing}", "${device:parser}", "${env:NOPE}", "${other:x}"} {
		_, err := exp.Expand(bad)
		assert.Error(t, err, bad)
	}
}

func TestHasDeviceRef(t *testing.T) {
	assert.True(t, HasDeviceRef("log_${device:port}.log"))
	assert.False(t, HasDeviceRef("log_${env:USER}.log"))
	assert.False(t, HasDeviceRef("log.log"))
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`30`)))
	assert.Equal(t, 30*time.Second, d.Duration())
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Duration())
	require.NoError(t, d.UnmarshalJSON([]byte(`"2.5"`)))
	assert.Equal(t, 2500*time.Millisecond, d.Duration())
	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))

	out, err := Duration(time.Minute).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m0s"`, string(out))
}
