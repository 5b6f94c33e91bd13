package pack

import (
	"github.com/c360/readport/errors"
	"github.com/c360/readport/metric"
)

// Option configures a Buffer
type Option func(*bufferOptions)

type bufferOptions struct {
	maxGroups int

	// metricsReg is optional; when set buffer occupancy is exported
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithMaxGroups bounds the number of live groups. When a record of a new
// group would exceed the bound, the least recently admitted group is evicted
// and its partial batch released. Zero means unbounded.
func WithMaxGroups(n int) Option {
	return func(o *bufferOptions) {
		o.maxGroups = n
	}
}

// WithMetrics exports buffer metrics labelled with device.
// A nil registry or empty device is ignored.
func WithMetrics(registry *metric.MetricsRegistry, device string) Option {
	return func(o *bufferOptions) {
		if registry != nil && device != "" {
			o.metricsReg = registry
			o.metricsPrefix = device
		}
	}
}

func applyOptions(opts ...Option) *bufferOptions {
	o := &bufferOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func errPackLength(n int) error {
	return errors.Invalidf("Buffer", "NewBuffer", "pack length must be >= 1, got %d", n)
}

func errMaxGroups(n int) error {
	return errors.Invalidf("Buffer", "NewBuffer", "max groups must be >= 0, got %d", n)
}
