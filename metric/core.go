package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the collector
const Namespace = "readport"

// Metrics contains process-level metrics shared by all pipelines.
// Per-device data flow metrics are registered by the components themselves.
type Metrics struct {
	PipelineStatus    *prometheus.GaugeVec
	HealthCheckStatus *prometheus.GaugeVec
	ErrorsTotal       *prometheus.CounterVec
	BuildInfo         *prometheus.GaugeVec
}

// NewMetrics creates the process-level metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PipelineStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "pipeline",
				Name:      "status",
				Help:      "Pipeline status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"device"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"device"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by class",
			},
			[]string{"device", "class"},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "build_info",
				Help:      "Build information, value is always 1",
			},
			[]string{"version"},
		),
	}
}

// Pipeline status values
const (
	StatusStopped = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusFailed
)

// RecordPipelineStatus records a pipeline lifecycle transition
func (c *Metrics) RecordPipelineStatus(device string, status int) {
	c.PipelineStatus.WithLabelValues(device).Set(float64(status))
}

// RecordHealthStatus records the last health check of a pipeline
func (c *Metrics) RecordHealthStatus(device string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(device).Set(value)
}

// RecordError counts an error of the given class
func (c *Metrics) RecordError(device, class string) {
	c.ErrorsTotal.WithLabelValues(device, class).Inc()
}

// RecordBuildInfo publishes the running version
func (c *Metrics) RecordBuildInfo(version string) {
	c.BuildInfo.WithLabelValues(version).Set(1)
}
