package tcp

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/readport/metric"
)

// Metrics holds Prometheus metrics for the device connection
type Metrics struct {
	linesReceived   prometheus.Counter
	bytesReceived   prometheus.Counter
	linesTooLong    prometheus.Counter
	reconnects      prometheus.Counter
	connectFailures prometheus.Counter
	idleTimeouts    prometheus.Counter
	connectionState prometheus.Gauge
}

func newMetrics(registry *metric.MetricsRegistry, device string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"device": device}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "input",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &Metrics{
		linesReceived:   counter("lines_received_total", "Total number of complete lines read from the device"),
		bytesReceived:   counter("bytes_received_total", "Total number of bytes read from the device"),
		linesTooLong:    counter("lines_too_long_total", "Total number of lines discarded for exceeding the maximum length"),
		reconnects:      counter("reconnects_total", "Total number of successful connections after the first"),
		connectFailures: counter("connect_failures_total", "Total number of failed connection attempts"),
		idleTimeouts:    counter("idle_timeouts_total", "Total number of connections closed for inactivity"),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "input",
			Name:        "connection_state",
			Help:        "Connection state (0=disconnected, 1=connecting, 2=connected, 3=idle_timed_out)",
			ConstLabels: labels,
		}),
	}

	counters := map[string]prometheus.Counter{
		"input_lines_received":   m.linesReceived,
		"input_bytes_received":   m.bytesReceived,
		"input_lines_too_long":   m.linesTooLong,
		"input_reconnects":       m.reconnects,
		"input_connect_failures": m.connectFailures,
		"input_idle_timeouts":    m.idleTimeouts,
	}
	for name, c := range counters {
		if err := registry.RegisterCounter(device, name, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(device, "input_connection_state", m.connectionState); err != nil {
		return nil, err
	}
	return m, nil
}
