package pack

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/readport/metric"
)

type bufferMetrics struct {
	admitted prometheus.Counter
	batches  *prometheus.CounterVec
	buffered prometheus.Gauge
	groups   prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, device string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"device": device}
	m := &bufferMetrics{
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "records_admitted_total",
			ConstLabels: labels,
			Help:        "Total number of parsed records admitted to the buffer",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "batches_released_total",
			ConstLabels: labels,
			Help:        "Total number of batches released, by reason",
		}, []string{"reason"}),
		buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "buffered_records",
			ConstLabels: labels,
			Help:        "Records currently buffered across all groups",
		}),
		groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "groups",
			ConstLabels: labels,
			Help:        "Number of live groups",
		}),
	}

	if err := registry.RegisterCounter(device, "buffer_records_admitted", m.admitted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(device, "buffer_batches_released", m.batches); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(device, "buffer_buffered_records", m.buffered); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(device, "buffer_groups", m.groups); err != nil {
		return nil, err
	}
	return m, nil
}
