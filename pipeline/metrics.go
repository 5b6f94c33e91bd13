package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/readport/metric"
)

// Metrics holds the coordinator's Prometheus metrics
type Metrics struct {
	linesProcessed prometheus.Counter
	parseFailures  *prometheus.CounterVec
	batchesQueued  *prometheus.CounterVec
	batchesDropped prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry, device string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"device": device}
	m := &Metrics{
		linesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "pipeline",
			Name:        "lines_processed_total",
			Help:        "Total number of lines handed to the extractor",
			ConstLabels: labels,
		}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "pipeline",
			Name:        "parse_failures_total",
			Help:        "Total number of lines that did not produce a record, by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		batchesQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "pipeline",
			Name:        "batches_queued_total",
			Help:        "Total number of batches handed to the writer, by release reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		batchesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "pipeline",
			Name:        "batches_dropped_total",
			Help:        "Total number of batches the writer never reached before the shutdown deadline; each is dead-lettered",
			ConstLabels: labels,
		}),
	}

	if err := registry.RegisterCounter(device, "pipeline_lines_processed", m.linesProcessed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(device, "pipeline_parse_failures", m.parseFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(device, "pipeline_batches_queued", m.batchesQueued); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(device, "pipeline_batches_dropped", m.batchesDropped); err != nil {
		return nil, err
	}
	return m, nil
}
