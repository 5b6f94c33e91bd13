package file

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/readport/metric"
)

// Metrics holds Prometheus metrics for the batch writer
type Metrics struct {
	batchesWritten prometheus.Counter
	recordsWritten prometheus.Counter
	bytesWritten   prometheus.Counter
	writeFailures  *prometheus.CounterVec
	deadLettered   prometheus.Counter
	recordsLost    prometheus.Counter
	flushDuration  prometheus.Histogram
}

func newMetrics(registry *metric.MetricsRegistry, device string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"device": device}
	m := &Metrics{
		batchesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "output",
			Name:        "batches_written_total",
			Help:        "Total number of batch files written",
			ConstLabels: labels,
		}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "output",
			Name:        "records_written_total",
			Help:        "Total number of records persisted in batch files",
			ConstLabels: labels,
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "output",
			Name:        "bytes_written_total",
			Help:        "Total number of bytes written to batch files",
			ConstLabels: labels,
		}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "output",
			Name:        "write_failures_total",
			Help:        "Total number of batches that could not be written, by failure kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		deadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "output",
			Name:        "records_dead_lettered_total",
			Help:        "Total number of records appended to the dead-letter file",
			ConstLabels: labels,
		}),
		recordsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "output",
			Name:        "records_lost_total",
			Help:        "Total number of records neither written nor dead-lettered",
			ConstLabels: labels,
		}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "output",
			Name:        "flush_duration_seconds",
			Help:        "Time to encode and write one batch, including retries",
			ConstLabels: labels,
			Buckets:     []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	if err := registry.RegisterCounter(device, "output_batches_written", m.batchesWritten); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(device, "output_records_written", m.recordsWritten); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(device, "output_bytes_written", m.bytesWritten); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(device, "output_write_failures", m.writeFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(device, "output_records_dead_lettered", m.deadLettered); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(device, "output_records_lost", m.recordsLost); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(device, "output_flush_duration", m.flushDuration); err != nil {
		return nil, err
	}
	return m, nil
}
