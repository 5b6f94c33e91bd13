// Package worker provides a generic worker pool for concurrent task processing
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/readport/metric"
)

// Pool represents a generic worker pool that can process any work type T
type Pool[T any] struct {
	// Configuration
	workers   int
	queueSize int
	processor func(context.Context, T) error

	// Runtime state
	workChan chan T
	metrics  *Metrics
	wg       *sync.WaitGroup
	// exited is closed once every worker goroutine has returned
	exited chan struct{}

	// quit is closed when Stop begins, releasing blocked SubmitWait callers
	quit chan struct{}

	// Lifecycle management. Submitters hold sendMu for reading while
	// sending; Stop takes it for writing before closing workChan.
	lifecycleMu sync.Mutex
	sendMu      sync.RWMutex
	started     bool
	stopped     bool

	// Statistics (atomic)
	submitted int64
	processed int64
	failed    int64
	abandoned int64
	busy      int64

	// Metrics configuration
	metricsRegistry *metric.MetricsRegistry
	metricsService  string
	metricsSubsys   string
}

// Metrics holds Prometheus metrics for worker pool monitoring
type Metrics struct {
	queueDepth     prometheus.Gauge
	utilization    prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	abandoned      prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option represents a configuration option for the worker pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers pool metrics under service (the device name)
// with the given subsystem, e.g. "writer_queue"
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, service, subsystem string) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
		p.metricsService = service
		p.metricsSubsys = subsystem
	}
}

// NewPool creates a new generic worker pool with optional configuration
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	pool := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
		quit:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(pool)
	}

	if pool.metricsRegistry != nil && pool.metricsService != "" {
		pool.metrics = pool.initializeMetrics()
	}

	return pool
}

// initializeMetrics creates and registers metrics. Any registration failure
// leaves the pool without metrics.
func (p *Pool[T]) initializeMetrics() *Metrics {
	labels := prometheus.Labels{"device": p.metricsService}
	subsystem := p.metricsSubsys
	if subsystem == "" {
		subsystem = "worker_pool"
	}

	m := &Metrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: subsystem, Name: "queue_depth",
			Help: "Current worker pool queue depth", ConstLabels: labels,
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: subsystem, Name: "utilization",
			Help: "Worker pool utilization (0-1)", ConstLabels: labels,
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: subsystem, Name: "submitted_total",
			Help: "Total work items submitted", ConstLabels: labels,
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: subsystem, Name: "processed_total",
			Help: "Total work items processed", ConstLabels: labels,
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: subsystem, Name: "failed_total",
			Help: "Total work items that failed processing", ConstLabels: labels,
		}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: subsystem, Name: "abandoned_total",
			Help: "Total queued work items taken back unprocessed after a stop timeout", ConstLabels: labels,
		}),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace, Subsystem: subsystem, Name: "processing_duration_seconds",
			Help:        "Time spent processing work items",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			ConstLabels: labels,
		}, []string{"status"}),
	}

	reg := p.metricsRegistry
	svc := p.metricsService
	for _, err := range []error{
		reg.RegisterGauge(svc, subsystem+"_queue_depth", m.queueDepth),
		reg.RegisterGauge(svc, subsystem+"_utilization", m.utilization),
		reg.RegisterCounter(svc, subsystem+"_submitted", m.submitted),
		reg.RegisterCounter(svc, subsystem+"_processed", m.processed),
		reg.RegisterCounter(svc, subsystem+"_failed", m.failed),
		reg.RegisterCounter(svc, subsystem+"_abandoned", m.abandoned),
		reg.RegisterHistogramVec(svc, subsystem+"_processing_duration", m.processingTime),
	} {
		if err != nil {
			return nil
		}
	}
	return m
}

// SubmitWait submits work, blocking while the queue is full. It returns
// ctx.Err() if ctx ends first and ErrPoolStopped if the pool stops first.
// Blocking here is the backpressure path: a slow processor slows producers
// instead of losing work.
func (p *Pool[T]) SubmitWait(ctx context.Context, work T) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	if err := p.checkOpen(); err != nil {
		return err
	}

	select {
	case p.workChan <- work:
		p.recordSubmit()
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool[T]) checkOpen() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}
	return nil
}

func (p *Pool[T]) recordSubmit() {
	atomic.AddInt64(&p.submitted, 1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
		p.metrics.queueDepth.Set(float64(len(p.workChan)))
	}
}

// Start starts the worker pool. Workers run until Stop drains the queue or
// ctx is cancelled.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	p.wg = &sync.WaitGroup{}
	p.exited = make(chan struct{})

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	if p.metrics != nil {
		p.wg.Add(1)
		go p.metricsUpdater(ctx)
	}

	go func(wg *sync.WaitGroup, exited chan struct{}) {
		wg.Wait()
		close(exited)
	}(p.wg, p.exited)

	p.started = true
	return nil
}

// Stop closes the queue and waits up to timeout for the workers to finish
// every item already queued
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.quit)
	p.lifecycleMu.Unlock()

	// Wait out in-flight Submit calls before closing the channel
	p.sendMu.Lock()
	close(p.workChan)
	p.sendMu.Unlock()

	return p.Wait(timeout)
}

// Wait blocks until every worker has returned, up to timeout. Workers return
// once the queue is closed and empty, or as soon as the context given to
// Start is cancelled and their current item finishes.
func (p *Pool[T]) Wait(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	exited := p.exited
	p.lifecycleMu.Unlock()
	if exited == nil {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-exited:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Abandon removes every item still queued after Stop and returns them
// unprocessed, in queue order. Callers use it when Stop timed out, before
// cancelling the Start context, so that no queued item goes unaccounted for.
// Before Stop it returns nil.
func (p *Pool[T]) Abandon() []T {
	p.lifecycleMu.Lock()
	stopped := p.stopped
	p.lifecycleMu.Unlock()
	if !stopped {
		return nil
	}

	var left []T
	for work := range p.workChan {
		left = append(left, work)
	}

	atomic.AddInt64(&p.abandoned, int64(len(left)))
	if p.metrics != nil {
		p.metrics.abandoned.Add(float64(len(left)))
		p.metrics.queueDepth.Set(0)
	}
	return left
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Busy:       int(atomic.LoadInt64(&p.busy)),
		Submitted:  atomic.LoadInt64(&p.submitted),
		Processed:  atomic.LoadInt64(&p.processed),
		Failed:     atomic.LoadInt64(&p.failed),
		Abandoned:  atomic.LoadInt64(&p.abandoned),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Busy       int   `json:"busy"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Abandoned  int64 `json:"abandoned"`
}

// Pending returns queued plus in-progress items
func (s PoolStats) Pending() int {
	return s.QueueDepth + s.Busy
}

// worker processes work items until the queue is closed and empty or ctx ends
func (p *Pool[T]) worker(ctx context.Context, _ int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}

			atomic.AddInt64(&p.busy, 1)
			start := time.Now()
			err := p.processor(ctx, work)
			duration := time.Since(start)
			atomic.AddInt64(&p.busy, -1)

			atomic.AddInt64(&p.processed, 1)
			if err != nil {
				atomic.AddInt64(&p.failed, 1)
			}

			if p.metrics != nil {
				p.metrics.processed.Inc()
				status := "success"
				if err != nil {
					p.metrics.failed.Inc()
					status = "error"
				}
				p.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
				p.metrics.queueDepth.Set(float64(len(p.workChan)))
			}
		}
	}
}

// metricsUpdater periodically updates utilization and queue depth metrics
func (p *Pool[T]) metricsUpdater(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case <-ticker.C:
			queueDepth := float64(len(p.workChan))
			p.metrics.queueDepth.Set(queueDepth)
			p.metrics.utilization.Set(queueDepth / float64(p.queueSize))
		}
	}
}
