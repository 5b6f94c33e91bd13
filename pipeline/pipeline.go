package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360/readport/component"
	"github.com/c360/readport/errors"
	"github.com/c360/readport/input/tcp"
	"github.com/c360/readport/message"
	"github.com/c360/readport/metric"
	"github.com/c360/readport/output/file"
	"github.com/c360/readport/pkg/worker"
	"github.com/c360/readport/processor/pack"
	"github.com/c360/readport/processor/parser"
)

// Deps holds runtime dependencies for a pipeline
type Deps struct {
	RunID           string                  // optional, a random UUID by default
	Dialer          tcp.Dialer              // optional, for tests
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional, defaults to slog.Default()
}

// Pipeline moves lines from one device connection through extraction and
// buffering into batch files. Three goroutines cooperate: the connection read
// loop, the coordinator that extracts and admits records, and a single
// writer worker so batches of a group are persisted in arrival order.
type Pipeline struct {
	config    Config
	device    string
	runID     string
	schema    *message.Schema
	extractor parser.Extractor
	buffer    *pack.Buffer
	input     *tcp.Manager
	writer    *file.Writer
	write     func(context.Context, pack.Batch) (file.Result, error)
	pool      *worker.Pool[pack.Batch]
	logger    *slog.Logger
	parseLog  *throttledLogger
	registry  *metric.MetricsRegistry
	metrics   *Metrics

	lines        chan tcp.Line
	group        errgroup.Group
	cancelInput  context.CancelFunc
	writerCtx    context.Context
	cancelWriter context.CancelFunc

	failed   chan struct{}
	failOnce sync.Once
	runErr   error

	linesProcessed atomic.Int64
	parseFailures  atomic.Int64
	batchesQueued  atomic.Int64
	batchesDropped atomic.Int64

	mu        sync.Mutex
	started   bool
	stopped   bool
	startTime time.Time
	rates     *component.RateTracker
}

var _ component.LifecycleComponent = (*Pipeline)(nil)

// writerCancelGrace bounds the wait for an in-flight write after the writer
// context was cancelled at the shutdown deadline
const writerCancelGrace = 2 * time.Second

// New builds a pipeline and all of its stages. Configuration problems are
// reported here, before anything connects or writes.
func New(config Config, deps Deps) (*Pipeline, error) {
	schema, err := config.Validate()
	if err != nil {
		return nil, err
	}
	if config.LineQueue == 0 {
		config.LineQueue = DefaultLineQueue
	}
	if config.FlushQueue == 0 {
		config.FlushQueue = DefaultFlushQueue
	}

	if deps.MetricsRegistry != nil && deps.MetricsRegistry.HasService(config.Device) {
		return nil, errors.Invalidf("pipeline", "New", "device %q is already collected by another pipeline", config.Device)
	}

	runID := deps.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	base := deps.Logger
	if base == nil {
		base = slog.Default()
	}
	base = base.With("device", config.Device)

	p := &Pipeline{
		config:    config,
		device:    config.Device,
		runID:     runID,
		schema:    schema,
		extractor: parser.NewRegexExtractor(schema),
		logger:    base.With("component", "pipeline"),
		registry:  deps.MetricsRegistry,
		lines:     make(chan tcp.Line, config.LineQueue),
		failed:    make(chan struct{}),
		rates:     component.NewRateTracker(),
	}
	p.parseLog = newThrottledLogger(p.logger, config.ParseLogEvery, config.ParseLogBurst)

	if err := p.build(deps, base); err != nil {
		if deps.MetricsRegistry != nil {
			deps.MetricsRegistry.UnregisterService(config.Device)
		}
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) build(deps Deps, base *slog.Logger) error {
	var err error
	if p.metrics, err = newMetrics(deps.MetricsRegistry, p.device); err != nil {
		return errors.WrapFatal(err, "pipeline", "New", "metrics registration")
	}

	p.buffer, err = pack.NewBuffer(p.schema.PackLength(),
		pack.WithMaxGroups(p.config.MaxGroups),
		pack.WithMetrics(deps.MetricsRegistry, p.device))
	if err != nil {
		return err
	}

	p.writer, err = file.NewWriter(p.config.Output, file.Deps{
		Device:          p.device,
		RunID:           p.runID,
		Schema:          p.schema,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          base.With("component", "file-output"),
	})
	if err != nil {
		return err
	}
	p.write = p.writer.Write

	p.input, err = tcp.NewManager(p.config.Input, tcp.Deps{
		Device:          p.device,
		Dialer:          deps.Dialer,
		OnStateChange:   p.onStateChange,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          base.With("component", "tcp-input"),
	})
	if err != nil {
		return err
	}

	p.pool = worker.NewPool(1, p.config.FlushQueue, p.writeBatch,
		worker.WithMetricsRegistry[pack.Batch](deps.MetricsRegistry, p.device, "writer_queue"))
	return nil
}

// RunID identifies this pipeline run in file metadata and dead letters
func (p *Pipeline) RunID() string {
	return p.runID
}

// Schema returns the message schema
func (p *Pipeline) Schema() *message.Schema {
	return p.schema
}

// Components returns the stages that report their own health
func (p *Pipeline) Components() []component.Discoverable {
	return []component.Discoverable{p.input, p.writer}
}

// Initialize prepares the output directory
func (p *Pipeline) Initialize() error {
	return p.writer.Initialize()
}

// Start launches the read loop, the coordinator and the writer. The writer
// does not inherit ctx cancellation so that Stop can still flush.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "pipeline", "Start", "start pipeline")
	}

	inputCtx, cancelInput := context.WithCancel(ctx)
	p.cancelInput = cancelInput
	p.writerCtx, p.cancelWriter = context.WithCancel(context.WithoutCancel(ctx))

	if err := p.pool.Start(p.writerCtx); err != nil {
		cancelInput()
		p.cancelWriter()
		return errors.WrapFatal(err, "pipeline", "Start", "start writer")
	}

	p.group.Go(func() error {
		defer close(p.lines)
		err := p.input.Run(inputCtx, p.lines)
		if err != nil {
			p.fail(err)
		}
		return err
	})
	p.group.Go(func() error {
		for line := range p.lines {
			p.handleLine(line)
		}
		return nil
	})
	if p.config.Checkpoint > 0 {
		p.group.Go(func() error {
			p.checkpointLoop(inputCtx)
			return nil
		})
	}

	p.started = true
	p.startTime = time.Now()
	p.recordStatus(metric.StatusRunning)
	p.logger.Info("Pipeline started",
		"address", p.input.Address(),
		"run_id", p.runID,
		"pack_length", p.schema.PackLength(),
		"schema", p.schema.String())
	return nil
}

// Run starts the pipeline and keeps it running until ctx is cancelled or the
// connection gives up, then stops it within shutdownTimeout.
func (p *Pipeline) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := p.Initialize(); err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-p.failed:
	}

	stopErr := p.Stop(shutdownTimeout)
	if err := p.Err(); err != nil {
		return err
	}
	return stopErr
}

// Err returns the error that ended the pipeline on its own, if any
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runErr
}

// Failed is closed when the pipeline stops on its own
func (p *Pipeline) Failed() <-chan struct{} {
	return p.failed
}

func (p *Pipeline) fail(err error) {
	p.failOnce.Do(func() {
		p.mu.Lock()
		p.runErr = err
		p.mu.Unlock()
		p.recordStatus(metric.StatusFailed)
		p.recordError(err)
		p.logger.Error("Pipeline failed", "error", err)
		close(p.failed)
	})
}

// Stop shuts the pipeline down in order: the connection closes, lines
// already received are processed, every partial group is flushed, and the
// writer finishes its queue. Work still pending at the deadline is dropped
// and reported.
func (p *Pipeline) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	deadline := time.Now().Add(timeout)
	p.recordStatus(metric.StatusStopping)
	p.logger.Info("Stopping pipeline", "timeout", timeout)

	p.cancelInput()

	var errs []error
	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Until(deadline)):
		// release a coordinator blocked on a full writer queue
		p.cancelWriter()
		<-done
		errs = append(errs, fmt.Errorf("input drain: %w", errors.ErrConnectionTimeout))
	}

	for _, batch := range p.buffer.Drain() {
		p.enqueue(batch)
	}

	if err := p.pool.Stop(max(time.Until(deadline), 0)); err != nil {
		errs = append(errs, fmt.Errorf("writer drain: %w", err))
		p.abandonQueue(err)
	}
	p.cancelWriter()

	p.recordStatus(metric.StatusStopped)
	if p.registry != nil {
		p.registry.CoreMetrics().RecordHealthStatus(p.device, false)
	}

	stats := p.Stats()
	p.logger.Info("Pipeline stopped",
		"lines", stats.LinesProcessed,
		"parse_failures", stats.ParseFailures,
		"batches_written", stats.Output.BatchesWritten,
		"records_written", stats.Output.RecordsWritten,
		"batches_dropped", stats.BatchesDropped,
		"records_dead_lettered", stats.Output.RecordsDeadLettered,
		"records_lost", stats.Output.RecordsLost)

	if p.registry != nil {
		p.registry.UnregisterService(p.device)
	}

	if len(errs) > 0 {
		return errors.WrapTransient(stderrors.Join(errs...), "pipeline", "Stop", "graceful shutdown")
	}
	return nil
}

func (p *Pipeline) handleLine(line tcp.Line) {
	p.linesProcessed.Add(1)
	if p.metrics != nil {
		p.metrics.linesProcessed.Inc()
	}

	record, err := p.extractor.Extract(line.Data, line.At)
	if err != nil {
		p.parseFailed(line, err)
		return
	}

	result := p.buffer.Admit(record)
	for _, batch := range result.Ready {
		p.enqueue(batch)
	}
}

func (p *Pipeline) parseFailed(line tcp.Line, err error) {
	p.parseFailures.Add(1)

	reason := "unknown"
	var failure *parser.ParseFailure
	if stderrors.As(err, &failure) {
		reason = failure.Reason.String()
	}
	if p.metrics != nil {
		p.metrics.parseFailures.WithLabelValues(reason).Inc()
	}

	// the first line after connecting usually starts mid-message
	if line.Fresh {
		p.logger.Debug("Skipped first line of connection", "reason", reason, "error", err)
		return
	}
	p.parseLog.Warn("Could not parse line", "reason", reason, "error", err)
}

// enqueue hands a batch to the writer, waiting while its queue is full. A
// batch the queue no longer accepts goes straight to the dead-letter file.
func (p *Pipeline) enqueue(batch pack.Batch) {
	if batch.Len() == 0 {
		return
	}
	if err := p.pool.SubmitWait(p.writerCtx, batch); err != nil {
		p.batchesDropped.Add(1)
		if p.metrics != nil {
			p.metrics.batchesDropped.Inc()
		}
		p.recordError(err)
		p.logger.Error("Batch not queued: writer unavailable",
			"group", batch.GroupKey,
			"records", batch.Len(),
			"reason", batch.Reason.String(),
			"error", err)
		p.writer.Abandon(batch, err)
		return
	}
	p.batchesQueued.Add(1)
	if p.metrics != nil {
		p.metrics.batchesQueued.WithLabelValues(batch.Reason.String()).Inc()
	}
}

// abandonQueue runs when the writer did not finish its queue before the
// shutdown deadline. Batches still queued are dead-lettered one by one; the
// batch being written sees a cancelled context and is dead-lettered by the
// writer. Waiting for the worker keeps the final counts complete.
func (p *Pipeline) abandonQueue(cause error) {
	pending := p.pool.Stats().Pending()
	left := p.pool.Abandon()
	p.cancelWriter()

	p.logger.Error("Shutdown deadline reached with batches pending",
		"pending", pending,
		"abandoned", len(left),
		"error", cause)
	for _, batch := range left {
		p.batchesDropped.Add(1)
		if p.metrics != nil {
			p.metrics.batchesDropped.Inc()
		}
		p.writer.Abandon(batch, cause)
	}

	if err := p.pool.Wait(writerCancelGrace); err != nil {
		p.logger.Error("Writer still busy after cancellation, final counts may be incomplete",
			"grace", writerCancelGrace, "error", err)
	}
}

// writeBatch runs on the single writer worker
func (p *Pipeline) writeBatch(ctx context.Context, batch pack.Batch) error {
	if _, err := p.write(ctx, batch); err != nil {
		p.recordError(err)
		return err
	}
	return nil
}

func (p *Pipeline) checkpointLoop(ctx context.Context) {
	ticker := time.NewTicker(p.config.Checkpoint)
	defer ticker.Stop()

	last := p.input.Stats().LinesReceived
	lastAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			received := p.input.Stats().LinesReceived
			p.logger.Info("Checkpoint",
				"received", received-last,
				"seconds", now.Sub(lastAt).Seconds(),
				"buffered", p.buffer.Len(),
				"state", p.input.State().String())
			last, lastAt = received, now
		}
	}
}

func (p *Pipeline) onStateChange(_, to tcp.State) {
	if p.registry != nil {
		p.registry.CoreMetrics().RecordHealthStatus(p.device, to == tcp.StateConnected)
	}
}

func (p *Pipeline) recordStatus(status int) {
	if p.registry != nil {
		p.registry.CoreMetrics().RecordPipelineStatus(p.device, status)
	}
}

func (p *Pipeline) recordError(err error) {
	if p.registry != nil {
		p.registry.CoreMetrics().RecordError(p.device, errors.Classify(err).String())
	}
}

// Stats is a snapshot of the whole pipeline
type Stats struct {
	LinesProcessed int64
	ParseFailures  int64
	BatchesQueued  int64
	BatchesDropped int64
	Input          tcp.Stats
	Buffer         pack.Statistics
	Writer         worker.PoolStats
	Output         file.Stats
}

// Stats returns counters of every stage
func (p *Pipeline) Stats() Stats {
	return Stats{
		LinesProcessed: p.linesProcessed.Load(),
		ParseFailures:  p.parseFailures.Load(),
		BatchesQueued:  p.batchesQueued.Load(),
		BatchesDropped: p.batchesDropped.Load(),
		Input:          p.input.Stats(),
		Buffer:         p.buffer.Stats(),
		Writer:         p.pool.Stats(),
		Output:         p.writer.Stats(),
	}
}

// Meta returns the component metadata
func (p *Pipeline) Meta() component.Metadata {
	return component.Metadata{
		Name:        p.device,
		Type:        "pipeline",
		Description: fmt.Sprintf("Collects %s into %s files", p.input.Address(), p.config.Output.Format),
		Version:     "1.0.0",
	}
}

// Health is healthy while the connection is up and the last write
// succeeded. Parse failures never make a pipeline unhealthy.
func (p *Pipeline) Health() component.HealthStatus {
	in := p.input.Health()
	out := p.writer.Health()

	p.mu.Lock()
	running := p.started && !p.stopped
	startTime := p.startTime
	runErr := p.runErr
	p.mu.Unlock()

	lastError := out.LastError
	if lastError == "" {
		lastError = in.LastError
	}
	if runErr != nil {
		lastError = runErr.Error()
	}

	var uptime time.Duration
	if running {
		uptime = time.Since(startTime)
	}
	return component.HealthStatus{
		Healthy:    running && in.Healthy && out.Healthy,
		LastCheck:  time.Now(),
		ErrorCount: in.ErrorCount + out.ErrorCount + int(p.parseFailures.Load()) + int(p.batchesDropped.Load()),
		LastError:  lastError,
		Uptime:     uptime,
	}
}

// DataFlow reports processed lines per second and the parse failure ratio
func (p *Pipeline) DataFlow() component.FlowMetrics {
	lines := p.linesProcessed.Load()
	msgs, bytes := p.rates.Rates(lines, p.input.Stats().BytesReceived)

	var errorRate float64
	if lines > 0 {
		errorRate = float64(p.parseFailures.Load()) / float64(lines)
	}
	return component.FlowMetrics{
		MessagesPerSecond: msgs,
		BytesPerSecond:    bytes,
		ErrorRate:         errorRate,
		LastActivity:      p.input.LastActivity(),
	}
}
