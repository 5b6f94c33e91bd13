package file

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/c360/readport/component"
	"github.com/c360/readport/errors"
	"github.com/c360/readport/message"
	"github.com/c360/readport/metric"
	"github.com/c360/readport/pkg/retry"
	"github.com/c360/readport/processor/pack"
)

// fileTimeLayout is the UTC timestamp embedded in file names
const fileTimeLayout = "2006-01-02_15-04-05.000000"

// Deps holds runtime dependencies for the writer
type Deps struct {
	Device          string
	RunID           string
	Schema          *message.Schema
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional, defaults to slog.Default()
}

// Result describes a persisted batch
type Result struct {
	Path     string
	Records  int
	Bytes    int
	Attempts int
	Duration time.Duration
}

// Writer persists batches as one new file each. A single writer must be
// driven by a single goroutine to keep per-group file order.
type Writer struct {
	name       string
	config     Config
	device     string
	runID      string
	schema     *message.Schema
	encoder    Encoder
	deadLetter *DeadLetter
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time

	seq atomic.Uint64

	// Stats
	batchesWritten int64
	recordsWritten int64
	bytesWritten   int64
	failures       int64
	recordsLost    int64
	deadLettered   int64

	mu           sync.RWMutex
	initialized  bool
	startTime    time.Time
	lastActivity time.Time
	lastError    string
	lastFailed   bool
	rates        *component.RateTracker
}

// NewWriter creates a writer from validated configuration
func NewWriter(config Config, deps Deps) (*Writer, error) {
	if deps.Schema == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Writer", "NewWriter", "schema required")
	}
	if err := config.Validate(deps.Schema); err != nil {
		return nil, err
	}

	encoder, err := NewEncoder(config.Format)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "file-output", "device", deps.Device)
	}

	metrics, err := newMetrics(deps.MetricsRegistry, deps.Device)
	if err != nil {
		return nil, errors.WrapFatal(err, "Writer", "NewWriter", "metrics registration")
	}

	return &Writer{
		name:       "file-output",
		config:     config,
		device:     deps.Device,
		runID:      deps.RunID,
		schema:     deps.Schema,
		encoder:    encoder,
		deadLetter: NewDeadLetter(config.DeadLetterPath()),
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
		rates:      component.NewRateTracker(),
	}, nil
}

// Initialize creates the destination directory
func (w *Writer) Initialize() error {
	if err := os.MkdirAll(w.config.Destination, 0755); err != nil {
		return errors.WrapFatal(err, "Writer", "Initialize", "create destination directory")
	}

	w.mu.Lock()
	w.initialized = true
	w.startTime = w.now()
	w.mu.Unlock()
	return nil
}

// Write encodes the batch and stores it in a new file. IO failures are
// retried with backoff; once retries are exhausted, or on an encoding
// failure, the batch goes to the dead-letter file. The returned error is
// always a *WriteError.
func (w *Writer) Write(ctx context.Context, batch pack.Batch) (Result, error) {
	if batch.Len() == 0 {
		return Result{}, nil
	}

	start := w.now()
	meta := Meta{RunID: w.runID, Device: w.device, Created: start.UTC()}

	var buf bytes.Buffer
	if err := w.encoder.Encode(&buf, w.schema, meta, batch); err != nil {
		werr := &WriteError{
			Kind:     EncodingFailure,
			Group:    batch.GroupKey,
			Records:  batch.Len(),
			Attempts: 1,
			Err:      err,
		}
		w.fail(meta, batch, werr)
		return Result{}, werr
	}

	var (
		path     string
		attempts int
	)
	err := retry.Do(ctx, w.config.Retry, func() error {
		attempts++
		// A fresh sequence number per attempt so a retry never collides
		// with a file left behind by an earlier attempt
		path = filepath.Join(w.config.Destination, w.fileName(batch.GroupKey, start, w.seq.Add(1)))
		err := writeExclusive(path, buf.Bytes())
		if err != nil {
			w.logger.Warn("Batch write attempt failed",
				"path", path,
				"attempt", attempts,
				"records", batch.Len(),
				"error", err)
		}
		return classifyWriteError(err)
	})
	if err != nil {
		werr := &WriteError{
			Kind:     IOFailure,
			Path:     path,
			Group:    batch.GroupKey,
			Records:  batch.Len(),
			Attempts: attempts,
			Err:      err,
		}
		w.fail(meta, batch, werr)
		return Result{}, werr
	}

	result := Result{
		Path:     path,
		Records:  batch.Len(),
		Bytes:    buf.Len(),
		Attempts: attempts,
		Duration: w.now().Sub(start),
	}
	w.succeed(batch, result)
	return result, nil
}

// Abandon sends a batch that will never reach the writer queue's worker to
// the dead-letter file, exactly like a failed write. It is safe to call while
// a Write is in flight.
func (w *Writer) Abandon(batch pack.Batch, cause error) {
	if batch.Len() == 0 {
		return
	}
	meta := Meta{RunID: w.runID, Device: w.device, Created: w.now().UTC()}
	w.fail(meta, batch, &WriteError{
		Kind:    Abandoned,
		Group:   batch.GroupKey,
		Records: batch.Len(),
		Err:     cause,
	})
}

// classifyWriteError marks failures that another attempt cannot fix
func classifyWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, syscall.ENOSPC):
		return retry.NonRetryable(fmt.Errorf("%w: %w", errors.ErrStorageFull, err))
	case stderrors.Is(err, os.ErrPermission), stderrors.Is(err, syscall.EROFS):
		return retry.NonRetryable(err)
	default:
		return err
	}
}

// fileName builds {prefix}_{group}_{timestamp}_{seq}.{ext}
func (w *Writer) fileName(group string, at time.Time, seq uint64) string {
	parts := make([]string, 0, 4)
	if w.config.FilePrefix != "" {
		parts = append(parts, w.config.FilePrefix)
	}
	parts = append(parts,
		sanitizeName(group),
		at.UTC().Format(fileTimeLayout),
		fmt.Sprintf("%06d", seq),
	)
	return strings.Join(parts, "_") + "." + w.encoder.Extension()
}

// sanitizeName keeps group keys safe as a path component
func sanitizeName(s string) string {
	if s == "" {
		return "empty"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.' || r == '+':
			return r
		default:
			return '_'
		}
	}, s)
}

// writeExclusive creates path, failing if it exists, and removes it again if
// the data cannot be written completely
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return err
}

func (w *Writer) succeed(batch pack.Batch, result Result) {
	atomic.AddInt64(&w.batchesWritten, 1)
	atomic.AddInt64(&w.recordsWritten, int64(result.Records))
	atomic.AddInt64(&w.bytesWritten, int64(result.Bytes))

	w.mu.Lock()
	w.lastActivity = w.now()
	w.lastFailed = false
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.batchesWritten.Inc()
		w.metrics.recordsWritten.Add(float64(result.Records))
		w.metrics.bytesWritten.Add(float64(result.Bytes))
		w.metrics.flushDuration.Observe(result.Duration.Seconds())
	}

	w.logger.Info("Data saved",
		"path", result.Path,
		"group", batch.GroupKey,
		"records", result.Records,
		"reason", batch.Reason.String(),
		"bytes", result.Bytes,
		"duration", result.Duration)
}

// fail routes a batch that could not be written to the dead-letter file.
// Nothing is dropped without an error log and the lost-records metric.
func (w *Writer) fail(meta Meta, batch pack.Batch, werr *WriteError) {
	atomic.AddInt64(&w.failures, 1)

	w.mu.Lock()
	w.lastError = werr.Error()
	w.lastFailed = true
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.writeFailures.WithLabelValues(werr.Kind.String()).Inc()
	}

	if err := w.deadLetter.Append(w.schema, meta, batch, werr); err != nil {
		atomic.AddInt64(&w.recordsLost, int64(batch.Len()))
		if w.metrics != nil {
			w.metrics.recordsLost.Add(float64(batch.Len()))
		}
		w.logger.Error("Batch lost: write and dead-letter both failed",
			"group", batch.GroupKey,
			"records", batch.Len(),
			"write_error", werr,
			"dead_letter", w.deadLetter.Path(),
			"dead_letter_error", err)
		return
	}

	atomic.AddInt64(&w.deadLettered, int64(batch.Len()))
	if w.metrics != nil {
		w.metrics.deadLettered.Add(float64(batch.Len()))
	}
	w.logger.Error("Batch written to dead-letter file",
		"group", batch.GroupKey,
		"records", batch.Len(),
		"kind", werr.Kind.String(),
		"dead_letter", w.deadLetter.Path(),
		"error", werr.Err)
}

// Meta returns component metadata
func (w *Writer) Meta() component.Metadata {
	return component.Metadata{
		Name:        w.device + "/" + w.name,
		Type:        "output",
		Description: fmt.Sprintf("Batch file writer (%s)", w.encoder.Extension()),
		Version:     "1.0.0",
	}
}

// Health reports unhealthy when the last batch could not be written
func (w *Writer) Health() component.HealthStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var uptime time.Duration
	if w.initialized {
		uptime = w.now().Sub(w.startTime)
	}
	return component.HealthStatus{
		Healthy:    w.initialized && !w.lastFailed,
		LastCheck:  w.now(),
		ErrorCount: int(atomic.LoadInt64(&w.failures)),
		LastError:  w.lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics
func (w *Writer) DataFlow() component.FlowMetrics {
	records := atomic.LoadInt64(&w.recordsWritten)
	written := atomic.LoadInt64(&w.batchesWritten)
	failures := atomic.LoadInt64(&w.failures)
	msgRate, byteRate := w.rates.Rates(records, atomic.LoadInt64(&w.bytesWritten))

	var errorRate float64
	if total := written + failures; total > 0 {
		errorRate = float64(failures) / float64(total)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return component.FlowMetrics{
		MessagesPerSecond: msgRate,
		BytesPerSecond:    byteRate,
		ErrorRate:         errorRate,
		LastActivity:      w.lastActivity,
	}
}

// Stats returns cumulative counters
func (w *Writer) Stats() Stats {
	return Stats{
		BatchesWritten: atomic.LoadInt64(&w.batchesWritten),
		RecordsWritten: atomic.LoadInt64(&w.recordsWritten),
		BytesWritten:   atomic.LoadInt64(&w.bytesWritten),
		Failures:       atomic.LoadInt64(&w.failures),
		RecordsLost:    atomic.LoadInt64(&w.recordsLost),

		RecordsDeadLettered: atomic.LoadInt64(&w.deadLettered),
	}
}

// Stats are cumulative writer counters
type Stats struct {
	BatchesWritten int64
	RecordsWritten int64
	BytesWritten   int64
	Failures       int64
	RecordsLost    int64

	RecordsDeadLettered int64
}

// IsWriteError reports whether err carries a *WriteError
func IsWriteError(err error) bool {
	var werr *WriteError
	return stderrors.As(err, &werr)
}
