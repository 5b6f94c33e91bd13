package tcp

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/c360/readport/component"
	"github.com/c360/readport/errors"
	"github.com/c360/readport/metric"
	"github.com/c360/readport/pkg/retry"
)

// Dialer opens connections to the device. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Deps holds runtime dependencies for the connection manager
type Deps struct {
	Device          string
	Dialer          Dialer                  // optional, defaults to net.Dialer
	OnStateChange   StateObserver           // optional
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional, defaults to slog.Default()
}

// Manager keeps one connection to a device alive and turns its byte stream
// into lines. Run drives the whole state machine; cancelling its context is
// the only way to stop it.
type Manager struct {
	config   Config
	device   string
	dialer   Dialer
	observer StateObserver
	charset  *charmap.Charmap
	backoff  *retry.Backoff
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time

	state   atomic.Int32
	running atomic.Bool

	linesReceived atomic.Int64
	bytesReceived atomic.Int64
	linesTooLong  atomic.Int64
	connects      atomic.Int64
	failures      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	connectedAt  time.Time
	lastActivity time.Time
	lastError    string
	rates        *component.RateTracker
}

var _ component.Discoverable = (*Manager)(nil)

// NewManager creates a connection manager from validated configuration
func NewManager(config Config, deps Deps) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.MaxLineBytes == 0 {
		config.MaxLineBytes = DefaultMaxLineBytes
	}

	charset, err := LookupEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}
	backoff, err := retry.NewBackoff(config.Backoff)
	if err != nil {
		return nil, errors.WrapInvalid(err, "tcp-input", "NewManager", "reconnect backoff")
	}

	dialer := deps.Dialer
	if dialer == nil {
		dialer = &net.Dialer{KeepAlive: 30 * time.Second}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "tcp-input", "device", deps.Device)
	}

	metrics, err := newMetrics(deps.MetricsRegistry, deps.Device)
	if err != nil {
		return nil, errors.WrapFatal(err, "tcp-input", "NewManager", "metrics registration")
	}

	return &Manager{
		config:   config,
		device:   deps.Device,
		dialer:   dialer,
		observer: deps.OnStateChange,
		charset:  charset,
		backoff:  backoff,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		rates:    component.NewRateTracker(),
	}, nil
}

// State returns the current connection state
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Address returns the device address
func (m *Manager) Address() string {
	return m.config.Address()
}

func (m *Manager) setState(to State) {
	from := State(m.state.Swap(int32(to)))
	if from == to {
		return
	}
	if !validTransition(from, to) {
		m.logger.Error("Invalid connection state transition", "from", from, "to", to)
	}
	if m.metrics != nil {
		m.metrics.connectionState.Set(float64(to))
	}
	if m.observer != nil {
		m.observer(from, to)
	}
}

// Run connects, reads and reconnects until ctx is cancelled. Lines are sent
// to out; a full channel blocks the socket reads. Run returns nil on
// cancellation and a transient error when a bounded number of connection
// attempts is exhausted.
func (m *Manager) Run(ctx context.Context, out chan<- Line) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "tcp-input", "Run", "start read loop")
	}
	defer m.running.Store(false)
	defer m.setState(StateDisconnected)

	m.mu.Lock()
	m.startTime = m.now()
	m.mu.Unlock()
	m.backoff.Reset()

	for {
		if ctx.Err() != nil {
			return nil
		}

		m.setState(StateConnecting)
		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.failures.Add(1)
			m.recordError(err)
			if m.metrics != nil {
				m.metrics.connectFailures.Inc()
			}
			if err := m.wait(ctx, "connect failed", err); err != nil {
				return err
			}
			continue
		}

		m.onConnected(conn)
		reason := m.serve(ctx, conn, out)
		if ctx.Err() != nil {
			return nil
		}

		if stderrors.Is(reason, errors.ErrIdleTimeout) {
			m.setState(StateIdleTimedOut)
			if m.metrics != nil {
				m.metrics.idleTimeouts.Inc()
			}
			m.logger.Warn("No data received within idle timeout, reconnecting",
				"address", m.Address(), "timeout", m.config.IdleTimeout)
			continue
		}

		m.recordError(reason)
		if err := m.wait(ctx, "connection lost", reason); err != nil {
			return err
		}
	}
}

// wait sleeps for the next backoff delay. It returns nil when the caller
// should try again.
func (m *Manager) wait(ctx context.Context, msg string, cause error) error {
	delay, ok := m.backoff.Next()
	if !ok {
		return errors.WrapTransient(
			fmt.Errorf("%w: %d attempts to %s: %v", errors.ErrMaxRetriesExceeded, m.backoff.Attempts(), m.Address(), cause),
			"tcp-input", "Run", "connect")
	}
	m.logger.Warn(msg+", retrying",
		"address", m.Address(), "error", cause, "retry_in", delay, "attempt", m.backoff.Attempts())
	// cancellation is noticed by the caller's loop
	_ = retry.Sleep(ctx, delay)
	return nil
}

func (m *Manager) dial(ctx context.Context) (net.Conn, error) {
	dialCtx := ctx
	if m.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.config.DialTimeout)
		defer cancel()
	}
	conn, err := m.dialer.DialContext(dialCtx, "tcp", m.Address())
	if err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrNoConnection, err),
			"tcp-input", "dial", m.Address())
	}
	return conn, nil
}

func (m *Manager) onConnected(conn net.Conn) {
	n := m.connects.Add(1)
	m.backoff.Reset()

	m.mu.Lock()
	m.connectedAt = m.now()
	m.lastError = ""
	m.mu.Unlock()

	if n > 1 && m.metrics != nil {
		m.metrics.reconnects.Inc()
	}
	m.setState(StateConnected)
	m.logger.Info("Connected to device",
		"address", m.Address(), "local", conn.LocalAddr().String(), "connection", n)
}

// serve reads lines from conn until it fails, times out or ctx is cancelled,
// and returns why the connection ended.
func (m *Manager) serve(ctx context.Context, conn net.Conn, out chan<- Line) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	counting := &countingReader{r: &deadlineReader{conn: conn, timeout: m.config.IdleTimeout}, m: m}
	var lr *lineReader
	if m.charset != nil {
		lr = newLineReader(counting, m.config.MaxLineBytes, m.charset.NewDecoder())
	} else {
		lr = newLineReader(counting, m.config.MaxLineBytes, nil)
	}

	fresh := true
	for {
		data, err := lr.next()
		if stderrors.Is(err, errors.ErrLineTooLong) {
			m.linesTooLong.Add(1)
			if m.metrics != nil {
				m.metrics.linesTooLong.Inc()
			}
			m.logger.Warn("Discarded line exceeding maximum length", "max_bytes", m.config.MaxLineBytes)
			fresh = false
			continue
		}
		if err != nil {
			return m.classifyReadError(err)
		}

		m.linesReceived.Add(1)
		if m.metrics != nil {
			m.metrics.linesReceived.Inc()
		}

		line := Line{Data: data, At: m.now(), Fresh: fresh}
		fresh = false
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) classifyReadError(err error) error {
	switch {
	case stderrors.Is(err, os.ErrDeadlineExceeded):
		return errors.WrapTransient(errors.ErrIdleTimeout, "tcp-input", "serve", "read")
	case stderrors.Is(err, io.EOF):
		return errors.WrapTransient(errors.ErrPeerClosed, "tcp-input", "serve", "read")
	default:
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
			"tcp-input", "serve", "read")
	}
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.lastError = err.Error()
	m.mu.Unlock()
}

// countingReader tracks received bytes and the last activity time
type countingReader struct {
	r io.Reader
	m *Manager
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.m.bytesReceived.Add(int64(n))
		if c.m.metrics != nil {
			c.m.metrics.bytesReceived.Add(float64(n))
		}
		c.m.mu.Lock()
		c.m.lastActivity = c.m.now()
		c.m.mu.Unlock()
	}
	return n, err
}

// LastActivity returns when bytes were last received
func (m *Manager) LastActivity() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastActivity
}

// Stats is a snapshot of the manager's counters
type Stats struct {
	State          State
	Connections    int64
	FailedConnects int64
	LinesReceived  int64
	BytesReceived  int64
	LinesTooLong   int64
}

// Stats returns a snapshot of the manager's counters
func (m *Manager) Stats() Stats {
	return Stats{
		State:          m.State(),
		Connections:    m.connects.Load(),
		FailedConnects: m.failures.Load(),
		LinesReceived:  m.linesReceived.Load(),
		BytesReceived:  m.bytesReceived.Load(),
		LinesTooLong:   m.linesTooLong.Load(),
	}
}

// Meta returns the component metadata
func (m *Manager) Meta() component.Metadata {
	return component.Metadata{
		Name:        m.device + "/tcp-input",
		Type:        "input",
		Description: fmt.Sprintf("Line reader for device at %s", m.Address()),
		Version:     "1.0.0",
	}
}

// Health reports healthy while connected. The last connection error is kept
// until the next successful connect.
func (m *Manager) Health() component.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var uptime time.Duration
	if m.running.Load() && !m.startTime.IsZero() {
		uptime = m.now().Sub(m.startTime)
	}
	return component.HealthStatus{
		Healthy:    m.running.Load() && m.State() == StateConnected,
		LastCheck:  m.now(),
		ErrorCount: int(m.failures.Load() + m.linesTooLong.Load()),
		LastError:  m.lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns line and byte rates since the previous call
func (m *Manager) DataFlow() component.FlowMetrics {
	lines := m.linesReceived.Load()
	msgs, bytes := m.rates.Rates(lines, m.bytesReceived.Load())

	var errorRate float64
	if tooLong := m.linesTooLong.Load(); lines+tooLong > 0 {
		errorRate = float64(tooLong) / float64(lines+tooLong)
	}

	return component.FlowMetrics{
		MessagesPerSecond: msgs,
		BytesPerSecond:    bytes,
		ErrorRate:         errorRate,
		LastActivity:      m.LastActivity(),
	}
}
