package tcp

import (
	"bytes"
	"context"
	stderrors "errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/readport/errors"
	"github.com/c360/readport/metric"
	"github.com/c360/readport/pkg/devicesim"
	"github.com/c360/readport/pkg/retry"
)

func fastBackoff() retry.Config {
	return retry.Config{
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2,
	}
}

func testConfig(t *testing.T, srv *devicesim.Server) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Host = srv.Host()
	cfg.Port = srv.Port()
	cfg.DialTimeout = time.Second
	cfg.Backoff = fastBackoff()
	return cfg
}

// stateLog records every transition seen by the observer
type stateLog struct {
	mu    sync.Mutex
	moves []State
}

func (s *stateLog) observe(_, to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, to)
}

func (s *stateLog) seen(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.moves {
		if m == state {
			return true
		}
	}
	return false
}

// run starts the manager and returns the lines channel and a stop function
// that cancels the run and returns its error.
func run(t *testing.T, m *Manager) (<-chan Line, func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan Line, 64)
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx, lines) }()

	var once sync.Once
	var result error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case result = <-errc:
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not return after cancellation")
			}
		})
		return result
	}
	t.Cleanup(func() { _ = stop() })
	return lines, stop
}

func receive(t *testing.T, lines <-chan Line) Line {
	t.Helper()
	select {
	case line := <-lines:
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a line")
		return Line{}
	}
}

func TestManager_DeliversLinesAndReconnectsAfterPeerClose(t *testing.T) {
	srv, err := devicesim.Listen("127.0.0.1:0",
		devicesim.Script{devicesim.Send("first\r\nsecond\n"), devicesim.Disconnect()},
		devicesim.Script{devicesim.Send("third\r\n")},
	)
	require.NoError(t, err)
	defer srv.Close()

	states := &stateLog{}
	m, err := NewManager(testConfig(t, srv), Deps{Device: "test", OnStateChange: states.observe})
	require.NoError(t, err)

	lines, stop := run(t, m)

	first := receive(t, lines)
	assert.Equal(t, "first", string(first.Data))
	assert.True(t, first.Fresh)
	assert.False(t, first.At.IsZero())

	second := receive(t, lines)
	assert.Equal(t, "second", string(second.Data))
	assert.False(t, second.Fresh)

	third := receive(t, lines)
	assert.Equal(t, "third", string(third.Data))
	assert.True(t, third.Fresh, "first line of the new connection")

	assert.Equal(t, StateConnected, m.State())
	assert.NoError(t, stop())
	assert.Equal(t, StateDisconnected, m.State())

	stats := m.Stats()
	assert.Equal(t, int64(2), stats.Connections)
	assert.Equal(t, int64(3), stats.LinesReceived)
	assert.Equal(t, int64(len("first\r\nsecond\nthird\r\n")), stats.BytesReceived)
	assert.False(t, states.seen(StateIdleTimedOut))
}

func TestManager_IdleTimeoutReconnects(t *testing.T) {
	srv, err := devicesim.Listen("127.0.0.1:0",
		devicesim.Script{devicesim.Send("hello\n")}, // then silent
		devicesim.Script{devicesim.Send("again\n")},
	)
	require.NoError(t, err)
	defer srv.Close()

	states := &stateLog{}
	cfg := testConfig(t, srv)
	cfg.IdleTimeout = 100 * time.Millisecond
	m, err := NewManager(cfg, Deps{Device: "test", OnStateChange: states.observe})
	require.NoError(t, err)

	lines, _ := run(t, m)
	assert.Equal(t, "hello", string(receive(t, lines).Data))
	again := receive(t, lines)
	assert.Equal(t, "again", string(again.Data))
	assert.True(t, again.Fresh)

	assert.True(t, states.seen(StateIdleTimedOut))
	assert.GreaterOrEqual(t, srv.Accepted(), 2)
}

func TestManager_NoTimeoutKeepsSilentConnection(t *testing.T) {
	srv, err := devicesim.Listen("127.0.0.1:0",
		devicesim.Script{
			devicesim.Send("before\n"),
			devicesim.Sleep(300 * time.Millisecond),
			devicesim.Send("after\n"),
		},
	)
	require.NoError(t, err)
	defer srv.Close()

	m, err := NewManager(testConfig(t, srv), Deps{Device: "test"})
	require.NoError(t, err)

	lines, _ := run(t, m)
	assert.Equal(t, "before", string(receive(t, lines).Data))
	after := receive(t, lines)
	assert.Equal(t, "after", string(after.Data))
	assert.False(t, after.Fresh, "same connection")
	assert.Equal(t, 1, srv.Accepted())
}

func TestManager_ActivityRearmsIdleTimeout(t *testing.T) {
	steps := devicesim.Script{}
	for i := 0; i < 6; i++ {
		steps = append(steps, devicesim.Send("tick\n"), devicesim.Sleep(60*time.Millisecond))
	}
	steps = append(steps, devicesim.Send("done\n"))
	srv, err := devicesim.Listen("127.0.0.1:0", steps)
	require.NoError(t, err)
	defer srv.Close()

	cfg := testConfig(t, srv)
	cfg.IdleTimeout = 200 * time.Millisecond
	m, err := NewManager(cfg, Deps{Device: "test"})
	require.NoError(t, err)

	lines, _ := run(t, m)
	for i := 0; i < 7; i++ {
		receive(t, lines)
	}
	// the session lasted longer than the timeout without ever being silent that long
	assert.Equal(t, 1, srv.Accepted())
}

func TestManager_DecodesCharset(t *testing.T) {
	srv, err := devicesim.Listen("127.0.0.1:0",
		devicesim.Script{devicesim.SendBytes([]byte{'T', '=', '2', '1', 0xB0, 'C', '\r', '\n'})},
	)
	require.NoError(t, err)
	defer srv.Close()

	cfg := testConfig(t, srv)
	cfg.Encoding = "latin1"
	m, err := NewManager(cfg, Deps{Device: "test"})
	require.NoError(t, err)

	lines, _ := run(t, m)
	assert.Equal(t, "T=21°C", string(receive(t, lines).Data))
}

func TestManager_DiscardsOverlongLines(t *testing.T) {
	srv, err := devicesim.Listen("127.0.0.1:0",
		devicesim.Script{devicesim.Send(strings.Repeat("x", 100) + "\nok\n")},
	)
	require.NoError(t, err)
	defer srv.Close()

	registry := metric.NewMetricsRegistry()
	cfg := testConfig(t, srv)
	cfg.MaxLineBytes = 32
	m, err := NewManager(cfg, Deps{Device: "test", MetricsRegistry: registry})
	require.NoError(t, err)

	lines, _ := run(t, m)
	line := receive(t, lines)
	assert.Equal(t, "ok", string(line.Data))
	assert.False(t, line.Fresh)
	assert.Equal(t, int64(1), m.Stats().LinesTooLong)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.linesTooLong))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.linesReceived))
}

// flakyDialer fails a fixed number of times before dialing for real
type flakyDialer struct {
	failures int32
	calls    atomic.Int32
	real     net.Dialer
}

func (d *flakyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.calls.Add(1) <= d.failures {
		return nil, stderrors.New("connection refused")
	}
	return d.real.DialContext(ctx, network, address)
}

func TestManager_BackoffResetsAfterSuccess(t *testing.T) {
	srv, err := devicesim.Listen("127.0.0.1:0", devicesim.Script{devicesim.Send("up\n")})
	require.NoError(t, err)
	defer srv.Close()

	dialer := &flakyDialer{failures: 3}
	var m *Manager
	var attemptsAtConnect atomic.Int32
	attemptsAtConnect.Store(-1)
	observer := func(_, to State) {
		if to == StateConnected {
			attemptsAtConnect.Store(int32(m.backoff.Attempts()))
		}
	}

	m, err = NewManager(testConfig(t, srv), Deps{Device: "test", Dialer: dialer, OnStateChange: observer})
	require.NoError(t, err)

	lines, _ := run(t, m)
	assert.Equal(t, "up", string(receive(t, lines).Data))
	assert.Equal(t, int32(4), dialer.calls.Load())
	assert.Equal(t, int64(3), m.Stats().FailedConnects)
	assert.Equal(t, int32(0), attemptsAtConnect.Load())
	assert.Empty(t, m.Health().LastError)
	assert.True(t, m.Health().Healthy)
}

func TestManager_BoundedAttemptsReturnTransientError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 9
	cfg.Backoff = fastBackoff()
	cfg.Backoff.MaxAttempts = 2

	dialer := &flakyDialer{failures: 100}
	m, err := NewManager(cfg, Deps{Device: "test", Dialer: dialer})
	require.NoError(t, err)

	err = m.Run(context.Background(), make(chan Line))
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.True(t, stderrors.Is(err, errors.ErrMaxRetriesExceeded))
	assert.Equal(t, int32(3), dialer.calls.Load(), "initial attempt plus two retries")
	assert.Equal(t, StateDisconnected, m.State())
	assert.False(t, m.Health().Healthy)
	assert.Contains(t, m.Health().LastError, "connection refused")
}

func TestManager_CancelWhileBlockedOnDelivery(t *testing.T) {
	srv, err := devicesim.Listen("127.0.0.1:0", devicesim.Script{devicesim.Send("a\nb\nc\n")})
	require.NoError(t, err)
	defer srv.Close()

	m, err := NewManager(testConfig(t, srv), Deps{Device: "test"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan Line) // nobody reads
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx, lines) }()

	require.Eventually(t, func() bool { return m.State() == StateConnected }, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManager_RunTwice(t *testing.T) {
	srv, err := devicesim.Listen("127.0.0.1:0", devicesim.Script{})
	require.NoError(t, err)
	defer srv.Close()

	m, err := NewManager(testConfig(t, srv), Deps{Device: "test"})
	require.NoError(t, err)
	_, _ = run(t, m)
	require.Eventually(t, func() bool { return m.running.Load() }, time.Second, time.Millisecond)

	err = m.Run(context.Background(), make(chan Line))
	assert.True(t, stderrors.Is(err, errors.ErrAlreadyStarted))
}

func TestLineReader(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		max     int
		want    []string
		tooLong int
	}{
		{"crlf and lf", "a\r\nb\nc\r\n", 64, []string{"a", "b", "c"}, 0},
		{"empty lines kept", "\n\r\nx\n", 64, []string{"", "", "x"}, 0},
		{"unterminated tail dropped", "a\npartial", 64, []string{"a"}, 0},
		{"overlong skipped", "short\n" + strings.Repeat("y", 50) + "\nnext\n", 16, []string{"short", "next"}, 1},
		{"exactly max fits", strings.Repeat("z", 16) + "\r\n", 16, []string{strings.Repeat("z", 16)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := newLineReader(bytes.NewReader([]byte(tt.input)), tt.max, nil)
			var got []string
			for {
				line, err := lr.next()
				if stderrors.Is(err, errors.ErrLineTooLong) {
					continue
				}
				if err != nil {
					break
				}
				got = append(got, string(line))
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.tooLong, lr.tooLong)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	valid.Host = "localhost"
	valid.Port = 4001
	require.NoError(t, valid.Validate())
	assert.Equal(t, "localhost:4001", valid.Address())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Host = "" }},
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"negative timeout", func(c *Config) { c.IdleTimeout = -time.Second }},
		{"unknown encoding", func(c *Config) { c.Encoding = "ebcdic" }},
		{"bad backoff", func(c *Config) { c.Backoff.InitialDelay = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLookupEncoding(t *testing.T) {
	for _, name := range []string{"", "ascii", "UTF-8"} {
		cm, err := LookupEncoding(name)
		require.NoError(t, err)
		assert.Nil(t, cm, name)
	}
	for _, name := range []string{"latin1", "ISO-8859-1", "windows-1252", "cp1251"} {
		cm, err := LookupEncoding(name)
		require.NoError(t, err)
		assert.NotNil(t, cm, name)
	}
}

func TestState_Transitions(t *testing.T) {
	assert.True(t, validTransition(StateDisconnected, StateConnecting))
	assert.True(t, validTransition(StateConnecting, StateConnected))
	assert.True(t, validTransition(StateConnected, StateIdleTimedOut))
	assert.True(t, validTransition(StateIdleTimedOut, StateConnecting))
	assert.True(t, validTransition(StateConnected, StateConnecting))
	assert.False(t, validTransition(StateDisconnected, StateConnected))
	assert.False(t, validTransition(StateConnecting, StateIdleTimedOut))
	assert.Equal(t, "idle_timed_out", StateIdleTimedOut.String())
}
