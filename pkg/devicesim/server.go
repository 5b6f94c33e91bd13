package devicesim

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/c360/readport/errors"
)

// Handler serves one accepted connection. It should return when ctx is done.
// Returning closes the connection.
type Handler interface {
	Serve(ctx context.Context, conn net.Conn) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, conn net.Conn) error

// Serve calls f
func (f HandlerFunc) Serve(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

// Server accepts connections and hands each to a Handler
type Server struct {
	listener net.Listener
	handlers []Handler
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	accepted atomic.Int64
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	closed   bool
}

// Listen starts a server on address. At least one handler is required.
// The server logs through slog.Default() as it was at the time of the call.
func Listen(address string, handlers ...Handler) (*Server, error) {
	if len(handlers) == 0 {
		return nil, errors.Invalidf("devicesim", "Listen", "at least one handler required")
	}
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.WrapTransient(err, "devicesim", "Listen", "bind "+address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		listener: ln,
		handlers: handlers,
		logger:   slog.Default().With("component", "devicesim"),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the bound host
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the bound port
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// Accepted returns how many connections were accepted so far
func (s *Server) Accepted() int {
	return int(s.accepted.Load())
}

// Close stops accepting, cancels running handlers and closes their connections
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !stderrors.Is(err, net.ErrClosed) {
				s.logger.Warn("Accept failed", "error", err)
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		n := int(s.accepted.Add(1))
		handler := s.handlers[min(n, len(s.handlers))-1]

		s.wg.Add(1)
		go s.serve(conn, handler, n)
	}
}

func (s *Server) serve(conn net.Conn, handler Handler, n int) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	s.logger.Debug("Client connected", "remote", conn.RemoteAddr().String(), "connection", n)
	if err := handler.Serve(s.ctx, conn); err != nil && s.ctx.Err() == nil {
		s.logger.Debug("Handler ended", "connection", n, "error", err)
	}
}
