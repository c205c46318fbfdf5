// Package server accepts TCP connections and drives each one through the
// chat protocol: greeting, authentication, then the command dispatch loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/framechat/internal/auth"
	"github.com/vovakirdan/framechat/internal/core"
	"github.com/vovakirdan/framechat/internal/frame"
	"github.com/vovakirdan/framechat/internal/metrics"
)

// ErrShutdownTimeout is returned when live connections fail to drain within
// the configured bound.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config holds the TCP server configuration.
type Config struct {
	// Addr is the listen address (host:port).
	Addr string

	// MaxFrame caps the payload length of a single frame. Peers
	// announcing more are disconnected before the body is read.
	MaxFrame uint32

	// CommandRate and CommandBurst bound how fast an authenticated
	// connection may issue commands. A zero rate disables limiting.
	CommandRate  float64
	CommandBurst int

	// ShutdownTimeout bounds the wait for connection handlers to exit
	// after the listener closes.
	ShutdownTimeout time.Duration
}

// Server owns the listener and the set of live sockets. Each accepted
// connection runs in its own goroutine; the registry is the only state
// shared between them.
type Server struct {
	cfg      Config
	registry *core.Registry
	verifier *auth.Verifier
	metrics  *metrics.Metrics
	log      zerolog.Logger

	mu      sync.Mutex
	sockets map[net.Conn]struct{}
	wg      sync.WaitGroup
	ready   atomic.Bool
	addr    atomic.Value
}

// New builds a server. Zero config fields fall back to working defaults.
func New(cfg Config, registry *core.Registry, verifier *auth.Verifier, m *metrics.Metrics, logger *zerolog.Logger) *Server {
	if cfg.MaxFrame == 0 {
		cfg.MaxFrame = frame.DefaultMaxPayload
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		verifier: verifier,
		metrics:  m,
		log:      lg,
		sockets:  make(map[net.Conn]struct{}),
	}
}

// Listen binds the address and serves until the context is cancelled, then
// drains: stop accepting, close every live socket, wait bounded for the
// handlers to observe their broken sockets and exit.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	s.addr.Store(ln.Addr().String())
	s.ready.Store(true)
	defer s.ready.Store(false)
	s.log.Info().Str("addr", ln.Addr().String()).Msg("chat server started")

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					// Listener closed during shutdown.
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.log.Error().Err(err).Msg("accept failed")
				continue
			}

			s.metrics.ConnectionsTotal.Inc()
			s.metrics.ActiveConnections.Inc()
			s.track(conn)

			sess := s.newSession(conn)
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.untrack(conn)
				sess.run()
			}()
		}
	}()

	<-ctx.Done()
	s.log.Info().Msg("shutting down, closing listener")
	if err := ln.Close(); err != nil {
		s.log.Warn().Err(err).Msg("close listener")
	}
	<-acceptDone

	// Break every live receive loop; handlers tear down on the closed
	// socket.
	s.mu.Lock()
	for conn := range s.sockets {
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("all connections closed")
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		s.log.Warn().Dur("timeout", s.cfg.ShutdownTimeout).Msg("connections did not drain in time")
		return ErrShutdownTimeout
	}
}

// Ready reports whether the listener is bound. Used by the readiness probe.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Addr reports the bound listen address, empty before Listen binds.
func (s *Server) Addr() string {
	if v := s.addr.Load(); v != nil {
		return v.(string)
	}
	return ""
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets, conn)
}
