// Package server exposes the relay over WebSocket plus the small HTTP side
// API for status, identifier issuance, and discovery.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"

	"github.com/peerlink-io/peerlink/internal/config"
	"github.com/peerlink-io/peerlink/internal/logging"
	"github.com/peerlink-io/peerlink/internal/metrics"
	"github.com/peerlink-io/peerlink/internal/recovery"
	"github.com/peerlink-io/peerlink/internal/registry"
	"github.com/peerlink-io/peerlink/internal/relay"
)

// Server is the public-facing HTTP server: the WebSocket relay endpoint and
// the request/response side channel share one listener.
type Server struct {
	cfg     *config.Config
	reg     *registry.Registry
	engine  *relay.Engine
	logger  *slog.Logger
	metrics *metrics.Metrics

	httpServer *http.Server
	listener   net.Listener
	startedAt  time.Time
	running    atomic.Bool
}

// New creates a server wired to the given registry and relay engine.
func New(cfg *config.Config, reg *registry.Registry, engine *relay.Engine, logger *slog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if m == nil {
		m = metrics.Default()
	}

	s := &Server{
		cfg:     cfg,
		reg:     reg,
		engine:  engine,
		logger:  logger,
		metrics: m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc(cfg.Server.Path, s.handleWebSocket)
	mux.HandleFunc(cfg.Server.Path+"/", s.handleAPI)

	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: mux,
	}

	return s
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return err
	}

	// Cap concurrent transport connections at the listener.
	ln = netutil.LimitListener(ln, s.cfg.Server.MaxConnections)

	s.listener = ln
	s.startedAt = time.Now()
	s.running.Store(true)

	go func() {
		defer recovery.RecoverWithLog(s.logger, "server.serve")

		var serveErr error
		if s.cfg.Server.TLS.Enabled() {
			serveErr = s.httpServer.ServeTLS(ln, s.cfg.Server.TLS.Cert, s.cfg.Server.TLS.Key)
		} else {
			serveErr = s.httpServer.Serve(ln)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("server stopped",
				logging.KeyComponent, "server",
				logging.KeyError, serveErr)
		}
	}()

	s.logger.Info("server listening",
		logging.KeyAddress, ln.Addr().String(),
		"path", s.cfg.Server.Path,
		"tls", s.cfg.Server.TLS.Enabled())

	return nil
}

// Stop drains the registry, which closes every live WebSocket and unblocks
// the per-connection read loops, then shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.Swap(false) {
		return nil
	}

	ids := s.reg.Snapshot()
	s.reg.Clear()
	for range ids {
		s.metrics.RecordDisconnect(metrics.DisconnectShutdown)
	}

	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Uptime returns the time since Start.
func (s *Server) Uptime() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}
