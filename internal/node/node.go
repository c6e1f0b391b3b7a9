// Package node wires the relay components together and owns their
// lifecycle: registry, relay engine, liveness sweeper, public server, and
// the optional health endpoint.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/peerlink-io/peerlink/internal/config"
	"github.com/peerlink-io/peerlink/internal/health"
	"github.com/peerlink-io/peerlink/internal/logging"
	"github.com/peerlink-io/peerlink/internal/metrics"
	"github.com/peerlink-io/peerlink/internal/recovery"
	"github.com/peerlink-io/peerlink/internal/registry"
	"github.com/peerlink-io/peerlink/internal/relay"
	"github.com/peerlink-io/peerlink/internal/server"
)

// stopTimeout bounds graceful shutdown of the HTTP servers.
const stopTimeout = 5 * time.Second

// Node is the assembled relay server.
type Node struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	reg          *registry.Registry
	engine       *relay.Engine
	sweeper      *relay.Sweeper
	server       *server.Server
	healthServer *health.Server

	running     atomic.Bool
	stopOnce    sync.Once
	cancelSweep context.CancelFunc
	wg          sync.WaitGroup
	startedAt   time.Time
}

// New assembles a node from configuration. Nothing listens until Start.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Node {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if m == nil {
		m = metrics.Default()
	}

	reg := registry.New(logger)
	engine := relay.NewEngine(reg, logger, m)
	sweeper := relay.NewSweeper(reg, cfg.Relay.SweepInterval, cfg.Relay.StalenessTimeout, logger, m)
	srv := server.New(cfg, reg, engine, logger, m)

	n := &Node{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		reg:     reg,
		engine:  engine,
		sweeper: sweeper,
		server:  srv,
	}

	if cfg.Health.Enabled {
		n.healthServer = health.NewServer(health.ServerConfig{
			Address:      cfg.Health.Address,
			ReadTimeout:  cfg.Health.ReadTimeout,
			WriteTimeout: cfg.Health.WriteTimeout,
		}, n)
	}

	return n
}

// Start brings the node up: the public server, the sweeper, and the health
// endpoint when configured.
func (n *Node) Start() error {
	if n.running.Load() {
		return fmt.Errorf("node already running")
	}

	if err := n.server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	n.cancelSweep = cancel
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer recovery.RecoverWithLog(n.logger, "node.sweeper")
		n.sweeper.Run(sweepCtx)
	}()

	if n.healthServer != nil {
		if err := n.healthServer.Start(); err != nil {
			cancel()
			n.server.Stop(context.Background())
			return fmt.Errorf("start health server: %w", err)
		}
		n.logger.Info("health server started",
			logging.KeyAddress, n.healthServer.Address().String())
	}

	n.startedAt = time.Now()
	n.running.Store(true)

	n.logger.Info("node started",
		logging.KeyAddress, n.server.Addr().String())

	return nil
}

// Stop shuts the node down: health endpoint first, then the sweeper, then
// the public server, which drains the registry.
func (n *Node) Stop() error {
	var err error
	n.stopOnce.Do(func() {
		n.logger.Info("stopping node")
		n.running.Store(false)

		if n.healthServer != nil {
			n.healthServer.Stop()
		}

		if n.cancelSweep != nil {
			n.cancelSweep()
		}

		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		err = n.server.Stop(ctx)

		n.wg.Wait()

		n.logger.Info("node stopped")
	})

	return err
}

// StopWithContext stops with a caller-supplied deadline.
func (n *Node) StopWithContext(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- n.Stop()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns true if the node is running.
func (n *Node) IsRunning() bool {
	return n.running.Load()
}

// Stats returns current relay statistics.
func (n *Node) Stats() health.Stats {
	return health.Stats{
		Peers:     n.reg.Count(),
		Uptime:    n.server.Uptime(),
		StartedAt: n.startedAt,
	}
}

// Addr returns the public listener address, or nil before Start.
func (n *Node) Addr() net.Addr {
	return n.server.Addr()
}
