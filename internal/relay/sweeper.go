package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/peerlink-io/peerlink/internal/logging"
	"github.com/peerlink-io/peerlink/internal/metrics"
	"github.com/peerlink-io/peerlink/internal/protocol"
	"github.com/peerlink-io/peerlink/internal/recovery"
	"github.com/peerlink-io/peerlink/internal/registry"
)

// expireSendTimeout caps the best-effort EXPIRE notification so a dead
// transport cannot stall the sweep pass.
const expireSendTimeout = 1 * time.Second

// Sweeper periodically scans the registry and evicts clients whose last
// keep-alive is older than the staleness timeout.
type Sweeper struct {
	reg      *registry.Registry
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// now is swapped in tests.
	now func() time.Time
}

// NewSweeper creates a sweeper that scans every interval and evicts records
// stale for longer than timeout. The timeout must exceed the client
// keep-alive interval; config validation enforces the ratio.
func NewSweeper(reg *registry.Registry, interval, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Sweeper{
		reg:      reg,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Run executes sweep passes until ctx is canceled. It is intended to run as
// a dedicated goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	defer recovery.RecoverWithLog(s.logger, "relay.sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep performs one eviction pass over a consistent snapshot.
func (s *Sweeper) sweep(ctx context.Context) {
	start := s.now()

	for _, c := range s.reg.SnapshotClients() {
		age := start.Sub(c.LastSeen())
		if age <= s.timeout {
			continue
		}
		s.evict(ctx, c, age)
	}
}

// evict notifies the stale client and removes it through the registry's
// single removal path. The notification is best-effort: a peer that already
// dropped its transport simply misses it.
func (s *Sweeper) evict(ctx context.Context, c *registry.Client, age time.Duration) {
	sendCtx, cancel := context.WithTimeout(ctx, expireSendTimeout)
	defer cancel()

	if err := c.Send(sendCtx, protocol.Expire()); err != nil {
		s.logger.Debug("expire notification failed",
			logging.KeyClientID, c.ID(),
			logging.KeyError, err)
	}

	if s.reg.RemoveClient(c) {
		s.metrics.RecordExpired()
		s.metrics.RecordDisconnect(metrics.DisconnectExpired)
		s.logger.Info("evicted stale client",
			logging.KeyClientID, c.ID(),
			logging.KeyDuration, age)
	}
}
