// Package relay implements the message relay engine and the liveness
// sweeper that together move addressed messages between registered clients
// and evict the ones that stop sending keep-alives.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/peerlink-io/peerlink/internal/logging"
	"github.com/peerlink-io/peerlink/internal/metrics"
	"github.com/peerlink-io/peerlink/internal/protocol"
	"github.com/peerlink-io/peerlink/internal/registry"
)

// defaultSendTimeout bounds a single forward so a stalled receiver cannot
// back up the sender's read loop.
const defaultSendTimeout = 5 * time.Second

// Engine interprets inbound messages from admitted connections. It is
// stateless; the registry is the only shared state it touches.
type Engine struct {
	reg         *registry.Registry
	logger      *slog.Logger
	metrics     *metrics.Metrics
	sendTimeout time.Duration
}

// NewEngine creates a relay engine over the given registry.
func NewEngine(reg *registry.Registry, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Engine{
		reg:         reg,
		logger:      logger,
		metrics:     m,
		sendTimeout: defaultSendTimeout,
	}
}

// Handle processes one raw inbound message from sender. Malformed input and
// unknown types are per-message failures: they are logged and dropped and
// the connection stays open. A LEAVE removes the sender from the registry,
// which closes its transport; the caller observes that through its next
// read.
func (e *Engine) Handle(ctx context.Context, sender *registry.Client, raw []byte) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		e.metrics.RecordMalformed()
		e.logger.Debug("dropping malformed message",
			logging.KeyClientID, sender.ID(),
			logging.KeyError, err)
		return
	}

	// The source is always the authenticated identifier; client-supplied
	// values are overwritten, never trusted.
	msg.Src = sender.ID()

	switch msg.Type {
	case protocol.TypeHeartbeat:
		sender.Touch()
		e.metrics.RecordHeartbeat()

	case protocol.TypeLeave:
		e.logger.Info("client leaving",
			logging.KeyClientID, sender.ID())
		if e.reg.RemoveClient(sender) {
			e.metrics.RecordDisconnect(metrics.DisconnectLeave)
		}

	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeCandidate:
		e.relay(ctx, sender, msg)

	default:
		// Valid but non-client types (OPEN, ERROR, ...) have no inbound
		// semantics; same treatment as an unrecognized type.
		e.metrics.RecordRelayError(metrics.RelayUnknownType)
		e.logger.Debug("ignoring unexpected message type",
			logging.KeyClientID, sender.ID(),
			logging.KeyMessageType, string(msg.Type))
	}
}

// relay forwards an addressed message to its destination, or reports the
// absence of the destination back to the sender.
func (e *Engine) relay(ctx context.Context, sender *registry.Client, msg *protocol.Message) {
	if msg.Dst == "" {
		// No defined semantics for an unaddressed negotiation message.
		e.logger.Debug("ignoring unaddressed message",
			logging.KeyClientID, sender.ID(),
			logging.KeyMessageType, string(msg.Type))
		return
	}

	target, ok := e.reg.Lookup(msg.Dst)
	if !ok {
		e.metrics.RecordRelayError(metrics.RelayTargetAbsent)
		e.logger.Debug("relay target absent",
			logging.KeyClientID, sender.ID(),
			logging.KeyDestination, msg.Dst,
			logging.KeyMessageType, string(msg.Type))
		e.send(ctx, sender, protocol.PeerNotFound(msg.Dst))
		return
	}

	// Lookup happened under the registry lock; the send does not. A target
	// that is tearing down is a silent no-op and will be reaped by its own
	// disconnect path or the sweeper.
	if err := e.send(ctx, target, msg); err != nil {
		e.metrics.RecordRelayError(metrics.RelaySendFailed)
		e.logger.Debug("relay send failed",
			logging.KeyDestination, msg.Dst,
			logging.KeyError, err)
		return
	}
	e.metrics.RecordRelayed(string(msg.Type))
}

// send writes a message to a client with the engine's send timeout. Errors
// are returned for accounting only; they are never fatal for the sender's
// connection.
func (e *Engine) send(ctx context.Context, c *registry.Client, msg *protocol.Message) error {
	ctx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	return c.Send(ctx, msg)
}
