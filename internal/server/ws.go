package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/peerlink-io/peerlink/internal/identity"
	"github.com/peerlink-io/peerlink/internal/logging"
	"github.com/peerlink-io/peerlink/internal/metrics"
	"github.com/peerlink-io/peerlink/internal/protocol"
	"github.com/peerlink-io/peerlink/internal/recovery"
	"github.com/peerlink-io/peerlink/internal/registry"
)

// rejectSendTimeout caps the final protocol message written to a connection
// that failed admission.
const rejectSendTimeout = 2 * time.Second

// wsSender adapts a WebSocket connection to the registry's Sender. Writes
// are serialized; a closed handle turns further sends into no-ops.
type wsSender struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func newWSSender(conn *websocket.Conn) *wsSender {
	return &wsSender{conn: conn}
}

// Send encodes and writes one message. Sending on a closed handle returns
// nil; the peer is gone and the relay treats delivery as best-effort.
func (s *wsSender) Send(ctx context.Context, msg *protocol.Message) error {
	if s.closed.Load() {
		return nil
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Close performs a normal closure. Idempotent.
func (s *wsSender) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close(websocket.StatusNormalClosure, "connection closed")
}

// closeWithStatus closes with an error status, used for admission failures.
func (s *wsSender) closeWithStatus(code websocket.StatusCode, reason string) error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close(code, reason)
}

// handleWebSocket upgrades the connection, runs the admission handshake, and
// on success enters the per-connection read loop. The handler returns only
// when the connection is finished.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	defer recovery.RecoverWithLog(s.logger, "server.websocket")

	q := r.URL.Query()
	key := q.Get("key")
	id := q.Get("id")
	token := q.Get("token")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Debug("websocket accept failed",
			logging.KeyRemoteAddr, r.RemoteAddr,
			logging.KeyError, err)
		return
	}
	conn.SetReadLimit(s.cfg.Server.MaxMessageBytes)

	sender := newWSSender(conn)
	ctx := r.Context()

	if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.Key)) != 1 {
		s.metrics.RecordReject(metrics.RejectInvalidKey)
		s.logger.Warn("rejected connection with invalid key",
			logging.KeyRemoteAddr, r.RemoteAddr)
		s.reject(ctx, sender, protocol.InvalidKey(), "invalid key")
		return
	}

	if id == "" {
		id, err = s.reg.GenerateID()
		if err != nil {
			s.metrics.RecordReject(metrics.RejectCapacity)
			s.logger.Error("identifier generation failed",
				logging.KeyRemoteAddr, r.RemoteAddr,
				logging.KeyError, err)
			s.reject(ctx, sender, protocol.Error("server has reached its capacity"), "capacity")
			return
		}
	} else if err := identity.Validate(id); err != nil {
		s.metrics.RecordReject(metrics.RejectInvalidID)
		s.logger.Warn("rejected connection with invalid identifier",
			logging.KeyRemoteAddr, r.RemoteAddr,
			logging.KeyError, err)
		s.reject(ctx, sender, protocol.Error("invalid identifier"), "invalid id")
		return
	}

	client := registry.NewClient(id, token, sender)
	if err := s.reg.Insert(client); err != nil {
		s.metrics.RecordReject(metrics.RejectIDTaken)
		s.logger.Warn("rejected connection for taken identifier",
			logging.KeyClientID, id,
			logging.KeyRemoteAddr, r.RemoteAddr)
		s.reject(ctx, sender, protocol.IDTaken(id), "identifier taken")
		return
	}

	s.metrics.RecordAdmit()
	s.logger.Info("client connected",
		logging.KeyClientID, id,
		logging.KeyRemoteAddr, r.RemoteAddr)

	if err := sender.Send(ctx, protocol.Open(id)); err != nil {
		s.logger.Debug("failed to confirm admission",
			logging.KeyClientID, id,
			logging.KeyError, err)
		if s.reg.RemoveClient(client) {
			s.metrics.RecordDisconnect(metrics.DisconnectTransport)
		}
		return
	}

	s.readLoop(ctx, client, conn)
}

// reject sends a final protocol message and closes the connection without
// registering it.
func (s *Server) reject(ctx context.Context, sender *wsSender, msg *protocol.Message, reason string) {
	sendCtx, cancel := context.WithTimeout(ctx, rejectSendTimeout)
	defer cancel()

	_ = sender.Send(sendCtx, msg)
	_ = sender.closeWithStatus(websocket.StatusPolicyViolation, reason)
}

// readLoop pumps inbound frames into the relay engine until the connection
// drops. Messages beyond the per-connection rate limit are dropped, not
// fatal; the transport read limit handles oversized frames by closing the
// connection.
func (s *Server) readLoop(ctx context.Context, client *registry.Client, conn *websocket.Conn) {
	defer recovery.RecoverWithLog(s.logger, "server.readloop")
	defer func() {
		if s.reg.RemoveClient(client) {
			s.metrics.RecordDisconnect(metrics.DisconnectTransport)
			s.logger.Info("client disconnected",
				logging.KeyClientID, client.ID())
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.Server.MessagesPerSecond), s.cfg.Server.MessagesPerSecond)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Debug("read ended",
				logging.KeyClientID, client.ID(),
				logging.KeyError, err)
			return
		}

		if !limiter.Allow() {
			s.logger.Warn("rate limit exceeded, dropping message",
				logging.KeyClientID, client.ID())
			continue
		}

		s.engine.Handle(ctx, client, data)
	}
}
