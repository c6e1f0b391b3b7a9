package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"nhooyr.io/websocket"

	"github.com/peerlink-io/peerlink/internal/config"
	"github.com/peerlink-io/peerlink/internal/metrics"
	"github.com/peerlink-io/peerlink/internal/node"
	"github.com/peerlink-io/peerlink/internal/protocol"
)

// ============================================================================
// Relay runner
// ============================================================================

// relayRunner owns one relay node and the clients connected to it during a
// scenario.
type relayRunner struct {
	t    *testing.T
	node *node.Node
	cfg  *config.Config
}

func startRelay(t *testing.T, mutate func(*config.Config)) *relayRunner {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	if mutate != nil {
		mutate(cfg)
	}

	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	n := node.New(cfg, nil, m)
	if err := n.Start(); err != nil {
		t.Fatalf("starting relay: %v", err)
	}
	t.Cleanup(func() {
		_ = n.Stop()
	})

	return &relayRunner{t: t, node: n, cfg: cfg}
}

func (r *relayRunner) wsURL(id string) string {
	u := fmt.Sprintf("ws://%s%s?key=%s", r.node.Addr().String(), r.cfg.Server.Path, r.cfg.Server.Key)
	if id != "" {
		u += "&id=" + id
	}
	return u
}

// client is a connected relay client with its admission already confirmed.
type client struct {
	t    *testing.T
	id   string
	conn *websocket.Conn
}

// connect dials and consumes the OPEN acknowledgment.
func (r *relayRunner) connect(id string) *client {
	r.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, r.wsURL(id), nil)
	if err != nil {
		r.t.Fatalf("dialing as %q: %v", id, err)
	}
	r.t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	})

	c := &client{t: r.t, conn: conn}
	msg := c.read()
	if msg.Type != protocol.TypeOpen {
		r.t.Fatalf("admission as %q: got %s, want OPEN", id, msg.Type)
	}
	c.id = msg.Src
	return c
}

// dialExpecting dials and asserts the first message type, for rejection
// scenarios.
func (r *relayRunner) dialExpecting(id string, want protocol.MessageType) {
	r.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, r.wsURL(id), nil)
	if err != nil {
		r.t.Fatalf("dialing as %q: %v", id, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	c := &client{t: r.t, conn: conn}
	if msg := c.read(); msg.Type != want {
		r.t.Fatalf("first message = %s, want %s", msg.Type, want)
	}
}

func (c *client) read() *protocol.Message {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, data, err := c.conn.Read(ctx)
	if err != nil {
		c.t.Fatalf("%s: read: %v", c.id, err)
	}
	msg, err := protocol.Parse(data)
	if err != nil {
		c.t.Fatalf("%s: parse %s: %v", c.id, data, err)
	}
	return msg
}

// readUntilClosed drains messages until the transport closes, returning what
// was received.
func (c *client) readUntilClosed(timeout time.Duration) []*protocol.Message {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var msgs []*protocol.Message
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return msgs
		}
		if msg, err := protocol.Parse(data); err == nil {
			msgs = append(msgs, msg)
		}
	}
}

func (c *client) write(raw string) {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		c.t.Fatalf("%s: write: %v", c.id, err)
	}
}

func (c *client) send(msg *protocol.Message) {
	c.t.Helper()

	data, err := msg.Encode()
	if err != nil {
		c.t.Fatalf("%s: encode: %v", c.id, err)
	}
	c.write(string(data))
}

// heartbeatLoop sends keep-alives at the given cadence until stop is closed.
func (c *client) heartbeatLoop(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				err := c.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"HEARTBEAT"}`))
				cancel()
				if err != nil {
					return
				}
			}
		}
	}()
}
