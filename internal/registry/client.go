package registry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/peerlink-io/peerlink/internal/protocol"
)

// Sender is the transport handle owned by a client record. Send is
// best-effort: implementations must not block indefinitely and must tolerate
// being called after Close.
type Sender interface {
	Send(ctx context.Context, msg *protocol.Message) error
	Close() error
}

// Client represents one admitted peer: an immutable identifier bound to an
// exclusively owned transport handle, plus the liveness timestamp read by
// the sweeper.
type Client struct {
	id    string
	token string

	sender Sender

	lastSeen atomic.Int64
}

// NewClient creates a client record and stamps its liveness clock.
func NewClient(id, token string, sender Sender) *Client {
	c := &Client{
		id:     id,
		token:  token,
		sender: sender,
	}
	c.Touch()
	return c
}

// ID returns the client's identifier.
func (c *Client) ID() string {
	return c.id
}

// Token returns the opaque connection token supplied at admission.
// It is carried for API compatibility and not validated.
func (c *Client) Token() string {
	return c.token
}

// Send forwards a message to this client's transport handle. Failures are
// returned for accounting but a closed or tearing-down transport is expected
// here; callers treat errors as a no-op signal, never as fatal.
func (c *Client) Send(ctx context.Context, msg *protocol.Message) error {
	return c.sender.Send(ctx, msg)
}

// CloseTransport closes the underlying transport handle. It is called only
// by the registry's removal path.
func (c *Client) CloseTransport() error {
	return c.sender.Close()
}

// Touch updates the liveness timestamp to now.
func (c *Client) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns the time of the last received keep-alive.
func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}
