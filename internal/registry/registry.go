// Package registry maintains the live mapping from client identifier to
// connection record. It is the single source of truth for which peers are
// currently reachable and the only shared mutable state in the server.
package registry

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/peerlink-io/peerlink/internal/identity"
	"github.com/peerlink-io/peerlink/internal/logging"
)

// maxGenerateAttempts bounds identifier generation retries against a nearly
// saturated registry before giving up with ErrCapacity.
const maxGenerateAttempts = 16

var (
	// ErrIDTaken is returned by Insert when the identifier is already bound.
	ErrIDTaken = errors.New("identifier already registered")

	// ErrCapacity is returned when identifier generation cannot find a free
	// identifier within the retry bound.
	ErrCapacity = errors.New("registry capacity exhausted")
)

// Registry is a synchronized identifier -> client mapping. All mutations are
// serialized under a single lock; no network I/O ever happens while the lock
// is held. The zero value is not usable; use New.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	// generate is swapped in tests to force collisions.
	generate func() string
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Registry{
		logger:   logger,
		clients:  make(map[string]*Client),
		generate: identity.Generate,
	}
}

// Insert atomically binds the client's identifier to its record. It returns
// ErrIDTaken if a live record already holds the identifier; the existing
// record is untouched in that case.
func (r *Registry) Insert(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.ID()]; ok {
		return ErrIDTaken
	}
	r.clients[c.ID()] = c
	return nil
}

// Lookup returns the client bound to id, if any.
func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	return c, ok
}

// Remove unbinds id and closes the record's transport handle. It is
// idempotent: removing an absent identifier is a no-op. Every path that
// drops a peer (explicit leave, transport error or close, sweep eviction)
// routes through here so cleanup never diverges.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	// Transport teardown happens outside the lock.
	if err := c.CloseTransport(); err != nil {
		r.logger.Debug("transport close failed",
			logging.KeyClientID, id,
			logging.KeyError, err)
	}
	return true
}

// RemoveClient removes the record only if c is still the record bound to its
// identifier. A connection whose read loop winds down after its identifier
// was evicted and re-registered must not tear down the newer record.
func (r *Registry) RemoveClient(c *Client) bool {
	r.mu.Lock()
	existing, ok := r.clients[c.ID()]
	if !ok || existing != c {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, c.ID())
	r.mu.Unlock()

	if err := c.CloseTransport(); err != nil {
		r.logger.Debug("transport close failed",
			logging.KeyClientID, c.ID(),
			logging.KeyError, err)
	}
	return true
}

// Snapshot returns a consistent point-in-time copy of the live identifier
// set.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// SnapshotClients returns a consistent point-in-time copy of the live client
// records, for the sweeper's staleness pass.
func (r *Registry) SnapshotClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// Count returns the number of live records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// GenerateID produces an identifier that is unused at the time of the call.
// The result is not reserved; admission still goes through Insert and may
// race with another claimant. Returns ErrCapacity after the retry bound.
func (r *Registry) GenerateID() (string, error) {
	for i := 0; i < maxGenerateAttempts; i++ {
		id := r.generate()

		r.mu.RLock()
		_, taken := r.clients[id]
		r.mu.RUnlock()

		if !taken {
			return id, nil
		}
	}
	return "", ErrCapacity
}

// Clear removes and closes every record. Used during shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for id, c := range clients {
		if err := c.CloseTransport(); err != nil {
			r.logger.Debug("transport close failed",
				logging.KeyClientID, id,
				logging.KeyError, err)
		}
	}
}
