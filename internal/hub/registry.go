package hub

import (
	"time"

	"github.com/google/uuid"
)

// connection is one live client. The registry owns these records; every
// field mutation happens on the hub goroutine.
type connection struct {
	id          uuid.UUID
	remoteAddr  string
	userAgent   string
	connectedAt time.Time

	authenticated bool
	authPending   bool
	userID        string

	// lastSeen is refreshed on every inbound frame and on transport
	// pong, and read by the liveness sweep.
	lastSeen time.Time

	writer *clientWriter
}

// registry is the set of live connections, keyed by id. Owned by the hub
// goroutine.
type registry struct {
	conns map[uuid.UUID]*connection
}

func newRegistry() *registry {
	return &registry{conns: make(map[uuid.UUID]*connection)}
}

func (r *registry) add(c *connection) {
	r.conns[c.id] = c
}

// get returns nil for unknown ids.
func (r *registry) get(id uuid.UUID) *connection {
	return r.conns[id]
}

// remove is idempotent: disconnects race with sweeper eviction.
func (r *registry) remove(id uuid.UUID) {
	delete(r.conns, id)
}

func (r *registry) len() int {
	return len(r.conns)
}

func (r *registry) authenticatedCount() int {
	n := 0
	for _, c := range r.conns {
		if c.authenticated {
			n++
		}
	}
	return n
}
