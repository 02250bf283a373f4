// Package connections tracks live client connections and their
// authentication state.
//
// A connection moves Unauthenticated -> Authenticated(username) -> Closed.
// Failed auth attempts and protocol errors never change the state; only the
// transport going away (Remove) closes it, and it is removed exactly once.
package connections

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/google/uuid"
)

// Peer is the transport end of a connection.
type Peer interface {
	// Send queues frame for delivery without blocking. It fails with
	// common.ErrSendBufferFull or common.ErrClosed.
	Send(frame []byte) error
	// Close tears the transport down. It must be safe to call more than once.
	Close() error
}

type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one live connection.
type Conn struct {
	ID          string
	ConnectedAt time.Time

	peer Peer

	mu       sync.RWMutex
	state    State
	username string
}

// Username returns the bound username once the connection is authenticated.
func (c *Conn) Username() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username, c.state == Authenticated
}

func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Send hands frame to the peer's non-blocking queue.
func (c *Conn) Send(frame []byte) error {
	if c.State() == Closed {
		return common.ErrClosed
	}
	return c.peer.Send(frame)
}

// Close closes the underlying peer.
func (c *Conn) Close() error {
	return c.peer.Close()
}

// Registry is the set of live connections. It has its own lock and never
// calls into the message log or the stores while holding it.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
		now:   time.Now,
	}
}

// Register adds an unauthenticated connection for peer.
func (r *Registry) Register(peer Peer) *Conn {
	c := &Conn{
		ID:          uuid.NewString(),
		ConnectedAt: r.now(),
		peer:        peer,
		state:       Unauthenticated,
	}

	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()

	return c
}

// MarkAuthenticated binds username to c and adds it to the broadcast set.
func (r *Registry) MarkAuthenticated(c *Conn, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == Closed:
		return common.ErrClosed
	case c.state == Authenticated:
		return common.ErrAlreadyAuthenticated
	}
	if _, ok := r.conns[c.ID]; !ok {
		return common.ErrClosed
	}

	c.state = Authenticated
	c.username = username
	return nil
}

// Remove drops c from the registry and marks it closed. Only the call that
// actually removed it returns true, so concurrent teardown paths can race
// safely.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID]; !ok {
		return false
	}
	delete(r.conns, c.ID)

	c.mu.Lock()
	c.state = Closed
	c.mu.Unlock()

	return true
}

// Snapshot copies the authenticated connections under the read lock. The
// caller iterates the copy, so concurrent Register/Remove calls are fine.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		if c.State() == Authenticated {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the live connection with id.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Count returns the number of live connections in any state.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Shutdown removes and closes every connection.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*Conn, 0, len(r.conns))
	for id, c := range r.conns {
		delete(r.conns, id)
		c.mu.Lock()
		c.state = Closed
		c.mu.Unlock()
		all = append(all, c)
	}
	r.mu.Unlock()

	for _, c := range all {
		_ = c.peer.Close()
	}
}
