package hci

import (
	"sync"

	"github.com/nimbusvale/directble/codec"
)

// Role is the link role for a given connection handle.
type Role int

const (
	RoleCentral Role = iota
	RolePeripheral
)

// Conn is the per-handle connection state the spec's connection registry
// tracks: address, type, role, negotiated ATT MTU, and whatever L2CAP state
// the l2cap package chooses to stash via L2CAPState (kept opaque here so hci
// does not need to import l2cap).
type Conn struct {
	Handle  uint16
	Addr    codec.Address
	Role    Role
	MTU     int

	mu         sync.Mutex
	l2capState interface{}
}

func (c *Conn) SetL2CAPState(v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.l2capState = v
}

func (c *Conn) L2CAPState() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.l2capState
}

// registry is the map from handle -> Conn named in spec §4.1, created on
// Connection-Complete and destroyed on Disconnection-Complete after all
// listeners are notified.
type registry struct {
	mu    sync.RWMutex
	conns map[uint16]*Conn
}

func newRegistry() *registry { return &registry{conns: make(map[uint16]*Conn)} }

func (r *registry) add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.Handle] = c
}

func (r *registry) get(handle uint16) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[handle]
	return c, ok
}

func (r *registry) remove(handle uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, handle)
}

func (r *registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
