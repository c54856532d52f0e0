package connector

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vk/flowgridgo/internal/observer"
	"github.com/vk/flowgridgo/internal/token"
)

// State is the per-cycle handshake state of a Connection.
type State int32

const (
	NotInitialized State = iota
	InFlight
	Done
)

func (s State) String() string {
	switch s {
	case NotInitialized:
		return "NOT_INITIALIZED"
	case InFlight:
		return "IN_FLIGHT"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Connection is a directed edge from one Output to one Input.
type Connection struct {
	id     int
	from   *Output
	to     *Input
	active atomic.Bool

	state atomic.Int32

	mu       sync.Mutex
	message  *token.Token
	fulcrums []Fulcrum

	// StateChanged fires on every handshake transition.
	StateChanged observer.Signal[State]
}

func (c *Connection) ID() int       { return c.id }
func (c *Connection) From() *Output { return c.from }
func (c *Connection) To() *Input    { return c.to }

// IsActive reports whether this is a trigger link.
func (c *Connection) IsActive() bool { return c.active.Load() }

// SetActive changes the trigger flag.
func (c *Connection) SetActive(active bool) { c.active.Store(active) }

// State returns the current handshake state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Message returns the in-flight token, or nil.
func (c *Connection) Message() *token.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

// Fulcrums returns a copy of the waypoints.
func (c *Connection) Fulcrums() []Fulcrum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.fulcrums)
}

// SetFulcrums replaces the waypoints.
func (c *Connection) SetFulcrums(f []Fulcrum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fulcrums = slices.Clone(f)
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s -> %s", c.from.UUID(), c.to.UUID())
}

// setMessage writes a committed token and moves the connection to IN_FLIGHT.
func (c *Connection) setMessage(t *token.Token) {
	c.mu.Lock()
	if s := c.State(); s != NotInitialized {
		c.mu.Unlock()
		violate("Connection.setMessage", "connection %s is %s, expected %s", c, s, NotInitialized)
	}
	c.message = t
	c.state.Store(int32(InFlight))
	c.StateChanged.Emit(InFlight)
	c.mu.Unlock()

	c.to.deliver(c)
}

// markProcessed moves an IN_FLIGHT connection to DONE and notifies the
// producing transition. It reports whether a transition happened.
func (c *Connection) markProcessed() bool {
	c.mu.Lock()
	if c.State() != InFlight {
		c.mu.Unlock()
		return false
	}
	c.message = nil
	c.state.Store(int32(Done))
	c.StateChanged.Emit(Done)
	c.mu.Unlock()

	if t := c.from.owner.Load(); t != nil {
		t.connectionDone(c)
	}
	return true
}

// reset returns the connection to NOT_INITIALIZED.
func (c *Connection) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.State()
	c.message = nil
	c.state.Store(int32(NotInitialized))
	if prev != NotInitialized {
		c.StateChanged.Emit(NotInitialized)
	}
}
