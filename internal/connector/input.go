package connector

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/token"
	"github.com/zclconf/go-cty/cty"
)

// Input is a receiving endpoint (DataInput or Slot). It accepts at most one
// connection.
type Input struct {
	Connector
	optional bool
	async    bool
	owner    atomic.Pointer[InputTransition]

	mu         sync.Mutex
	connection *Connection
	message    *token.Token
}

// NewInput creates an input. Optional inputs may stay disconnected; async
// inputs are read when a token happens to be there and never hold back
// processing.
func NewInput(id nodeid.UUID, kind Kind, label string, typ cty.Type, optional, async bool) *Input {
	if !kind.IsInput() {
		panic(fmt.Sprintf("connector: %s is not an input kind", kind))
	}
	in := &Input{optional: optional, async: async}
	in.init(id, kind, label, typ)
	return in
}

func (in *Input) Optional() bool { return in.optional }
func (in *Input) Async() bool    { return in.async }

// Connection returns the incoming connection, or nil.
func (in *Input) Connection() *Connection {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.connection
}

// Connections returns the incoming connection as a slice.
func (in *Input) Connections() []*Connection {
	if c := in.Connection(); c != nil {
		return []*Connection{c}
	}
	return nil
}

// IsConnected reports whether a connection feeds this input.
func (in *Input) IsConnected() bool {
	return in.Connection() != nil
}

// Token returns the token forwarded for the current processing run.
func (in *Input) Token() *token.Token {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.message
}

// HasMessage reports whether a real (not no-message) token was forwarded.
func (in *Input) HasMessage() bool {
	return !in.Token().IsNoMessage()
}

// Value returns the forwarded payload.
func (in *Input) Value() (cty.Value, bool) {
	t := in.Token()
	if t.IsNoMessage() {
		return cty.NilVal, false
	}
	return t.Value, true
}

func (in *Input) setConnection(c *Connection) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.connection != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, in.uuid)
	}
	in.connection = c
	return nil
}

func (in *Input) clearConnection(c *Connection) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.connection == c {
		in.connection = nil
	}
}

func (in *Input) load(t *token.Token) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.message = t
}

func (in *Input) clear() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.message = nil
}

func (in *Input) deliver(c *Connection) {
	if t := in.owner.Load(); t != nil {
		t.connectionFilled(c)
	}
}
