package connector

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/token"
	"github.com/zclconf/go-cty/cty"
)

// OutputState is IDLE between cycles and ACTIVE while committed tokens are
// still being consumed.
type OutputState int32

const (
	OutputIdle OutputState = iota
	OutputActive
)

func (s OutputState) String() string {
	if s == OutputActive {
		return "ACTIVE"
	}
	return "IDLE"
}

// Output is a producing endpoint (DataOutput or Event).
type Output struct {
	Connector
	forced bool
	owner  atomic.Pointer[OutputTransition]

	mu          sync.Mutex
	state       OutputState
	pending     *token.Token
	committed   *token.Token
	seq         int64
	connections []*Connection
}

// NewOutput creates an output. Forced outputs count as connected even
// without downstream listeners.
func NewOutput(id nodeid.UUID, kind Kind, label string, typ cty.Type, forced bool) *Output {
	if !kind.IsOutput() {
		panic(fmt.Sprintf("connector: %s is not an output kind", kind))
	}
	o := &Output{forced: forced}
	o.init(id, kind, label, typ)
	return o
}

// Forced reports whether the output must emit without listeners.
func (o *Output) Forced() bool { return o.forced }

// Publish stages a value for the next commit.
func (o *Output) Publish(v cty.Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = token.New(v)
}

// Trigger stages an event token.
func (o *Output) Trigger() {
	o.Publish(cty.EmptyObjectVal)
}

// HasPending reports whether a value was published since the last commit.
func (o *Output) HasPending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending != nil
}

// State returns IDLE or ACTIVE.
func (o *Output) State() OutputState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Sequence returns the sequence number of the last commit.
func (o *Output) Sequence() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seq
}

// Committed returns the token of the last commit.
func (o *Output) Committed() *token.Token {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.committed
}

// Connections returns a snapshot of the outgoing connections.
func (o *Output) Connections() []*Connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.connections)
}

// IsConnected reports whether anything listens to this output.
func (o *Output) IsConnected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.forced || len(o.connections) > 0
}

// commit turns the pending token (or no-message) into the committed one
// stamped with seq. It returns the sequence number of the previous commit.
func (o *Output) commit(seq int64) int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	tok := o.pending
	if tok == nil {
		tok = token.NoMessage()
	}
	prev := o.seq
	o.pending = nil
	o.seq = seq
	o.committed = tok.WithSeq(seq)
	o.state = OutputActive
	return prev
}

// dropPending discards a value published since the last commit.
func (o *Output) dropPending() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = nil
}

func (o *Output) setIdle() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = OutputIdle
}

func (o *Output) setSequence(seq int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq = seq
}

func (o *Output) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = OutputIdle
	o.pending = nil
	o.committed = nil
}

func (o *Output) addConnection(c *Connection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connections = append(o.connections, c)
}

func (o *Output) removeConnection(c *Connection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connections = slices.DeleteFunc(o.connections, func(x *Connection) bool { return x == c })
}
