package connector

import (
	"slices"
	"sync"

	"github.com/vk/flowgridgo/internal/observer"
	"github.com/vk/flowgridgo/internal/token"
)

// OutputTransition coordinates the commit cycle of all outputs of one node.
type OutputTransition struct {
	mu       sync.Mutex
	outputs  []*Output
	inflight map[*Connection]struct{}
	seq      int64

	// MessagesProcessed fires with the cycle's sequence number once every
	// connection filled in that cycle was consumed.
	MessagesProcessed observer.Signal[int64]
}

// NewOutputTransition creates an empty transition.
func NewOutputTransition() *OutputTransition {
	return &OutputTransition{inflight: make(map[*Connection]struct{})}
}

// AddOutput takes ownership of o. Its sequence number is aligned with the
// outputs already present so that commits stay in lockstep.
func (t *OutputTransition) AddOutput(o *Output) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o.owner.Store(t)
	o.setSequence(t.seq)
	t.outputs = append(t.outputs, o)
}

// RemoveOutput drops o and forgets any of its in-flight connections.
func (t *OutputTransition) RemoveOutput(o *Output) {
	t.mu.Lock()
	t.outputs = slices.DeleteFunc(t.outputs, func(x *Output) bool { return x == o })
	o.owner.CompareAndSwap(t, nil)
	wasActive := len(t.inflight) > 0
	for _, c := range o.Connections() {
		delete(t.inflight, c)
	}
	seq, done := int64(0), false
	if wasActive {
		seq, done = t.tryCompleteLocked()
	}
	t.mu.Unlock()

	if done {
		t.MessagesProcessed.Emit(seq)
	}
}

// Outputs returns the owned outputs in declaration order.
func (t *OutputTransition) Outputs() []*Output {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.outputs)
}

// Sequence returns the sequence number of the last commit.
func (t *OutputTransition) Sequence() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

// IsActive reports whether a committed cycle is still being consumed.
func (t *OutputTransition) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) > 0
}

// CanStartSendingMessages reports whether a new commit cycle may begin:
// every connected, enabled output is IDLE and every connection is DONE or
// NOT_INITIALIZED.
func (t *OutputTransition) CanStartSendingMessages() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, o := range t.outputs {
		if !o.Enabled() {
			continue
		}
		if o.IsConnected() && o.State() != OutputIdle {
			return false
		}
		for _, c := range o.Connections() {
			switch c.State() {
			case Done, NotInitialized:
			default:
				return false
			}
		}
	}
	return true
}

// SendMessages commits every output under the next number of the node's own
// sequence counter. Sources use it.
func (t *OutputTransition) SendMessages() {
	t.send(0, false)
}

// SendMessagesAs commits every output under seq, the sequence number of the
// tokens the node consumed, so that tokens derived from one source cycle
// meet again at a join.
func (t *OutputTransition) SendMessagesAs(seq int64) {
	t.send(seq, true)
}

// DropPending discards every value published since the last commit.
func (t *OutputTransition) DropPending() {
	for _, o := range t.Outputs() {
		o.dropPending()
	}
}

// send fans the committed tokens out to their connections. Calling it while
// any connection is not NOT_INITIALIZED, or with outputs whose sequence
// numbers disagree, panics.
func (t *OutputTransition) send(seq int64, explicit bool) {
	t.mu.Lock()
	for _, o := range t.outputs {
		for _, c := range o.Connections() {
			if s := c.State(); s != NotInitialized {
				t.mu.Unlock()
				violate("OutputTransition.SendMessages", "connection %s is %s, expected %s", c, s, NotInitialized)
			}
		}
	}

	if !explicit {
		seq = t.seq + 1
	}
	for _, o := range t.outputs {
		if prev := o.commit(seq); prev != t.seq {
			t.mu.Unlock()
			violate("OutputTransition.SendMessages", "output %s was at sequence %d, expected %d", o.UUID(), prev, t.seq)
		}
	}
	t.seq = seq

	type fill struct {
		c   *Connection
		tok *token.Token
	}
	var fills []fill
	for _, o := range t.outputs {
		conns := o.Connections()
		if len(conns) == 0 || !o.Enabled() {
			o.setIdle()
			continue
		}
		tok := o.Committed()
		for _, c := range conns {
			t.inflight[c] = struct{}{}
			fills = append(fills, fill{c: c, tok: tok})
		}
	}
	t.mu.Unlock()

	if len(fills) == 0 {
		t.MessagesProcessed.Emit(seq)
		return
	}
	for _, f := range fills {
		f.c.setMessage(f.tok)
	}
}

// Reset abandons the current cycle and returns every output and connection
// to its initial state.
func (t *OutputTransition) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.inflight)
	for _, o := range t.outputs {
		o.reset()
		for _, c := range o.Connections() {
			c.reset()
		}
	}
}

func (t *OutputTransition) connectionDone(c *Connection) {
	t.mu.Lock()
	if _, ok := t.inflight[c]; !ok {
		t.mu.Unlock()
		return
	}
	seq, done := t.tryCompleteLocked()
	t.mu.Unlock()

	if done {
		t.MessagesProcessed.Emit(seq)
	}
}

func (t *OutputTransition) connectionRemoved(c *Connection) {
	t.mu.Lock()
	if _, ok := t.inflight[c]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.inflight, c)
	c.reset()
	seq, done := t.tryCompleteLocked()
	t.mu.Unlock()

	if done {
		t.MessagesProcessed.Emit(seq)
	}
}

// tryCompleteLocked finishes the cycle if every in-flight connection is DONE.
func (t *OutputTransition) tryCompleteLocked() (int64, bool) {
	for c := range t.inflight {
		if c.State() != Done {
			return 0, false
		}
	}
	for c := range t.inflight {
		c.reset()
	}
	clear(t.inflight)
	for _, o := range t.outputs {
		o.setIdle()
	}
	return t.seq, true
}
