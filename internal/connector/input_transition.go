package connector

import (
	"slices"
	"sync"
	"sync/atomic"
)

// InputTransition coordinates the inputs of one node: it decides when every
// synchronized input holds a token with the same sequence number, forwards
// the tokens into the inputs for a processing run, and marks the consumed
// connections DONE afterwards.
type InputTransition struct {
	mu       sync.Mutex
	inputs   []*Input
	consumed []*Connection
	seq      int64
	hasSeq   bool

	onMessage atomic.Pointer[func()]
}

// NewInputTransition creates an empty transition.
func NewInputTransition() *InputTransition {
	return &InputTransition{}
}

// SetActivationHandler registers the callback run whenever a token arrives.
func (t *InputTransition) SetActivationHandler(fn func()) {
	t.onMessage.Store(&fn)
}

// AddInput takes ownership of in.
func (t *InputTransition) AddInput(in *Input) {
	t.mu.Lock()
	defer t.mu.Unlock()
	in.owner.Store(t)
	t.inputs = append(t.inputs, in)
}

// RemoveInput drops in.
func (t *InputTransition) RemoveInput(in *Input) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputs = slices.DeleteFunc(t.inputs, func(x *Input) bool { return x == in })
	in.owner.CompareAndSwap(t, nil)
}

// Inputs returns the owned inputs in declaration order.
func (t *InputTransition) Inputs() []*Input {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.inputs)
}

// HasConnectedDataInputs reports whether any data input is fed by a connection.
func (t *InputTransition) HasConnectedDataInputs() bool {
	for _, in := range t.Inputs() {
		if in.Kind() == DataInput && in.IsConnected() {
			return true
		}
	}
	return false
}

// HasActiveSlots reports whether a trigger link feeds any slot.
func (t *InputTransition) HasActiveSlots() bool {
	for _, in := range t.Inputs() {
		if c := in.Connection(); in.Kind() == Slot && c != nil && c.IsActive() {
			return true
		}
	}
	return false
}

// TriggersReady reports whether every slot fed by a trigger link holds a token.
func (t *InputTransition) TriggersReady() bool {
	for _, in := range t.Inputs() {
		c := in.Connection()
		if in.Kind() != Slot || c == nil || !c.IsActive() {
			continue
		}
		if c.State() != InFlight {
			return false
		}
	}
	return true
}

// PendingSlots reports whether any slot has a token waiting.
func (t *InputTransition) PendingSlots() bool {
	for _, in := range t.Inputs() {
		if c := in.Connection(); in.Kind() == Slot && c != nil && c.State() == InFlight {
			return true
		}
	}
	return false
}

// IsEnabled reports whether the synchronized data inputs are ready: every
// connected, enabled, non-async data input holds a token, mandatory inputs
// are connected, and all tokens carry the same sequence number. Tokens older
// than the newest one are discarded so their producers can catch up.
func (t *InputTransition) IsEnabled() bool {
	t.mu.Lock()
	var waiting []*Connection
	for _, in := range t.inputs {
		if in.Kind() != DataInput || !in.Enabled() || in.Async() {
			continue
		}
		c := in.Connection()
		if c == nil {
			if !in.Optional() {
				t.mu.Unlock()
				return false
			}
			continue
		}
		if c.State() != InFlight {
			t.mu.Unlock()
			return false
		}
		waiting = append(waiting, c)
	}
	t.mu.Unlock()

	var newest int64
	seqs := make([]int64, len(waiting))
	for i, c := range waiting {
		m := c.Message()
		if m == nil {
			// Consumed concurrently.
			return false
		}
		seqs[i] = m.Seq
		newest = max(newest, m.Seq)
	}

	aligned := true
	for i, c := range waiting {
		if seqs[i] < newest {
			aligned = false
			c.markProcessed()
		}
	}
	return aligned
}

// ForwardMessages loads the tokens of in-flight connections into their inputs
// for one processing run and remembers the connections as consumed. Data
// inputs are skipped unless includeData is set. It returns the slots that
// received a token.
func (t *InputTransition) ForwardMessages(includeData bool) []*Input {
	t.mu.Lock()
	defer t.mu.Unlock()

	var slots []*Input
	for _, in := range t.inputs {
		c := in.Connection()
		if c == nil || c.State() != InFlight {
			continue
		}
		if in.Kind() == DataInput && !includeData {
			continue
		}
		m := c.Message()
		in.load(m)
		t.consumed = append(t.consumed, c)
		if in.Kind() == DataInput && !in.Async() && m != nil && (!t.hasSeq || m.Seq > t.seq) {
			t.seq, t.hasSeq = m.Seq, true
		}
		if in.Kind() == Slot {
			slots = append(slots, in)
		}
	}
	return slots
}

// ConsumedSequence returns the sequence number of the synchronized data
// tokens forwarded for the current run. It reports false when the run
// consumed no such token.
func (t *InputTransition) ConsumedSequence() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq, t.hasSeq
}

// NotifyMessagesProcessed clears the input buffers and marks every consumed
// connection DONE.
func (t *InputTransition) NotifyMessagesProcessed() {
	t.mu.Lock()
	consumed := t.consumed
	t.consumed = nil
	t.seq, t.hasSeq = 0, false
	for _, in := range t.inputs {
		in.clear()
	}
	t.mu.Unlock()

	for _, c := range consumed {
		c.markProcessed()
	}
}

// Discard acknowledges every waiting token without forwarding it, so that
// producers are not held back by a node that cannot process. It reports
// whether anything was dropped.
func (t *InputTransition) Discard() bool {
	t.mu.Lock()
	var waiting []*Connection
	for _, in := range t.inputs {
		for _, c := range in.Connections() {
			if c.State() == InFlight && !slices.Contains(t.consumed, c) {
				waiting = append(waiting, c)
			}
		}
	}
	t.mu.Unlock()

	dropped := false
	for _, c := range waiting {
		if c.markProcessed() {
			dropped = true
		}
	}
	return dropped
}

// Reset drops buffered tokens without acknowledging them.
func (t *InputTransition) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consumed = nil
	t.seq, t.hasSeq = 0, false
	for _, in := range t.inputs {
		in.clear()
	}
}

func (t *InputTransition) connectionFilled(*Connection) {
	if fn := t.onMessage.Load(); fn != nil {
		(*fn)()
	}
}
