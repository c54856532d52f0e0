package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/observer"
	"github.com/vk/flowgridgo/internal/param"
	"github.com/vk/flowgridgo/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type runKind int32

const (
	runNone runKind = iota
	// runData is a full cycle: forward all tokens, process, send outputs.
	runData
	// runSlots only delivers pending slot tokens to their handlers.
	runSlots
)

type run struct {
	kind   runKind
	start  time.Time
	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span
}

// Option configures a NodeWorker.
type Option func(*NodeWorker)

// WithLabel sets the display label. It defaults to the node UUID.
func WithLabel(label string) Option {
	return func(w *NodeWorker) { w.label = label }
}

// WithThread records the thread group the node should be placed in.
func WithThread(id int, name string) Option {
	return func(w *NodeWorker) {
		w.threadID = id
		w.threadName = name
	}
}

// WithTickFrequency sets the source tick rate in Hz. Zero means manual ticks
// only.
func WithTickFrequency(hz float64) Option {
	return func(w *NodeWorker) { w.tickFrequency = hz }
}

// NodeWorker drives one node through its execution cycle.
type NodeWorker struct {
	uuid     nodeid.UUID
	typeName string
	node     Node
	logger   *slog.Logger

	inputs  *connector.InputTransition
	outputs *connector.OutputTransition
	params  *param.Set
	slots   map[*connector.Input]SlotHandler

	state     atomic.Int32
	firedKind atomic.Int32
	run       atomic.Pointer[run]
	killed    atomic.Bool
	waker     atomic.Pointer[func()]

	mu            sync.Mutex
	label         string
	pos           connector.Point
	enabled       bool
	threadID      int
	threadName    string
	tickFrequency float64
	lastTick      time.Time
	tickRequested bool
	errLevel      ErrorLevel
	errMessage    string

	timers timerRing
	subs   observer.Bag

	// StateChanged fires on every state transition.
	StateChanged observer.Signal[State]
	// ErrorChanged fires when the error flag is set or cleared.
	ErrorChanged observer.Signal[ErrorLevel]
}

// New wraps node in a worker and runs its Setup.
func New(ctx context.Context, id nodeid.UUID, typeName string, node Node, opts ...Option) (*NodeWorker, error) {
	w := &NodeWorker{
		uuid:     id,
		typeName: typeName,
		node:     node,
		inputs:   connector.NewInputTransition(),
		outputs:  connector.NewOutputTransition(),
		params:   param.NewSet(),
		slots:    make(map[*connector.Input]SlotHandler),
		label:    id.String(),
		enabled:  true,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = ctxlog.FromContext(ctx).With("node", id.String(), "type", typeName)

	if err := node.Setup(&Setup{w: w, indices: make(map[connector.Kind]int)}); err != nil {
		return nil, fmt.Errorf("failed to set up node %s: %w", id, err)
	}

	w.inputs.SetActivationHandler(func() { w.CheckTransitions() })
	w.subs.Add(w.outputs.MessagesProcessed.Subscribe(func(int64) { w.CheckTransitions() }))
	return w, nil
}

func (w *NodeWorker) UUID() nodeid.UUID  { return w.uuid }
func (w *NodeWorker) TypeName() string   { return w.typeName }
func (w *NodeWorker) Node() Node         { return w.node }
func (w *NodeWorker) Params() *param.Set { return w.params }

// InputTransition exposes the handshake state of the inputs.
func (w *NodeWorker) InputTransition() *connector.InputTransition { return w.inputs }

// OutputTransition exposes the handshake state of the outputs.
func (w *NodeWorker) OutputTransition() *connector.OutputTransition { return w.outputs }

// Inputs returns the declared inputs and slots.
func (w *NodeWorker) Inputs() []*connector.Input { return w.inputs.Inputs() }

// Outputs returns the declared outputs and events.
func (w *NodeWorker) Outputs() []*connector.Output { return w.outputs.Outputs() }

// FindConnector looks up one of the worker's connectors.
func (w *NodeWorker) FindConnector(id nodeid.UUID) (connector.Endpoint, bool) {
	for _, in := range w.Inputs() {
		if in.UUID().Equal(id) {
			return in, true
		}
	}
	for _, out := range w.Outputs() {
		if out.UUID().Equal(id) {
			return out, true
		}
	}
	return nil, false
}

// IsAsync reports whether the node completes on its own goroutine.
func (w *NodeWorker) IsAsync() bool {
	_, ok := w.node.(AsyncNode)
	return ok
}

// IsSource reports whether nothing upstream drives the node, so that it runs
// on ticks.
func (w *NodeWorker) IsSource() bool {
	return !w.inputs.HasConnectedDataInputs() && !w.inputs.HasActiveSlots()
}

// IsSink reports whether the node declares no outputs.
func (w *NodeWorker) IsSink() bool {
	return len(w.outputs.Outputs()) == 0
}

// State returns the current execution state.
func (w *NodeWorker) State() State { return State(w.state.Load()) }

func (w *NodeWorker) transition(from, to State) bool {
	if !w.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	w.StateChanged.Emit(to)
	return true
}

func (w *NodeWorker) forceState(to State) {
	if State(w.state.Swap(int32(to))) != to {
		w.StateChanged.Emit(to)
	}
}

// SetWaker registers the callback used to wake the owning group when the
// worker becomes ENABLED.
func (w *NodeWorker) SetWaker(fn func()) {
	if fn == nil {
		w.waker.Store(nil)
		return
	}
	w.waker.Store(&fn)
}

func (w *NodeWorker) wake() {
	if fn := w.waker.Load(); fn != nil {
		(*fn)()
	}
}

// CanProcess reports whether the node is enabled and free of errors.
func (w *NodeWorker) CanProcess() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled && w.errLevel != ErrorError
}

// CanReceive reports whether the synchronized inputs are ready.
func (w *NodeWorker) CanReceive() bool { return w.inputs.IsEnabled() }

// CanSend reports whether the outputs may start a new cycle.
func (w *NodeWorker) CanSend() bool { return w.outputs.CanStartSendingMessages() }

// IsWaitingForTrigger reports whether a trigger link still has to fire
// before the node may run.
func (w *NodeWorker) IsWaitingForTrigger() bool {
	return w.inputs.HasActiveSlots() && !w.inputs.TriggersReady()
}

func (w *NodeWorker) nextRun() runKind {
	if !w.CanProcess() {
		return runNone
	}
	if w.inputs.PendingSlots() && !w.inputs.HasActiveSlots() {
		return runSlots
	}
	if !w.CanSend() {
		return runNone
	}
	switch {
	case w.IsSource():
		if w.tickDue(time.Now()) && w.inputs.IsEnabled() {
			return runData
		}
	case w.IsWaitingForTrigger():
	case !w.inputs.HasConnectedDataInputs():
		return runData
	default:
		if w.inputs.IsEnabled() {
			return runData
		}
	}
	return runNone
}

// CheckTransitions re-evaluates readiness and moves the worker between IDLE
// and ENABLED. It is safe to call from any goroutine and reports whether the
// worker is ENABLED afterwards.
func (w *NodeWorker) CheckTransitions() bool {
	if !w.CanProcess() {
		if s := w.State(); s == Idle || s == Enabled {
			w.inputs.Discard()
		}
	}
	switch w.State() {
	case Idle:
		if w.nextRun() == runNone {
			return false
		}
		if !w.transition(Idle, Enabled) {
			return w.State() == Enabled
		}
		w.logger.Debug("Node enabled.")
		w.wake()
		return true
	case Enabled:
		if w.nextRun() != runNone {
			return true
		}
		w.transition(Enabled, Idle)
	}
	return false
}

// Fire moves an ENABLED worker to FIRED after re-validating readiness. Only
// the owning group loop calls it.
func (w *NodeWorker) Fire() bool {
	kind := w.nextRun()
	if kind == runNone {
		w.transition(Enabled, Idle)
		return false
	}
	if !w.transition(Enabled, Fired) {
		return false
	}
	w.firedKind.Store(int32(kind))
	return true
}

// Execute runs one processing cycle of a FIRED worker. Synchronous nodes
// complete before it returns; asynchronous nodes finish from their done
// callback. The returned error is the node's ExecutionError, already
// recorded on the worker.
func (w *NodeWorker) Execute(ctx context.Context) error {
	kind := runKind(w.firedKind.Swap(int32(runNone)))
	if kind == runNone || !w.transition(Fired, Processing) {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctxlog.WithLogger(ctx, w.logger))
	runCtx, span := telemetry.Tracer.Start(runCtx, "node.process", trace.WithAttributes(
		attribute.String("node.uuid", w.uuid.String()),
		attribute.String("node.type", w.typeName),
	))
	r := &run{kind: kind, start: time.Now(), ctx: runCtx, cancel: cancel, span: span}
	w.run.Store(r)
	if w.killed.Swap(false) {
		// Values published by an aborted run after it was killed.
		w.outputs.DropPending()
	}

	var err error
	for _, in := range w.inputs.ForwardMessages(kind == runData) {
		fn := w.slots[in]
		if fn == nil {
			continue
		}
		if err = w.safeCall(func() error { return fn(runCtx, in.Token()) }); err != nil {
			break
		}
	}
	if kind == runSlots || err != nil {
		return w.finish(r, err)
	}

	if w.IsSource() {
		w.mu.Lock()
		w.lastTick = r.start
		w.tickRequested = false
		w.mu.Unlock()
	}

	if an, ok := w.node.(AsyncNode); ok {
		err = w.safeCall(func() error {
			an.ProcessAsync(runCtx, func(err error) { w.finish(r, err) })
			return nil
		})
		if err != nil {
			return w.finish(r, err)
		}
		return nil
	}
	return w.finish(r, w.safeCall(func() error { return w.node.Process(runCtx) }))
}

// finish completes run r. It is a no-op when the run was killed or already
// finished.
func (w *NodeWorker) finish(r *run, err error) error {
	if !w.run.CompareAndSwap(r, nil) {
		return nil
	}
	elapsed := time.Since(r.start)
	w.timers.add(elapsed)
	telemetry.RecordProcessing(r.ctx, w.typeName, elapsed, err)
	r.cancel()

	if err != nil {
		err = &ExecutionError{UUID: w.uuid, Err: err}
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
		w.TriggerError(ErrorError, err.Error())
	}
	r.span.End()

	seq, derived := w.inputs.ConsumedSequence()
	w.inputs.NotifyMessagesProcessed()
	if r.kind == runData && !w.IsSink() {
		if derived {
			w.outputs.SendMessagesAs(seq)
		} else {
			w.outputs.SendMessages()
		}
	}
	w.transition(Processing, Idle)
	w.CheckTransitions()
	return err
}

func (w *NodeWorker) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if connector.IsInvariantViolation(r) {
				panic(r)
			}
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// KillExecution aborts the current run without waiting for it. The run
// context is cancelled, consumed inputs are released, values the run
// published are dropped and the worker is forced back to IDLE. A late
// completion of the aborted run is ignored.
func (w *NodeWorker) KillExecution() {
	if r := w.run.Swap(nil); r != nil {
		r.cancel()
		r.span.End()
		w.killed.Store(true)
		w.outputs.DropPending()
		w.logger.Warn("Node execution killed.")
	}
	w.firedKind.Store(int32(runNone))
	w.inputs.NotifyMessagesProcessed()
	w.forceState(Idle)
	w.CheckTransitions()
}

// Reset returns the worker to its initial runtime state without touching
// its persisted state.
func (w *NodeWorker) Reset() {
	if r := w.run.Swap(nil); r != nil {
		r.cancel()
		r.span.End()
	}
	w.firedKind.Store(int32(runNone))
	w.killed.Store(false)
	w.inputs.Reset()
	w.outputs.Reset()
	w.timers.reset()

	w.mu.Lock()
	w.lastTick = time.Time{}
	w.tickRequested = false
	hadError := w.errLevel != ErrorNone
	w.errLevel, w.errMessage = ErrorNone, ""
	w.mu.Unlock()

	if hadError {
		w.ErrorChanged.Emit(ErrorNone)
	}
	if rs, ok := w.node.(Resetter); ok {
		rs.Reset()
	}
	w.forceState(Idle)
}

// Destroy releases the worker's subscriptions, parameters and node resources.
func (w *NodeWorker) Destroy() {
	w.SetWaker(nil)
	w.KillExecution()
	w.subs.Dispose()
	w.inputs.SetActivationHandler(func() {})
	w.params.DestroyAll()
	if d, ok := w.node.(Destroyer); ok {
		d.Destroy()
	}
}

// TriggerError sets the error flag. ErrorError stops the node from being
// scheduled until the flag is cleared. Tokens reaching a failed node are
// acknowledged and dropped.
func (w *NodeWorker) TriggerError(level ErrorLevel, message string) {
	w.mu.Lock()
	changed := w.errLevel != level || w.errMessage != message
	w.errLevel, w.errMessage = level, message
	w.mu.Unlock()

	switch level {
	case ErrorError:
		w.logger.Error("Node failed.", "error", message)
	case ErrorWarning:
		w.logger.Warn("Node warning.", "message", message)
	}
	if changed {
		w.ErrorChanged.Emit(level)
	}
	if level == ErrorError {
		w.CheckTransitions()
	}
}

// ClearError resets the error flag and re-checks readiness.
func (w *NodeWorker) ClearError() {
	w.mu.Lock()
	changed := w.errLevel != ErrorNone
	w.errLevel, w.errMessage = ErrorNone, ""
	w.mu.Unlock()

	if changed {
		w.ErrorChanged.Emit(ErrorNone)
	}
	w.CheckTransitions()
}

// Error returns the error flag and its message.
func (w *NodeWorker) Error() (ErrorLevel, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errLevel, w.errMessage
}

// Tick requests one source run.
func (w *NodeWorker) Tick() {
	w.mu.Lock()
	w.tickRequested = true
	w.mu.Unlock()
	w.CheckTransitions()
}

func (w *NodeWorker) tickDue(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tickRequested {
		return true
	}
	if w.tickFrequency <= 0 {
		return false
	}
	return !now.Before(w.lastTick.Add(w.tickPeriodLocked()))
}

func (w *NodeWorker) tickPeriodLocked() time.Duration {
	return time.Duration(float64(time.Second) / w.tickFrequency)
}

// NextDeadline returns when the next periodic tick is due, or the zero time
// when the worker is not tick-driven.
func (w *NodeWorker) NextDeadline() time.Time {
	if !w.IsSource() {
		return time.Time{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tickFrequency <= 0 || !w.enabled {
		return time.Time{}
	}
	return w.lastTick.Add(w.tickPeriodLocked())
}

// Timers returns the most recent processing durations, oldest first.
func (w *NodeWorker) Timers() []time.Duration { return w.timers.values() }

func (w *NodeWorker) Label() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.label
}

func (w *NodeWorker) SetLabel(label string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.label = label
}

// Pos is the editor position of the node box. Execution ignores it.
func (w *NodeWorker) Pos() connector.Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos
}

func (w *NodeWorker) SetPos(p connector.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pos = p
}

// IsEnabled reports whether the user enabled the node.
func (w *NodeWorker) IsEnabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled
}

// SetEnabled enables or disables the node. Enabling clears the error flag.
// A disabled node drops the tokens it receives.
func (w *NodeWorker) SetEnabled(enabled bool) {
	w.mu.Lock()
	w.enabled = enabled
	w.mu.Unlock()
	if enabled {
		w.ClearError()
		return
	}
	w.CheckTransitions()
}

// Thread returns the id and name of the requested thread group.
func (w *NodeWorker) Thread() (int, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.threadID, w.threadName
}

// SetThread records the thread group placement.
func (w *NodeWorker) SetThread(id int, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.threadID, w.threadName = id, name
}

func (w *NodeWorker) TickFrequency() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tickFrequency
}

func (w *NodeWorker) SetTickFrequency(hz float64) {
	w.mu.Lock()
	w.tickFrequency = max(hz, 0)
	w.mu.Unlock()
	w.CheckTransitions()
}

// SaveState captures the persisted state.
func (w *NodeWorker) SaveState() NodeState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return NodeState{
		Label:         w.label,
		Enabled:       w.enabled,
		ThreadID:      w.threadID,
		ThreadName:    w.threadName,
		TickFrequency: w.tickFrequency,
		Params:        w.params.Values(),
	}
}

// RestoreState applies a previously saved state. Unknown parameters are
// reported but the remaining fields are still applied.
func (w *NodeWorker) RestoreState(s NodeState) error {
	w.mu.Lock()
	w.label = s.Label
	if w.label == "" {
		w.label = w.uuid.String()
	}
	w.enabled = s.Enabled
	w.threadID, w.threadName = s.ThreadID, s.ThreadName
	w.tickFrequency = max(s.TickFrequency, 0)
	w.mu.Unlock()

	var err error
	if len(s.Params) > 0 {
		err = w.params.Apply(s.Params)
	}
	w.CheckTransitions()
	return err
}
