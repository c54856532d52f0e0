package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/token"
	"github.com/zclconf/go-cty/cty"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type sourceNode struct {
	out  *connector.Output
	step int64
	n    int64
	fail error
}

func (s *sourceNode) Setup(st *Setup) error {
	s.out = st.AddOutput("value", cty.Number, false)
	_, err := st.AddParameter("step", cty.NumberIntVal(1))
	return err
}

func (s *sourceNode) Process(context.Context) error {
	if s.fail != nil {
		return s.fail
	}
	s.n++
	s.out.Publish(cty.NumberIntVal(s.n))
	return nil
}

type sinkNode struct {
	in *connector.Input

	mu  sync.Mutex
	got []cty.Value
}

func (s *sinkNode) Setup(st *Setup) error {
	s.in = st.AddInput("value", token.Any)
	return nil
}

func (s *sinkNode) Process(context.Context) error {
	v, ok := s.in.Value()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, v)
	return nil
}

func (s *sinkNode) values() []cty.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cty.Value(nil), s.got...)
}

type panicNode struct{ value any }

func (p *panicNode) Setup(*Setup) error            { return nil }
func (p *panicNode) Process(context.Context) error { panic(p.value) }

type asyncNode struct {
	out *connector.Output

	mu   sync.Mutex
	ctx  context.Context
	done func(error)
}

func (a *asyncNode) Setup(st *Setup) error {
	a.out = st.AddOutput("value", cty.Number, false)
	return nil
}

func (a *asyncNode) Process(context.Context) error { return errors.New("sync path used") }

func (a *asyncNode) ProcessAsync(ctx context.Context, done func(error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx, a.done = ctx, done
}

func (a *asyncNode) pending() (context.Context, func(error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx, a.done
}

type eventNode struct{ ev *connector.Output }

func (e *eventNode) Setup(st *Setup) error {
	e.ev = st.AddEvent("fired")
	return nil
}

func (e *eventNode) Process(context.Context) error {
	e.ev.Trigger()
	return nil
}

type slotNode struct {
	slot      *connector.Input
	handled   int
	processed int
}

func (s *slotNode) Setup(st *Setup) error {
	s.slot = st.AddSlot("run", func(context.Context, *token.Token) error {
		s.handled++
		return nil
	})
	return nil
}

func (s *slotNode) Process(context.Context) error {
	s.processed++
	return nil
}

type passNode struct {
	in  *connector.Input
	out *connector.Output
}

func (p *passNode) Setup(st *Setup) error {
	p.in = st.AddInput("value", token.Any)
	p.out = st.AddOutput("value", token.Any, false)
	return nil
}

func (p *passNode) Process(context.Context) error {
	if v, ok := p.in.Value(); ok {
		p.out.Publish(v)
	}
	return nil
}

type joinNode struct {
	a, b  *connector.Input
	pairs [][2]cty.Value
}

func (j *joinNode) Setup(st *Setup) error {
	j.a = st.AddInput("a", token.Any)
	j.b = st.AddInput("b", token.Any)
	return nil
}

func (j *joinNode) Process(context.Context) error {
	a, _ := j.a.Value()
	b, _ := j.b.Value()
	j.pairs = append(j.pairs, [2]cty.Value{a, b})
	return nil
}

type failingSink struct {
	in   *connector.Input
	runs int
}

func (f *failingSink) Setup(st *Setup) error {
	f.in = st.AddInput("value", token.Any)
	return nil
}

func (f *failingSink) Process(context.Context) error {
	f.runs++
	return errors.New("rejected")
}

func newWorker(t *testing.T, id string, n Node, opts ...Option) *NodeWorker {
	t.Helper()
	w, err := New(testContext(), nodeid.MustParse(id), nodeid.MustParse(id).TypeName(), n, opts...)
	require.NoError(t, err)
	t.Cleanup(w.Destroy)
	return w
}

// runOnce performs what the owning group loop does for one dispatch.
func runOnce(t *testing.T, w *NodeWorker) error {
	t.Helper()
	require.True(t, w.CheckTransitions(), "worker %s should be enabled", w.UUID())
	require.True(t, w.Fire())
	return w.Execute(testContext())
}

func recordStates(w *NodeWorker) func() []State {
	var mu sync.Mutex
	var states []State
	w.StateChanged.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})
	return func() []State {
		mu.Lock()
		defer mu.Unlock()
		return append([]State(nil), states...)
	}
}

func TestSetup_ConnectorIDs(t *testing.T) {
	w := newWorker(t, "sink_1", &sinkNode{})
	require.Len(t, w.Inputs(), 1)
	assert.Equal(t, "sink_1:|:in_0", w.Inputs()[0].UUID().String())
	assert.True(t, w.IsSink())

	ep, ok := w.FindConnector(nodeid.MustParse("sink_1:|:in_0"))
	require.True(t, ok)
	assert.Equal(t, connector.DataInput, ep.Kind())
	_, ok = w.FindConnector(nodeid.MustParse("sink_1:|:out_0"))
	assert.False(t, ok)
}

func TestSourceToSink_SingleCycle(t *testing.T) {
	src := &sourceNode{}
	snk := &sinkNode{}
	a := newWorker(t, "source_1", src)
	b := newWorker(t, "sink_1", snk)

	c, err := connector.Connect(1, src.out, snk.in, false)
	require.NoError(t, err)
	var connStates []connector.State
	c.StateChanged.Subscribe(func(s connector.State) { connStates = append(connStates, s) })
	sinkStates := recordStates(b)

	assert.True(t, a.IsSource())
	assert.False(t, b.IsSource())
	assert.False(t, a.CheckTransitions(), "manual sources wait for a tick")

	a.Tick()
	assert.Equal(t, Enabled, a.State())
	require.NoError(t, runOnce(t, a))

	assert.Equal(t, Enabled, b.State(), "arrival enables the consumer")
	require.NoError(t, runOnce(t, b))

	assert.Equal(t, []State{Enabled, Fired, Processing, Idle}, sinkStates())
	assert.Equal(t, []connector.State{connector.InFlight, connector.Done, connector.NotInitialized}, connStates)
	require.Len(t, snk.values(), 1)
	assert.True(t, snk.values()[0].RawEquals(cty.NumberIntVal(1)))
	assert.Equal(t, Idle, a.State())
	assert.Equal(t, Idle, b.State())
	assert.Len(t, b.Timers(), 1)
}

func TestBackpressure(t *testing.T) {
	src := &sourceNode{}
	snk := &sinkNode{}
	a := newWorker(t, "source_1", src)
	b := newWorker(t, "sink_1", snk)
	_, err := connector.Connect(1, src.out, snk.in, false)
	require.NoError(t, err)

	a.Tick()
	require.NoError(t, runOnce(t, a))
	a.Tick()
	assert.Equal(t, Idle, a.State(), "producer waits until the consumer took the token")

	require.NoError(t, runOnce(t, b))
	assert.Equal(t, Enabled, a.State(), "completion re-enables the producer")
}

func TestExecutionError(t *testing.T) {
	src := &sourceNode{fail: errors.New("boom")}
	w := newWorker(t, "source_1", src)

	w.Tick()
	err := runOnce(t, w)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "source_1", execErr.UUID.String())

	level, msg := w.Error()
	assert.Equal(t, ErrorError, level)
	assert.Contains(t, msg, "boom")
	assert.Equal(t, Idle, w.State())

	src.fail = nil
	w.Tick()
	assert.Equal(t, Idle, w.State(), "errored nodes are not scheduled")

	w.ClearError()
	assert.Equal(t, Enabled, w.State())
}

func TestPanicsAreRecovered(t *testing.T) {
	w := newWorker(t, "broken_1", &panicNode{value: "kaboom"})
	w.Tick()
	err := runOnce(t, w)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestInvariantViolationPropagates(t *testing.T) {
	w := newWorker(t, "broken_1", &panicNode{value: &connector.InvariantViolation{Op: "test", Detail: "defect"}})
	w.Tick()
	require.True(t, w.CheckTransitions())
	require.True(t, w.Fire())
	assert.Panics(t, func() { _ = w.Execute(testContext()) })
}

func TestAsyncProcessing(t *testing.T) {
	n := &asyncNode{}
	w := newWorker(t, "relay_1", n)
	assert.True(t, w.IsAsync())

	w.Tick()
	require.NoError(t, runOnce(t, w))
	assert.Equal(t, Processing, w.State(), "async nodes stay processing until done")

	_, done := n.pending()
	require.NotNil(t, done)
	done(nil)
	assert.Equal(t, Idle, w.State())
	assert.Len(t, w.Timers(), 1)
}

func TestKillExecution(t *testing.T) {
	n := &asyncNode{}
	w := newWorker(t, "relay_1", n)

	w.Tick()
	require.NoError(t, runOnce(t, w))
	ctx, done := n.pending()
	require.NotNil(t, ctx)

	w.KillExecution()
	assert.Equal(t, Idle, w.State())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	done(errors.New("late"))
	level, _ := w.Error()
	assert.Equal(t, ErrorNone, level, "completion of a killed run is ignored")
	assert.Empty(t, w.Timers())
}

func TestKillExecution_DropsPublishedValues(t *testing.T) {
	n := &asyncNode{}
	w := newWorker(t, "relay_1", n)

	w.Tick()
	require.NoError(t, runOnce(t, w))
	n.out.Publish(cty.NumberIntVal(1))

	w.KillExecution()
	assert.False(t, n.out.HasPending())

	// The aborted run keeps going and publishes after the kill.
	n.out.Publish(cty.NumberIntVal(2))

	w.Tick()
	require.NoError(t, runOnce(t, w))
	_, done := n.pending()
	done(nil)
	require.Equal(t, Idle, w.State())
	assert.True(t, n.out.Committed().IsNoMessage(), "values of the killed run are never committed")
}

func TestJoinAfterLateWiring(t *testing.T) {
	src := &sourceNode{}
	pass := &passNode{}
	join := &joinNode{}
	s := newWorker(t, "source_1", src)
	p := newWorker(t, "pass_1", pass)
	j := newWorker(t, "join_1", join)

	// The source commits once before the diamond exists.
	s.Tick()
	require.NoError(t, runOnce(t, s))

	_, err := connector.Connect(1, src.out, pass.in, false)
	require.NoError(t, err)
	_, err = connector.Connect(2, pass.out, join.a, false)
	require.NoError(t, err)
	_, err = connector.Connect(3, src.out, join.b, false)
	require.NoError(t, err)

	for i := range 5 {
		s.Tick()
		require.NoError(t, runOnce(t, s), "cycle %d", i)
		assert.False(t, j.CheckTransitions(), "join waits for the slower branch")
		require.NoError(t, runOnce(t, p), "cycle %d", i)
		assert.Equal(t, s.OutputTransition().Sequence(), p.OutputTransition().Sequence())
		require.NoError(t, runOnce(t, j), "cycle %d", i)
	}

	require.Len(t, join.pairs, 5)
	for i, pair := range join.pairs {
		assert.True(t, pair[0].RawEquals(pair[1]), "cycle %d joined %v and %v", i, pair[0], pair[1])
	}
	assert.True(t, join.pairs[4][0].RawEquals(cty.NumberIntVal(6)))
}

func TestStoppedConsumerDoesNotStallSiblings(t *testing.T) {
	tests := []struct {
		name string
		stop func(w *NodeWorker)
		// runs reports how often the stopped consumer processed.
		runs int
	}{
		{
			name: "execution error",
			stop: func(*NodeWorker) {},
			runs: 1,
		},
		{
			name: "disabled",
			stop: func(w *NodeWorker) { w.SetEnabled(false) },
			runs: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := &sourceNode{}
			healthy := &sinkNode{}
			failing := &failingSink{}
			s := newWorker(t, "source_1", src)
			h := newWorker(t, "sink_1", healthy)
			f := newWorker(t, "sink_2", failing)
			_, err := connector.Connect(1, src.out, healthy.in, false)
			require.NoError(t, err)
			failConn, err := connector.Connect(2, src.out, failing.in, false)
			require.NoError(t, err)
			tc.stop(f)

			for i := range 4 {
				s.Tick()
				require.NoError(t, runOnce(t, s), "cycle %d", i)
				require.NoError(t, runOnce(t, h), "cycle %d", i)
				if f.CanProcess() {
					require.Error(t, runOnce(t, f))
				}
				assert.NotEqual(t, connector.InFlight, failConn.State(), "cycle %d", i)
			}

			assert.Len(t, healthy.values(), 4)
			assert.Equal(t, tc.runs, failing.runs)
			assert.Equal(t, Idle, f.State())
		})
	}
}

func TestDisabledNodeIsNotScheduled(t *testing.T) {
	w := newWorker(t, "source_1", &sourceNode{})
	w.SetEnabled(false)
	w.Tick()
	assert.Equal(t, Idle, w.State())

	w.SetEnabled(true)
	assert.Equal(t, Enabled, w.State())
}

func TestTickFrequency(t *testing.T) {
	w := newWorker(t, "source_1", &sourceNode{}, WithTickFrequency(10))
	assert.True(t, w.CheckTransitions(), "first periodic tick is due immediately")
	require.True(t, w.Fire())
	require.NoError(t, w.Execute(testContext()))

	assert.False(t, w.CheckTransitions())
	assert.WithinDuration(t, time.Now().Add(100*time.Millisecond), w.NextDeadline(), 50*time.Millisecond)

	w.SetTickFrequency(0)
	assert.True(t, w.NextDeadline().IsZero())
}

func TestSaveRestoreState(t *testing.T) {
	w := newWorker(t, "source_1", &sourceNode{}, WithLabel("numbers"), WithThread(2, "io"))

	st := w.SaveState()
	assert.Equal(t, "numbers", st.Label)
	assert.True(t, st.Enabled)
	assert.Equal(t, 2, st.ThreadID)
	assert.Equal(t, "io", st.ThreadName)
	assert.True(t, st.Params["step"].RawEquals(cty.NumberIntVal(1)))

	err := w.RestoreState(NodeState{
		Label:   "renamed",
		Enabled: false,
		Params:  map[string]cty.Value{"step": cty.NumberIntVal(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", w.Label())
	assert.False(t, w.IsEnabled())
	p, ok := w.Params().Get("step")
	require.True(t, ok)
	assert.True(t, p.Value().RawEquals(cty.NumberIntVal(5)))

	err = w.RestoreState(NodeState{Enabled: true, Params: map[string]cty.Value{"nope": cty.True}})
	assert.Error(t, err)
	assert.Equal(t, "source_1", w.Label(), "empty label falls back to the uuid")
}

func TestSlots(t *testing.T) {
	t.Run("default link runs only the slot handler", func(t *testing.T) {
		ev := &eventNode{}
		sl := &slotNode{}
		a := newWorker(t, "emitter_1", ev)
		b := newWorker(t, "target_1", sl)
		c, err := connector.Connect(1, ev.ev, sl.slot, false)
		require.NoError(t, err)

		a.Tick()
		require.NoError(t, runOnce(t, a))
		require.NoError(t, runOnce(t, b))

		assert.Equal(t, 1, sl.handled)
		assert.Equal(t, 0, sl.processed)
		assert.Equal(t, connector.NotInitialized, c.State())
	})

	t.Run("trigger link gates processing", func(t *testing.T) {
		ev := &eventNode{}
		sl := &slotNode{}
		a := newWorker(t, "emitter_1", ev)
		b := newWorker(t, "target_1", sl)
		_, err := connector.Connect(1, ev.ev, sl.slot, true)
		require.NoError(t, err)

		assert.True(t, b.IsWaitingForTrigger())
		assert.False(t, b.CheckTransitions())

		a.Tick()
		require.NoError(t, runOnce(t, a))
		assert.False(t, b.IsWaitingForTrigger())
		require.NoError(t, runOnce(t, b))

		assert.Equal(t, 1, sl.handled)
		assert.Equal(t, 1, sl.processed)
	})
}

func TestReset(t *testing.T) {
	src := &sourceNode{}
	snk := &sinkNode{}
	a := newWorker(t, "source_1", src)
	b := newWorker(t, "sink_1", snk)
	c, err := connector.Connect(1, src.out, snk.in, false)
	require.NoError(t, err)

	a.Tick()
	require.NoError(t, runOnce(t, a))
	require.Equal(t, connector.InFlight, c.State())

	a.Reset()
	b.Reset()
	assert.Equal(t, connector.NotInitialized, c.State())
	assert.Equal(t, Idle, a.State())
	assert.Equal(t, Idle, b.State())
	assert.Empty(t, a.Timers())
	assert.True(t, a.CanSend())
}
