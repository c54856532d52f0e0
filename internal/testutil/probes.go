package testutil

import (
	"context"
	"sync"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/token"
	"github.com/vk/flowgridgo/internal/worker"
	"github.com/zclconf/go-cty/cty"
)

// Source publishes 1, 2, 3... on its "out" output, one value per run.
type Source struct {
	Out *connector.Output

	mu  sync.Mutex
	n   int64
	err error
}

func (s *Source) Setup(st *worker.Setup) error {
	s.Out = st.AddOutput("out", cty.Number, false)
	return nil
}

func (s *Source) Process(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.n++
	s.Out.Publish(cty.NumberIntVal(s.n))
	return nil
}

// Fail makes every following run return err.
func (s *Source) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Runs is the number of successful runs.
func (s *Source) Runs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Sink records every value arriving on its "in" input.
type Sink struct {
	In *connector.Input

	mu     sync.Mutex
	values []cty.Value
	runs   int
}

func (s *Sink) Setup(st *worker.Setup) error {
	s.In = st.AddInput("in", token.Any)
	return nil
}

func (s *Sink) Process(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	if v, ok := s.In.Value(); ok {
		s.values = append(s.values, v)
	}
	return nil
}

// Values returns the recorded values.
func (s *Sink) Values() []cty.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cty.Value(nil), s.values...)
}

// Runs is the number of processing calls, with or without a value.
func (s *Sink) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// StateRecorder collects the state transitions of a worker.
type StateRecorder struct {
	mu     sync.Mutex
	states []worker.State
}

// RecordStates subscribes to w and returns the recorder.
func RecordStates(w *worker.NodeWorker) *StateRecorder {
	r := &StateRecorder{}
	w.StateChanged.Subscribe(func(s worker.State) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, s)
	})
	return r
}

// States returns the recorded transitions.
func (r *StateRecorder) States() []worker.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]worker.State(nil), r.states...)
}

// Pass forwards the value on "in" to "out".
type Pass struct {
	In  *connector.Input
	Out *connector.Output
}

func (p *Pass) Setup(st *worker.Setup) error {
	p.In = st.AddInput("in", token.Any)
	p.Out = st.AddOutput("out", token.Any, false)
	_, err := st.AddParameter("gain", cty.NumberIntVal(1))
	return err
}

func (p *Pass) Process(context.Context) error {
	if v, ok := p.In.Value(); ok {
		p.Out.Publish(v)
	}
	return nil
}

// Listener counts triggers arriving on its "on" slot.
type Listener struct {
	On *connector.Input

	mu       sync.Mutex
	triggers int
}

func (l *Listener) Setup(st *worker.Setup) error {
	l.On = st.AddSlot("on", func(context.Context, *token.Token) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.triggers++
		return nil
	})
	return nil
}

func (l *Listener) Process(context.Context) error { return nil }

func (l *Listener) Triggers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.triggers
}
