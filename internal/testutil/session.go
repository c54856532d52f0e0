package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/command"
	"github.com/vk/flowgridgo/internal/graph"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/scheduler"
	"github.com/vk/flowgridgo/internal/worker"
)

// ProbeModule registers the probe nodes as "source", "sink", "pass" and
// "listener".
type ProbeModule struct{}

func (ProbeModule) Register(r *registry.Registry) {
	r.Register(&registry.NodeType{Name: "source", New: func() worker.Node { return &Source{} }})
	r.Register(&registry.NodeType{Name: "sink", New: func() worker.Node { return &Sink{} }})
	r.Register(&registry.NodeType{Name: "pass", New: func() worker.Node { return &Pass{} }})
	r.Register(&registry.NodeType{Name: "listener", New: func() worker.Node { return &Listener{} }})
}

// Session bundles a running facade with its dispatcher.
type Session struct {
	Ctx        context.Context
	Logs       *SafeBuffer
	Registry   *registry.Registry
	Pool       *scheduler.ThreadPool
	Facade     *graph.Facade
	Dispatcher *command.Dispatcher
}

// NewSession starts a pool with the probe module registered. Everything
// is stopped when the test ends.
func NewSession(t *testing.T, opts ...scheduler.Option) *Session {
	t.Helper()
	ctx, logs := Context(t)

	reg := registry.New()
	reg.RegisterModules(ProbeModule{})

	pool, err := scheduler.NewThreadPool(ctx, opts...)
	require.NoError(t, err)
	f := graph.NewFacade(ctx, graph.New(ctx), pool)
	t.Cleanup(f.Stop)

	return &Session{
		Ctx:        ctx,
		Logs:       logs,
		Registry:   reg,
		Pool:       pool,
		Facade:     f,
		Dispatcher: command.NewDispatcher(ctx, &command.Env{Facade: f, Registry: reg}),
	}
}

// Node returns the worker and its node logic, failing the test if absent.
func Node[T worker.Node](t *testing.T, s *Session, id string) (*worker.NodeWorker, T) {
	t.Helper()
	w, ok := s.Facade.FindNodeNoThrow(mustParse(t, id))
	require.True(t, ok, "node %s not found", id)
	n, ok := w.Node().(T)
	require.True(t, ok, "node %s has type %T", id, w.Node())
	return w, n
}
