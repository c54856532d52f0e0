package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/testutil"
	"github.com/vk/flowgridgo/internal/worker"
)

type brokenNode struct{}

func (brokenNode) Setup(*worker.Setup) error     { return errors.New("no setup for you") }
func (brokenNode) Process(context.Context) error { return nil }

type module struct{}

func (module) Register(r *registry.Registry) {
	r.Register(&registry.NodeType{Name: "sink", New: func() worker.Node { return &testutil.Sink{} }})
	r.Register(&registry.NodeType{
		Name:    "source",
		New:     func() worker.Node { return &testutil.Source{} },
		Options: []worker.Option{worker.WithTickFrequency(5)},
	})
}

func TestRegistry_MakeNode(t *testing.T) {
	ctx, _ := testutil.Context(t)
	r := registry.New()
	r.RegisterModules(module{})

	assert.Equal(t, []string{"sink", "source"}, r.Types())

	w, err := r.MakeNode(ctx, nodeid.MustParse("source_0"), "source")
	require.NoError(t, err)
	assert.Equal(t, "source", w.TypeName())
	assert.Equal(t, 5.0, w.TickFrequency())

	w, err = r.MakeNode(ctx, nodeid.MustParse("source_1"), "source", worker.WithTickFrequency(1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, w.TickFrequency(), "caller options win")

	_, err = r.MakeNode(ctx, nodeid.MustParse("x_0"), "nope")
	assert.ErrorIs(t, err, registry.ErrUnknownType)
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := registry.New()
	r.RegisterModules(module{})
	assert.Panics(t, func() {
		r.Register(&registry.NodeType{Name: "sink", New: func() worker.Node { return &testutil.Sink{} }})
	})
	assert.Panics(t, func() { r.Register(&registry.NodeType{Name: "empty"}) })
}

func TestRegistry_Validate(t *testing.T) {
	ctx, _ := testutil.Context(t)
	r := registry.New()
	r.RegisterModules(module{})
	require.NoError(t, r.ValidateRegistry(ctx))

	r.Register(&registry.NodeType{Name: "broken", New: func() worker.Node { return brokenNode{} }})
	err := r.ValidateRegistry(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node type 'broken'")
	assert.Contains(t, err.Error(), "no setup for you")
}
