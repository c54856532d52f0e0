package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/worker"
)

// ErrUnknownType is returned when a node type has not been registered.
var ErrUnknownType = errors.New("registry: unknown node type")

// Module is the interface that all node modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// NodeType describes one registered node type.
type NodeType struct {
	Name        string
	Description string
	// New returns a fresh, not yet set up, node.
	New func() worker.Node
	// Options are applied to every worker of this type before the
	// caller's own options.
	Options []worker.Option
}

// Registry holds the node types available to a single application instance.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*NodeType
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{types: make(map[string]*NodeType)}
}

// Register adds a node type. Registering the same name twice is a
// programming error and panics.
func (r *Registry) Register(t *NodeType) {
	if t == nil || t.Name == "" || t.New == nil {
		panic("registry: node type needs a name and a constructor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		panic(fmt.Sprintf("node type '%s' already registered", t.Name))
	}
	slog.Debug("Registering node type.", "type", t.Name)
	r.types[t.Name] = t
}

// RegisterModules calls Register on each module.
func (r *Registry) RegisterModules(mods ...Module) {
	for _, m := range mods {
		m.Register(r)
	}
}

// Lookup returns the registered type called name.
func (r *Registry) Lookup(name string) (*NodeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.types))
}

// MakeNode builds and sets up a worker of type typeName.
func (r *Registry) MakeNode(ctx context.Context, id nodeid.UUID, typeName string, opts ...worker.Option) (*worker.NodeWorker, error) {
	t, ok := r.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	all := append(slices.Clone(t.Options), opts...)
	w, err := worker.New(ctx, id, typeName, t.New(), all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s node %s: %w", typeName, id, err)
	}
	return w, nil
}
