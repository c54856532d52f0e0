package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/observer"
	"github.com/vk/flowgridgo/internal/scheduler"
	"github.com/vk/flowgridgo/internal/worker"
)

// ConnectionDescription is the flat view of one connection returned by
// EnumerateAllConnections.
type ConnectionDescription struct {
	From     nodeid.UUID
	To       nodeid.UUID
	Active   bool
	Fulcrums []connector.Fulcrum
}

// Facade binds a Graph to a ThreadPool and answers lookups across nested
// graph levels.
type Facade struct {
	logger *slog.Logger
	graph  *Graph
	pool   *scheduler.ThreadPool

	mu       sync.Mutex
	runners  map[nodeid.UUID]*scheduler.NodeRunner
	nodeSubs map[nodeid.UUID]*observer.Bag
	children map[nodeid.UUID]*Facade
	paused   bool

	subs observer.Bag
}

// NewFacade subscribes to g so every node added to it is scheduled on pool.
func NewFacade(ctx context.Context, g *Graph, pool *scheduler.ThreadPool) *Facade {
	f := &Facade{
		logger:   ctxlog.FromContext(ctx).With("component", "facade"),
		graph:    g,
		pool:     pool,
		runners:  make(map[nodeid.UUID]*scheduler.NodeRunner),
		nodeSubs: make(map[nodeid.UUID]*observer.Bag),
		children: make(map[nodeid.UUID]*Facade),
		paused:   pool.IsPaused(),
	}
	f.subs.Add(
		g.NodeAdded.Subscribe(f.onNodeAdded),
		g.NodeRemoved.Subscribe(f.onNodeRemoved),
		pool.GroupFailed.Subscribe(func(gf scheduler.GroupFailure) {
			g.Notify(nodeid.Empty, slog.LevelError, fmt.Sprintf("thread %q stopped: %v", gf.Name, gf.Err))
		}),
	)
	for _, w := range g.Nodes() {
		f.onNodeAdded(w)
	}
	return f
}

// Graph returns the underlying tables.
func (f *Facade) Graph() *Graph { return f.graph }

// Pool returns the scheduler.
func (f *Facade) Pool() *scheduler.ThreadPool { return f.pool }

func (f *Facade) onNodeAdded(w *worker.NodeWorker) {
	r := scheduler.NewNodeRunner(w)
	bag := &observer.Bag{}
	bag.Add(w.ErrorChanged.Subscribe(func(level worker.ErrorLevel) {
		if level == worker.ErrorNone {
			return
		}
		_, msg := w.Error()
		lvl := slog.LevelWarn
		if level == worker.ErrorError {
			lvl = slog.LevelError
		}
		f.graph.Notify(w.UUID(), lvl, msg)
	}))

	f.mu.Lock()
	f.runners[w.UUID()] = r
	f.nodeSubs[w.UUID()] = bag
	f.mu.Unlock()

	if err := f.place(r); err != nil {
		f.graph.Notify(w.UUID(), slog.LevelWarn, fmt.Sprintf("thread placement failed, using default: %v", err))
		if err := f.pool.Add(r); err != nil {
			f.graph.Notify(w.UUID(), slog.LevelError, fmt.Sprintf("node not scheduled: %v", err))
		}
	}
}

// place adds r to the group recorded in its node state.
func (f *Facade) place(r *scheduler.NodeRunner) error {
	id, name := r.Worker().Thread()
	switch {
	case id == scheduler.PrivateThreadID:
		_, err := f.pool.CreateNewGroupFor(r, r.UUID().String())
		return err
	case id > scheduler.DefaultGroupID:
		if _, ok := f.pool.Group(id); !ok {
			if _, err := f.pool.CreateGroupWithID(id, name); err != nil && !errors.Is(err, scheduler.ErrGroupExists) {
				return err
			}
		}
		return f.pool.AddToGroup(r, id)
	default:
		return f.pool.Add(r)
	}
}

func (f *Facade) onNodeRemoved(w *worker.NodeWorker) {
	f.mu.Lock()
	r, ok := f.runners[w.UUID()]
	delete(f.runners, w.UUID())
	bag := f.nodeSubs[w.UUID()]
	delete(f.nodeSubs, w.UUID())
	f.mu.Unlock()

	if ok {
		if err := f.pool.Remove(r); err != nil {
			f.logger.Debug("Node was not scheduled.", "node", w.UUID().String(), "error", err)
		}
	}
	if bag != nil {
		bag.Dispose()
	}
	w.Destroy()
}

// Runner returns the scheduler handle of a node on this level.
func (f *Facade) Runner(id nodeid.UUID) (*scheduler.NodeRunner, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runners[id]
	return r, ok
}

// AddChild attaches the facade of a nested graph owned by node id.
func (f *Facade) AddChild(id nodeid.UUID, child *Facade) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[id] = child
}

// RemoveChild detaches a nested facade.
func (f *Facade) RemoveChild(id nodeid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.children, id)
}

// Child returns the nested facade owned by node id.
func (f *Facade) Child(id nodeid.UUID) (*Facade, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.children[id]
	return c, ok
}

func (f *Facade) childList() []*Facade {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Collect(maps.Values(f.children))
}

// FindNode resolves id on this level or, for composite ids, in the nested
// facade named by its root.
func (f *Facade) FindNode(id nodeid.UUID) (*worker.NodeWorker, error) {
	if !id.Composite() {
		return f.graph.FindNode(id)
	}
	child, ok := f.Child(id.RootUUID())
	if !ok {
		return nil, notFound("graph", id.RootUUID())
	}
	return child.FindNode(id.NestedUUID())
}

// FindNodeNoThrow is FindNode without the error.
func (f *Facade) FindNodeNoThrow(id nodeid.UUID) (*worker.NodeWorker, bool) {
	w, err := f.FindNode(id)
	return w, err == nil
}

// FindConnector resolves a connector id, descending into nested facades.
func (f *Facade) FindConnector(id nodeid.UUID) (connector.Endpoint, error) {
	owner := id.ParentUUID()
	if !owner.Composite() {
		return f.graph.FindConnector(id)
	}
	child, ok := f.Child(id.RootUUID())
	if !ok {
		return nil, notFound("connector", id)
	}
	return child.FindConnector(id.NestedUUID())
}

// EnumerateAllNodes lists the nodes of this level followed by nested ones.
// Nested ids are prefixed with the owning node.
func (f *Facade) EnumerateAllNodes() []nodeid.UUID {
	var ids []nodeid.UUID
	for _, w := range f.graph.Nodes() {
		ids = append(ids, w.UUID())
	}
	f.mu.Lock()
	owners := slices.SortedFunc(maps.Keys(f.children), compareIDs)
	f.mu.Unlock()
	for _, owner := range owners {
		child, _ := f.Child(owner)
		for _, id := range child.EnumerateAllNodes() {
			ids = append(ids, owner.Join(id))
		}
	}
	return ids
}

// EnumerateAllConnections lists connections of every level.
func (f *Facade) EnumerateAllConnections() []ConnectionDescription {
	var out []ConnectionDescription
	for _, c := range f.graph.Connections() {
		out = append(out, ConnectionDescription{
			From:     c.From().UUID(),
			To:       c.To().UUID(),
			Active:   c.IsActive(),
			Fulcrums: c.Fulcrums(),
		})
	}
	f.mu.Lock()
	owners := slices.SortedFunc(maps.Keys(f.children), compareIDs)
	f.mu.Unlock()
	for _, owner := range owners {
		child, _ := f.Child(owner)
		for _, d := range child.EnumerateAllConnections() {
			d.From, d.To = owner.Join(d.From), owner.Join(d.To)
			out = append(out, d)
		}
	}
	return out
}

func compareIDs(a, b nodeid.UUID) int {
	switch as, bs := a.String(), b.String(); {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

// Component returns the id of the weakly connected component of a node.
// Ids of nested nodes are local to their child graph.
func (f *Facade) Component(id nodeid.UUID) (int, error) {
	if id.Composite() {
		child, ok := f.Child(id.RootUUID())
		if !ok {
			return 0, notFound("graph", id.RootUUID())
		}
		return child.Component(id.NestedUUID())
	}
	return f.graph.Component(id)
}

// ComponentMembers returns the nodes connected to a node, itself included.
func (f *Facade) ComponentMembers(id nodeid.UUID) ([]nodeid.UUID, error) {
	if id.Composite() {
		child, ok := f.Child(id.RootUUID())
		if !ok {
			return nil, notFound("graph", id.RootUUID())
		}
		return child.ComponentMembers(id.NestedUUID())
	}
	return f.graph.ComponentMembers(id)
}

// Depth returns the longest path from a source to a node.
func (f *Facade) Depth(id nodeid.UUID) (int, error) {
	if id.Composite() {
		child, ok := f.Child(id.RootUUID())
		if !ok {
			return 0, notFound("graph", id.RootUUID())
		}
		return child.Depth(id.NestedUUID())
	}
	return f.graph.Depth(id)
}

// PauseRequest pauses or resumes dispatching. Nodes already processing run
// to completion.
func (f *Facade) PauseRequest(pause bool) {
	f.mu.Lock()
	if f.paused == pause {
		f.mu.Unlock()
		return
	}
	f.paused = pause
	f.mu.Unlock()

	f.pool.SetPause(pause)
	f.logger.Info("Pause requested.", "paused", pause)
}

// IsPaused reports the last requested pause state.
func (f *Facade) IsPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

// Stop halts scheduling for good.
func (f *Facade) Stop() {
	f.subs.Dispose()
	f.pool.Stop()
}

// Reset kills running executions and returns every node to its initial
// state, keeping the topology.
func (f *Facade) Reset() {
	paused := f.pool.IsPaused()
	f.pool.SetPause(true)
	f.pool.Clear()
	f.pool.Reset()
	for _, child := range f.childList() {
		child.Reset()
	}
	f.pool.SetPause(paused)
	f.logger.Info("Graph reset.")
}

// Clear removes every node and connection.
func (f *Facade) Clear() {
	f.pool.Clear()
	f.graph.Clear()
}

// GenerateUUID reserves a fresh node id for type typeName.
func (f *Facade) GenerateUUID(typeName string) nodeid.UUID {
	return f.graph.GenerateUUID(typeName)
}

// Tick requests one run of a source node.
func (f *Facade) Tick(id nodeid.UUID) error {
	w, err := f.FindNode(id)
	if err != nil {
		return err
	}
	w.Tick()
	return nil
}

// ThreadOf returns the group currently running node id.
func (f *Facade) ThreadOf(id nodeid.UUID) (*scheduler.ThreadGroup, error) {
	r, ok := f.Runner(id)
	if !ok {
		return nil, notFound("node", id)
	}
	g, ok := f.pool.GetGroupFor(r)
	if !ok {
		return nil, fmt.Errorf("%w: %s", scheduler.ErrNotScheduled, id)
	}
	return g, nil
}

// MoveToGroup reassigns node id to an existing group and records the
// assignment in its state.
func (f *Facade) MoveToGroup(id nodeid.UUID, groupID int) error {
	r, ok := f.Runner(id)
	if !ok {
		return notFound("node", id)
	}
	if err := f.pool.AddToGroup(r, groupID); err != nil {
		return err
	}
	name := ""
	if g, ok := f.pool.Group(groupID); ok {
		name = g.Name()
	}
	r.Worker().SetThread(groupID, name)
	return nil
}

// MoveToNewGroup creates a named group and moves node id into it.
func (f *Facade) MoveToNewGroup(id nodeid.UUID, name string) (int, error) {
	if _, ok := f.Runner(id); !ok {
		return 0, notFound("node", id)
	}
	g, err := f.pool.CreateGroup(name)
	if err != nil {
		return 0, err
	}
	if err := f.MoveToGroup(id, g.ID()); err != nil {
		_ = f.pool.RemoveGroup(g.ID())
		return 0, err
	}
	return g.ID(), nil
}

// MoveToPrivateGroup gives node id a group of its own.
func (f *Facade) MoveToPrivateGroup(id nodeid.UUID) error {
	r, ok := f.Runner(id)
	if !ok {
		return notFound("node", id)
	}
	if _, err := f.pool.CreateNewGroupFor(r, id.String()); err != nil {
		return err
	}
	r.Worker().SetThread(scheduler.PrivateThreadID, "")
	return nil
}

// CreateGroup adds an empty named group.
func (f *Facade) CreateGroup(name string) (int, error) {
	g, err := f.pool.CreateGroup(name)
	if err != nil {
		return 0, err
	}
	return g.ID(), nil
}

// CreateGroupWithID recreates a group under a known id.
func (f *Facade) CreateGroupWithID(id int, name string) error {
	_, err := f.pool.CreateGroupWithID(id, name)
	return err
}

// RemoveGroup deletes a group. Its nodes fall back to the default group.
func (f *Facade) RemoveGroup(id int) error {
	g, ok := f.pool.Group(id)
	if !ok {
		return fmt.Errorf("%w: %d", scheduler.ErrGroupNotFound, id)
	}
	var moved []*worker.NodeWorker
	for _, gen := range g.Generators() {
		if r, ok := gen.(*scheduler.NodeRunner); ok {
			moved = append(moved, r.Worker())
		}
	}
	if err := f.pool.RemoveGroup(id); err != nil {
		return err
	}
	for _, w := range moved {
		w.SetThread(scheduler.DefaultGroupID, "")
	}
	return nil
}
