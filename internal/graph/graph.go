package graph

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/observer"
	"github.com/vk/flowgridgo/internal/worker"
)

// Graph is the node and connection table of one graph level.
type Graph struct {
	logger *slog.Logger
	ids    *nodeid.Provider

	mu          sync.RWMutex
	nodes       []*worker.NodeWorker
	index       map[nodeid.UUID]*worker.NodeWorker
	connections []*connector.Connection
	nextConnID  int

	txDepth   int
	txNodes   []*worker.NodeWorker
	txConns   []*connector.Connection
	txChanged bool

	analysis *analysis

	NodeAdded         observer.Signal[*worker.NodeWorker]
	NodeRemoved       observer.Signal[*worker.NodeWorker]
	ConnectionAdded   observer.Signal[*connector.Connection]
	ConnectionRemoved observer.Signal[*connector.Connection]
	// StructureChanged fires once per edit, or once per outermost transaction.
	StructureChanged observer.Signal[struct{}]
	Notifications    observer.Signal[Notification]
}

// New creates an empty graph.
func New(ctx context.Context) *Graph {
	return &Graph{
		logger: ctxlog.FromContext(ctx),
		ids:    nodeid.NewProvider(),
		index:  make(map[nodeid.UUID]*worker.NodeWorker),
	}
}

// IDs is the provider minting UUIDs for this graph.
func (g *Graph) IDs() *nodeid.Provider { return g.ids }

// GenerateUUID reserves a fresh node id with the given type prefix.
func (g *Graph) GenerateUUID(prefix string) nodeid.UUID {
	return g.ids.Generate(nodeid.PrefixFor(prefix))
}

// Notify publishes a diagnostic on the notification channel.
func (g *Graph) Notify(source nodeid.UUID, level slog.Level, message string) {
	g.logger.Log(context.Background(), level, message, "source", source.String())
	g.Notifications.Emit(Notification{Source: source, Level: level, Message: message})
}

// BeginTransaction starts buffering add notifications.
func (g *Graph) BeginTransaction() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txDepth++
}

// FinalizeTransaction closes a transaction. The outermost one replays the
// buffered notifications followed by a single StructureChanged.
func (g *Graph) FinalizeTransaction() {
	g.mu.Lock()
	if g.txDepth == 0 {
		g.mu.Unlock()
		return
	}
	g.txDepth--
	if g.txDepth > 0 {
		g.mu.Unlock()
		return
	}
	nodes, conns, changed := g.txNodes, g.txConns, g.txChanged
	g.txNodes, g.txConns, g.txChanged = nil, nil, false
	g.mu.Unlock()

	for _, w := range nodes {
		g.NodeAdded.Emit(w)
	}
	for _, c := range conns {
		g.ConnectionAdded.Emit(c)
	}
	for _, w := range nodes {
		w.CheckTransitions()
	}
	for _, c := range conns {
		g.recheck(c)
	}
	if changed {
		g.StructureChanged.Emit(struct{}{})
	}
}

// InTransaction reports whether a transaction is open.
func (g *Graph) InTransaction() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.txDepth > 0
}

// changedLocked invalidates analysis and reports whether signals must be
// emitted now rather than at the end of a transaction.
func (g *Graph) changedLocked() bool {
	g.analysis = nil
	if g.txDepth > 0 {
		g.txChanged = true
		return false
	}
	return true
}

// AddNode appends w.
func (g *Graph) AddNode(w *worker.NodeWorker) error {
	return g.InsertNode(w, -1)
}

// InsertNode places w at position index in the node order. A negative or
// out-of-range index appends.
func (g *Graph) InsertNode(w *worker.NodeWorker, index int) error {
	g.mu.Lock()
	if _, exists := g.index[w.UUID()]; exists {
		g.mu.Unlock()
		return structural(w.UUID(), "node already exists", nil)
	}
	g.ids.Register(w.UUID())
	if index < 0 || index > len(g.nodes) {
		index = len(g.nodes)
	}
	g.nodes = slices.Insert(g.nodes, index, w)
	g.index[w.UUID()] = w
	emit := g.changedLocked()
	if !emit {
		g.txNodes = append(g.txNodes, w)
	}
	g.mu.Unlock()

	g.logger.Debug("Node added.", "node", w.UUID().String(), "type", w.TypeName())
	if emit {
		g.NodeAdded.Emit(w)
		w.CheckTransitions()
		g.StructureChanged.Emit(struct{}{})
	}
	return nil
}

// DeleteNode removes a node that has no connections left.
func (g *Graph) DeleteNode(id nodeid.UUID) error {
	g.mu.Lock()
	w, ok := g.index[id]
	if !ok {
		g.mu.Unlock()
		return structural(id, "cannot delete node", notFound("node", id))
	}
	for _, c := range g.connections {
		if c.From().Owner().Equal(id) || c.To().Owner().Equal(id) {
			g.mu.Unlock()
			return structural(id, "node has live connections", nil)
		}
	}
	g.nodes = slices.DeleteFunc(g.nodes, func(x *worker.NodeWorker) bool { return x == w })
	delete(g.index, id)
	g.txNodes = slices.DeleteFunc(g.txNodes, func(x *worker.NodeWorker) bool { return x == w })
	g.ids.Free(id)
	emit := g.changedLocked()
	g.mu.Unlock()

	g.logger.Debug("Node removed.", "node", id.String())
	g.NodeRemoved.Emit(w)
	if emit {
		g.StructureChanged.Emit(struct{}{})
	}
	return nil
}

// AddConnection links the output from to the input to.
func (g *Graph) AddConnection(from, to nodeid.UUID, active bool) (*connector.Connection, error) {
	out, err := g.findOutput(from)
	if err != nil {
		return nil, structural(from, "invalid connection source", err)
	}
	in, err := g.findInput(to)
	if err != nil {
		return nil, structural(to, "invalid connection target", err)
	}

	g.mu.Lock()
	g.nextConnID++
	c, err := connector.Connect(g.nextConnID, out, in, active)
	if err != nil {
		g.mu.Unlock()
		return nil, structural(to, "cannot connect "+from.String(), err)
	}
	g.connections = append(g.connections, c)
	emit := g.changedLocked()
	if !emit {
		g.txConns = append(g.txConns, c)
	}
	g.mu.Unlock()

	g.logger.Debug("Connection added.", "from", from.String(), "to", to.String(), "active", active)
	if emit {
		g.ConnectionAdded.Emit(c)
		g.recheck(c)
		g.StructureChanged.Emit(struct{}{})
	}
	return c, nil
}

// RemoveConnection unlinks the connection between from and to.
func (g *Graph) RemoveConnection(from, to nodeid.UUID) error {
	g.mu.Lock()
	idx := slices.IndexFunc(g.connections, func(c *connector.Connection) bool {
		return c.From().UUID().Equal(from) && c.To().UUID().Equal(to)
	})
	if idx < 0 {
		g.mu.Unlock()
		return structural(to, "cannot remove connection from "+from.String(), notFound("connection", from))
	}
	c := g.connections[idx]
	g.connections = slices.Delete(g.connections, idx, idx+1)
	g.txConns = slices.DeleteFunc(g.txConns, func(x *connector.Connection) bool { return x == c })
	emit := g.changedLocked()
	g.mu.Unlock()

	connector.Disconnect(c)
	g.logger.Debug("Connection removed.", "from", from.String(), "to", to.String())
	g.ConnectionRemoved.Emit(c)
	g.recheck(c)
	if emit {
		g.StructureChanged.Emit(struct{}{})
	}
	return nil
}

// recheck re-evaluates the readiness of both ends of c.
func (g *Graph) recheck(c *connector.Connection) {
	for _, id := range []nodeid.UUID{c.From().Owner(), c.To().Owner()} {
		if w, ok := g.FindNodeNoThrow(id); ok {
			w.CheckTransitions()
		}
	}
}

// FindConnection looks up the connection between two connectors.
func (g *Graph) FindConnection(from, to nodeid.UUID) (*connector.Connection, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.connections {
		if c.From().UUID().Equal(from) && c.To().UUID().Equal(to) {
			return c, true
		}
	}
	return nil, false
}

// FindNode is the hard node lookup.
func (g *Graph) FindNode(id nodeid.UUID) (*worker.NodeWorker, error) {
	w, ok := g.FindNodeNoThrow(id)
	if !ok {
		return nil, notFound("node", id)
	}
	return w, nil
}

// FindNodeNoThrow is the soft node lookup.
func (g *Graph) FindNodeNoThrow(id nodeid.UUID) (*worker.NodeWorker, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.index[id]
	return w, ok
}

// NodeIndex returns the position of a node in the node order.
func (g *Graph) NodeIndex(id nodeid.UUID) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx := slices.IndexFunc(g.nodes, func(w *worker.NodeWorker) bool { return w.UUID().Equal(id) })
	return idx, idx >= 0
}

// FindNodeForConnector returns the node owning a connector.
func (g *Graph) FindNodeForConnector(id nodeid.UUID) (*worker.NodeWorker, error) {
	w, err := g.FindNode(id.ParentUUID())
	if err != nil {
		return nil, notFound("connector", id)
	}
	if _, ok := w.FindConnector(id); !ok {
		return nil, notFound("connector", id)
	}
	return w, nil
}

// FindConnector is the hard connector lookup.
func (g *Graph) FindConnector(id nodeid.UUID) (connector.Endpoint, error) {
	w, err := g.FindNodeForConnector(id)
	if err != nil {
		return nil, err
	}
	ep, _ := w.FindConnector(id)
	return ep, nil
}

func (g *Graph) findOutput(id nodeid.UUID) (*connector.Output, error) {
	ep, err := g.FindConnector(id)
	if err != nil {
		return nil, err
	}
	out, ok := ep.(*connector.Output)
	if !ok {
		return nil, fmt.Errorf("%w: %s is an %s, not an output", connector.ErrIncompatible, id, ep.Kind())
	}
	return out, nil
}

func (g *Graph) findInput(id nodeid.UUID) (*connector.Input, error) {
	ep, err := g.FindConnector(id)
	if err != nil {
		return nil, err
	}
	in, ok := ep.(*connector.Input)
	if !ok {
		return nil, fmt.Errorf("%w: %s is an %s, not an input", connector.ErrIncompatible, id, ep.Kind())
	}
	return in, nil
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*worker.NodeWorker {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.nodes)
}

// Connections returns the connections in creation order.
func (g *Graph) Connections() []*connector.Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.connections)
}

// ConnectionsOf returns the connections touching node id.
func (g *Graph) ConnectionsOf(id nodeid.UUID) []*connector.Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*connector.Connection
	for _, c := range g.connections {
		if c.From().Owner().Equal(id) || c.To().Owner().Equal(id) {
			out = append(out, c)
		}
	}
	return out
}

// Clear removes every connection and node.
func (g *Graph) Clear() {
	g.BeginTransaction()
	for _, c := range g.Connections() {
		_ = g.RemoveConnection(c.From().UUID(), c.To().UUID())
	}
	for _, w := range g.Nodes() {
		_ = g.DeleteNode(w.UUID())
	}
	g.FinalizeTransaction()
	g.ids.Reset()
}
