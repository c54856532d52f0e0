package graphio

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/graph"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/scheduler"
	"github.com/vk/flowgridgo/internal/worker"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// legacyEventPrefix is the connector prefix events had in older files.
const legacyEventPrefix = "trigger"

// Save captures the top level of f.
func Save(f *graph.Facade) *Snapshot {
	g := f.Graph()
	snap := &Snapshot{
		UUIDMap:     g.IDs().Counters(),
		Nodes:       []Node{},
		Connections: []Connection{},
	}

	for _, grp := range f.Pool().Groups() {
		if grp.ID() == scheduler.DefaultGroupID || grp.Private() {
			continue
		}
		snap.Threads = append(snap.Threads, Thread{ID: grp.ID(), Name: grp.Name()})
	}

	for _, w := range g.Nodes() {
		snap.Nodes = append(snap.Nodes, Node{
			UUID:  w.UUID(),
			Type:  w.TypeName(),
			Pos:   w.Pos(),
			State: fromNodeState(w.SaveState()),
		})
	}

	bySource := make(map[nodeid.UUID]int)
	for _, c := range g.Connections() {
		from := c.From().UUID()
		idx, ok := bySource[from]
		if !ok {
			idx = len(snap.Connections)
			bySource[from] = idx
			snap.Connections = append(snap.Connections, Connection{From: from})
		}
		kind := KindDefault
		if c.IsActive() {
			kind = KindActive
		}
		snap.Connections[idx].Targets = append(snap.Connections[idx].Targets, Target{To: c.To().UUID(), Kind: kind})

		if fs := c.Fulcrums(); len(fs) > 0 {
			snap.Fulcrums = append(snap.Fulcrums, Fulcrums{From: from, To: c.To().UUID(), Fulcrums: fs})
		}
	}
	return snap
}

// Load adds the content of snap to f inside one graph transaction.
func Load(ctx context.Context, f *graph.Facade, reg *registry.Registry, snap *Snapshot) *Report {
	f.Graph().IDs().LoadCounters(snap.UUIDMap)
	return load(ctx, f, reg, snap, false)
}

// Paste adds the content of snap to f with freshly generated node ids.
// Thread assignments and the id counters of snap are ignored.
func Paste(ctx context.Context, f *graph.Facade, reg *registry.Registry, snap *Snapshot) *Report {
	clone := *snap
	clone.Threads = nil
	clone.Nodes = make([]Node, len(snap.Nodes))
	for i, n := range snap.Nodes {
		n.State.ThreadID, n.State.ThreadName = scheduler.DefaultGroupID, ""
		clone.Nodes[i] = n
	}
	return load(ctx, f, reg, &clone, true)
}

func load(ctx context.Context, f *graph.Facade, reg *registry.Registry, snap *Snapshot, fresh bool) *Report {
	g := f.Graph()
	report := &Report{Mapping: make(map[nodeid.UUID]nodeid.UUID)}
	skip := func(source nodeid.UUID, format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		report.Skipped = append(report.Skipped, msg)
		g.Notify(source, slog.LevelWarn, msg)
	}

	for _, t := range snap.Threads {
		if _, ok := f.Pool().Group(t.ID); ok {
			continue
		}
		if err := f.CreateGroupWithID(t.ID, t.Name); err != nil {
			skip(nodeid.Empty, "thread %q: %v", t.Name, err)
		}
	}

	g.BeginTransaction()
	defer g.FinalizeTransaction()

	for _, n := range snap.Nodes {
		if n.UUID.IsEmpty() {
			skip(n.UUID, "node of type %q has no uuid", n.Type)
			continue
		}
		id := n.UUID
		if fresh {
			id = f.GenerateUUID(n.Type)
		}
		w, err := reg.MakeNode(ctx, id, n.Type)
		if err != nil {
			if fresh {
				g.IDs().Free(id)
			}
			skip(n.UUID, "node %s: %v", n.UUID, err)
			continue
		}
		w.SetPos(n.Pos)
		st, err := toNodeState(n.State)
		if err == nil {
			err = w.RestoreState(st)
		}
		if err != nil {
			g.Notify(id, slog.LevelWarn, fmt.Sprintf("state of %s partially restored: %v", n.UUID, err))
		}
		if err := g.AddNode(w); err != nil {
			w.Destroy()
			if fresh {
				g.IDs().Free(id)
			}
			skip(n.UUID, "node %s: %v", n.UUID, err)
			continue
		}
		report.Mapping[n.UUID] = id
		report.Nodes++
	}

	remap := func(connectorID nodeid.UUID) (nodeid.UUID, bool) {
		connectorID = renameLegacy(connectorID)
		node, ok := report.Mapping[connectorID.ParentUUID()]
		if !ok {
			return connectorID, false
		}
		return connectorID.Rebase(connectorID.ParentUUID(), node), true
	}

	fulcrums := make(map[[2]nodeid.UUID][]connector.Fulcrum)
	for _, fl := range snap.Fulcrums {
		fulcrums[[2]nodeid.UUID{renameLegacy(fl.From), renameLegacy(fl.To)}] = fl.Fulcrums
	}

	for _, c := range snap.Connections {
		for _, t := range c.Targets {
			from, okFrom := remap(c.From)
			to, okTo := remap(t.To)
			if !okFrom || !okTo {
				skip(c.From, "connection %s -> %s: endpoint node not loaded", c.From, t.To)
				continue
			}
			conn, err := g.AddConnection(from, to, t.Kind == KindActive)
			if err != nil {
				skip(c.From, "connection %s -> %s: %v", c.From, t.To, err)
				continue
			}
			if fs, ok := fulcrums[[2]nodeid.UUID{renameLegacy(c.From), renameLegacy(t.To)}]; ok {
				conn.SetFulcrums(fs)
			}
			report.Connections++
		}
	}
	return report
}

// renameLegacy maps connectors named trigger_N to event_N.
func renameLegacy(id nodeid.UUID) nodeid.UUID {
	seg := id.ID()
	if seg.Name != legacyEventPrefix {
		return id
	}
	return id.ParentUUID().Child(nodeid.NewSegmentWithIndex(connector.Event.Prefix(), seg.Index))
}

func fromNodeState(s worker.NodeState) State {
	st := State{
		Label:         s.Label,
		Enabled:       s.Enabled,
		ThreadID:      s.ThreadID,
		ThreadName:    s.ThreadName,
		TickFrequency: s.TickFrequency,
	}
	if len(s.Params) > 0 {
		st.Params = make(map[string]ctyjson.SimpleJSONValue, len(s.Params))
		for name, v := range s.Params {
			st.Params[name] = ctyjson.SimpleJSONValue{Value: v}
		}
	}
	return st
}

func toNodeState(s State) (worker.NodeState, error) {
	st := worker.NodeState{
		Label:         s.Label,
		Enabled:       s.Enabled,
		ThreadID:      s.ThreadID,
		ThreadName:    s.ThreadName,
		TickFrequency: s.TickFrequency,
	}
	if len(s.Params) == 0 {
		return st, nil
	}
	st.Params = make(map[string]cty.Value, len(s.Params))
	var bad []string
	for _, name := range slices.Sorted(maps.Keys(s.Params)) {
		v := s.Params[name].Value
		if v.Type() == cty.NilType {
			bad = append(bad, name)
			continue
		}
		st.Params[name] = v
	}
	if len(bad) > 0 {
		return st, fmt.Errorf("parameters without value: %s", strings.Join(bad, ", "))
	}
	return st, nil
}
