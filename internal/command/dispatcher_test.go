package command_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/command"
	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/graph"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/scheduler"
	"github.com/vk/flowgridgo/internal/testutil"
	"github.com/vk/flowgridgo/internal/worker"
	"github.com/zclconf/go-cty/cty"
)

type nodeRow struct {
	UUID  nodeid.UUID
	Type  string
	Pos   connector.Point
	State worker.NodeState
}

type topology struct {
	Nodes       []nodeRow
	Connections []graph.ConnectionDescription
}

var topologyOpts = cmp.Options{
	cmp.Comparer(func(a, b nodeid.UUID) bool { return a.Equal(b) }),
	cmp.Comparer(func(a, b cty.Value) bool { return a.RawEquals(b) }),
	cmpopts.EquateEmpty(),
}

func snapshot(s *testutil.Session) topology {
	var t topology
	for _, w := range s.Facade.Graph().Nodes() {
		t.Nodes = append(t.Nodes, nodeRow{UUID: w.UUID(), Type: w.TypeName(), Pos: w.Pos(), State: w.SaveState()})
	}
	t.Connections = s.Facade.EnumerateAllConnections()
	slices.SortFunc(t.Connections, func(a, b graph.ConnectionDescription) int {
		return strings.Compare(a.From.String()+a.To.String(), b.From.String()+b.To.String())
	})
	return t
}

func id(s string) nodeid.UUID { return nodeid.MustParse(s) }

// buildChain executes source -> pass -> sink and returns the node ids.
func buildChain(t *testing.T, s *testutil.Session) {
	t.Helper()
	d := s.Dispatcher
	for _, typ := range []string{"source", "pass", "sink"} {
		require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: typ}))
	}
	require.NoError(t, d.Execute(s.Ctx, &command.AddConnection{From: id("source_0:|:out_0"), To: id("pass_0:|:in_0")}))
	require.NoError(t, d.Execute(s.Ctx, &command.AddConnection{From: id("pass_0:|:out_0"), To: id("sink_0:|:in_0")}))
}

func TestDispatcher_UndoRestoresTopology(t *testing.T) {
	s := testutil.NewSession(t)
	d := s.Dispatcher
	empty := snapshot(s)

	buildChain(t, s)
	built := snapshot(s)
	require.Len(t, built.Nodes, 3)
	require.Len(t, built.Connections, 2)

	for range 5 {
		require.NoError(t, d.Undo(s.Ctx))
	}
	assert.Empty(t, cmp.Diff(empty, snapshot(s), topologyOpts))
	assert.False(t, d.CanUndo())
	assert.ErrorIs(t, d.Undo(s.Ctx), command.ErrNothingToUndo)

	for range 5 {
		require.NoError(t, d.Redo(s.Ctx))
	}
	assert.Empty(t, cmp.Diff(built, snapshot(s), topologyOpts))
	assert.ErrorIs(t, d.Redo(s.Ctx), command.ErrNothingToRedo)
}

func TestDispatcher_ExecuteThenUndoIsNoOp(t *testing.T) {
	s := testutil.NewSession(t)
	buildChain(t, s)
	before := snapshot(s)

	cmds := []command.Command{
		&command.DeleteNode{UUID: id("pass_0")},
		&command.RenameNode{UUID: id("sink_0"), Label: "printer"},
		&command.MoveBox{UUID: id("source_0"), Pos: connector.Point{X: 10, Y: 20}},
		&command.SetNodeEnabled{UUID: id("sink_0"), Enabled: false},
		&command.SetParameter{UUID: id("pass_0"), Name: "gain", Value: cty.NumberIntVal(3)},
		&command.DeleteConnection{From: id("source_0:|:out_0"), To: id("pass_0:|:in_0")},
		&command.ModifyFulcrums{From: id("source_0:|:out_0"), To: id("pass_0:|:in_0"), Fulcrums: []connector.Fulcrum{{Pos: connector.Point{X: 1, Y: 2}}}},
		&command.AddNode{NodeType: "sink", Pos: connector.Point{X: 3}},
	}
	for _, cmd := range cmds {
		t.Run(cmd.Type(), func(t *testing.T) {
			require.NoError(t, s.Dispatcher.Execute(s.Ctx, cmd))
			assert.NotEmpty(t, cmp.Diff(before, snapshot(s), topologyOpts), "command had no effect")
			require.NoError(t, s.Dispatcher.Undo(s.Ctx))
			assert.Empty(t, cmp.Diff(before, snapshot(s), topologyOpts))
		})
	}
}

func TestDispatcher_DeleteNodeRedo(t *testing.T) {
	s := testutil.NewSession(t)
	buildChain(t, s)
	d := s.Dispatcher

	require.NoError(t, d.Execute(s.Ctx, &command.DeleteNode{UUID: id("pass_0")}))
	after := snapshot(s)
	assert.Len(t, after.Nodes, 2)
	assert.Empty(t, after.Connections)

	require.NoError(t, d.Undo(s.Ctx))
	idx, ok := s.Facade.Graph().NodeIndex(id("pass_0"))
	require.True(t, ok)
	assert.Equal(t, 1, idx, "node restored at its original position")

	require.NoError(t, d.Redo(s.Ctx))
	assert.Empty(t, cmp.Diff(after, snapshot(s), topologyOpts))
}

func TestDispatcher_DeleteNodeUndoFailureRemovesNode(t *testing.T) {
	s := testutil.NewSession(t)
	buildChain(t, s)
	d := s.Dispatcher
	g := s.Facade.Graph()

	require.NoError(t, d.Execute(s.Ctx, &command.DeleteNode{UUID: id("pass_0")}))
	before := snapshot(s)

	// Remove the sink behind the dispatcher's back so the pass -> sink
	// connection cannot be restored.
	require.NoError(t, g.DeleteNode(id("sink_0")))
	before.Nodes = slices.DeleteFunc(before.Nodes, func(r nodeRow) bool { return r.UUID.Equal(id("sink_0")) })

	err := d.Undo(s.Ctx)
	require.Error(t, err)
	var f *command.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, command.PhaseUndo, f.Phase)
	_, ok := g.NodeIndex(id("pass_0"))
	assert.False(t, ok, "recreated node is removed again")
	assert.Empty(t, cmp.Diff(before, snapshot(s), topologyOpts))
	assert.True(t, d.CanUndo())

	sink, err := s.Registry.MakeNode(s.Ctx, id("sink_0"), "sink")
	require.NoError(t, err)
	require.NoError(t, g.InsertNode(sink, -1))

	require.NoError(t, d.Undo(s.Ctx), "undo succeeds once the graph matches the history again")
	after := snapshot(s)
	assert.Len(t, after.Nodes, 3)
	assert.Len(t, after.Connections, 2)
}

func TestDispatcher_DirtyTracking(t *testing.T) {
	s := testutil.NewSession(t)
	d := s.Dispatcher
	add := func() { require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: "sink"})) }

	var flips []bool
	d.DirtyChanged.Subscribe(func(dirty bool) { flips = append(flips, dirty) })

	assert.False(t, d.IsDirty())
	add()
	assert.True(t, d.IsDirty())

	add()
	d.ResetDirtyPoint()
	assert.False(t, d.IsDirty())

	add()
	assert.True(t, d.IsDirty())
	require.NoError(t, d.Undo(s.Ctx))
	assert.False(t, d.IsDirty(), "back at the savepoint from above")

	require.NoError(t, d.Undo(s.Ctx))
	assert.True(t, d.IsDirty())
	require.NoError(t, d.Redo(s.Ctx))
	assert.False(t, d.IsDirty(), "back at the savepoint from below")

	require.NoError(t, d.Redo(s.Ctx))
	assert.True(t, d.IsDirty())

	assert.Equal(t, []bool{true, false, true, false, true, false, true}, flips)
}

func TestDispatcher_FreshEditDropsRedo(t *testing.T) {
	s := testutil.NewSession(t)
	d := s.Dispatcher

	require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: "sink"}))
	require.NoError(t, d.Undo(s.Ctx))
	assert.True(t, d.CanRedo())

	require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: "source"}))
	assert.False(t, d.CanRedo())
}

func TestDispatcher_FailureKeepsHistory(t *testing.T) {
	s := testutil.NewSession(t)
	d := s.Dispatcher

	require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: "sink"}))
	require.NoError(t, d.Undo(s.Ctx))
	dirty := d.IsDirty()

	var states int
	d.StateChanged.Subscribe(func(struct{}) { states++ })

	err := d.Execute(s.Ctx, &command.AddConnection{From: id("ghost_0:|:out_0"), To: id("sink_0:|:in_0")})
	require.Error(t, err)
	var f *command.Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, "add_connection", f.Type)
	assert.Equal(t, command.PhaseExecute, f.Phase)
	assert.ErrorIs(t, err, graph.ErrStructural)

	assert.False(t, d.CanUndo())
	assert.True(t, d.CanRedo(), "redo history survives a failed edit")
	assert.Equal(t, dirty, d.IsDirty())
	assert.Zero(t, states)

	err = d.Execute(s.Ctx, &command.AddNode{NodeType: "unknown"})
	assert.Error(t, err)
}

func TestMeta_RollsBackOnFailure(t *testing.T) {
	s := testutil.NewSession(t)
	before := snapshot(s)

	meta := command.NewMeta("broken",
		&command.AddNode{NodeType: "source"},
		&command.AddNode{NodeType: "sink"},
		&command.AddConnection{From: id("source_0:|:out_0"), To: id("sink_0:|:nope_0")},
	)
	err := s.Dispatcher.Execute(s.Ctx, meta)
	require.Error(t, err)
	assert.Empty(t, cmp.Diff(before, snapshot(s), topologyOpts))
	assert.False(t, s.Dispatcher.CanUndo())
}

func TestMoveConnection(t *testing.T) {
	s := testutil.NewSession(t)
	buildChain(t, s)
	d := s.Dispatcher
	require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: "sink"}))
	before := snapshot(s)

	require.NoError(t, d.Execute(s.Ctx, &command.MoveConnection{From: id("sink_0:|:in_0"), To: id("sink_1:|:in_0")}))
	_, ok := s.Facade.Graph().FindConnection(id("pass_0:|:out_0"), id("sink_1:|:in_0"))
	assert.True(t, ok)
	_, ok = s.Facade.Graph().FindConnection(id("pass_0:|:out_0"), id("sink_0:|:in_0"))
	assert.False(t, ok)

	require.NoError(t, d.Undo(s.Ctx))
	assert.Empty(t, cmp.Diff(before, snapshot(s), topologyOpts))

	err := d.Execute(s.Ctx, &command.MoveConnection{From: id("sink_0:|:in_0"), To: id("source_0:|:out_0")})
	assert.ErrorIs(t, err, connector.ErrIncompatible)
}

func TestThreadCommands(t *testing.T) {
	s := testutil.NewSession(t)
	d := s.Dispatcher
	require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: "sink"}))
	sink := id("sink_0")

	require.NoError(t, d.Execute(s.Ctx, &command.CreateThread{UUID: sink, Name: "worker"}))
	g, err := s.Facade.ThreadOf(sink)
	require.NoError(t, err)
	created := g.ID()
	assert.Equal(t, "worker", g.Name())

	require.NoError(t, d.Undo(s.Ctx))
	g, err = s.Facade.ThreadOf(sink)
	require.NoError(t, err)
	assert.Equal(t, scheduler.DefaultGroupID, g.ID())
	_, ok := s.Pool.Group(created)
	assert.False(t, ok)

	require.NoError(t, d.Redo(s.Ctx))
	g, err = s.Facade.ThreadOf(sink)
	require.NoError(t, err)
	assert.Equal(t, created, g.ID(), "redo restores the same group id")

	require.NoError(t, d.Execute(s.Ctx, &command.CreateThread{Name: "spare"}))
	spare := len(s.Pool.Groups())
	require.NoError(t, d.Execute(s.Ctx, &command.SwitchThread{UUID: sink, GroupID: scheduler.DefaultGroupID}))
	g, _ = s.Facade.ThreadOf(sink)
	assert.Equal(t, scheduler.DefaultGroupID, g.ID())

	require.NoError(t, d.Undo(s.Ctx))
	g, _ = s.Facade.ThreadOf(sink)
	assert.Equal(t, created, g.ID())

	require.NoError(t, d.Undo(s.Ctx))
	assert.Len(t, s.Pool.Groups(), spare-1)
}

func TestDispatcher_ExecuteLater(t *testing.T) {
	s := testutil.NewSession(t)
	d := s.Dispatcher

	d.ExecuteLater(&command.AddNode{NodeType: "sink"})
	d.ExecuteLater(&command.AddNode{NodeType: "nope"})
	d.ExecuteLater(&command.AddNode{NodeType: "source"})
	assert.Equal(t, 3, d.Queued())
	assert.Empty(t, s.Facade.Graph().Nodes())

	err := d.ExecuteQueued(s.Ctx)
	assert.ErrorContains(t, err, "nope")
	assert.Len(t, s.Facade.Graph().Nodes(), 2)
	assert.Zero(t, d.Queued())

	done, undone := d.History()
	assert.Equal(t, []string{"add sink node sink_0", "add source node source_0"}, done)
	assert.Empty(t, undone)
}

func TestDispatcher_NotUndoable(t *testing.T) {
	s := testutil.NewSession(t)
	d := s.Dispatcher

	add := &command.AddNode{NodeType: "sink"}
	require.NoError(t, d.ExecuteNotUndoable(s.Ctx, add))
	assert.True(t, d.IsDirty())
	assert.False(t, d.CanUndo())
	assert.Len(t, s.Facade.Graph().Nodes(), 1)

	require.NoError(t, d.UndoNotRedoable(s.Ctx, add))
	assert.Empty(t, s.Facade.Graph().Nodes())
	assert.False(t, d.CanRedo())

	require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: "sink"}))
	d.Reset()
	assert.Empty(t, s.Facade.Graph().Nodes())
	assert.False(t, d.CanUndo())
	assert.False(t, d.IsDirty())
}
