package localsession_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/command"
	"github.com/vk/flowgridgo/internal/localsession"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/testutil"
)

func newSession(t *testing.T, opts ...localsession.Option) *localsession.Session {
	t.Helper()
	ctx, _ := testutil.Context(t)
	reg := registry.New()
	reg.RegisterModules(testutil.ProbeModule{})
	s, err := localsession.New(ctx, reg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func id(s string) nodeid.UUID { return nodeid.MustParse(s) }

func buildPair(t *testing.T, s *localsession.Session) {
	t.Helper()
	ctx, _ := testutil.Context(t)
	d := s.Dispatcher
	require.NoError(t, d.Execute(ctx, &command.AddNode{NodeType: "source"}))
	require.NoError(t, d.Execute(ctx, &command.AddNode{NodeType: "sink"}))
	require.NoError(t, d.Execute(ctx, &command.AddConnection{From: id("source_0:|:out_0"), To: id("sink_0:|:in_0")}))
}

func TestSession_Options(t *testing.T) {
	s := newSession(t, localsession.WithPaused(true))
	assert.True(t, s.Facade.IsPaused())
	assert.NotEqual(t, [16]byte{}, [16]byte(s.ID))
}

func TestSession_SnapshotMarksSavepoint(t *testing.T) {
	s := newSession(t)
	buildPair(t, s)
	require.True(t, s.Dispatcher.IsDirty())

	snap := s.Snapshot()
	assert.False(t, s.Dispatcher.IsDirty())
	assert.Len(t, snap.Nodes, 2)
}

func TestSession_OpenReplacesGraph(t *testing.T) {
	src := newSession(t)
	buildPair(t, src)
	snap := src.Snapshot()

	dst := newSession(t)
	ctx, _ := testutil.Context(t)
	require.NoError(t, dst.Dispatcher.Execute(ctx, &command.AddNode{NodeType: "pass"}))

	report := dst.Open(ctx, snap)
	assert.Empty(t, report.Skipped)
	assert.False(t, dst.Dispatcher.CanUndo())
	assert.False(t, dst.Dispatcher.IsDirty())

	nodes := dst.Facade.EnumerateAllNodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "source_0", nodes[0].String())
	assert.Equal(t, "sink_0", nodes[1].String())
}

func TestSession_Files(t *testing.T) {
	for _, name := range []string{"graph.hcl", "graph.json"} {
		t.Run(name, func(t *testing.T) {
			s := newSession(t)
			buildPair(t, s)
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, s.SaveFile(path))
			assert.False(t, s.Dispatcher.IsDirty())

			other := newSession(t)
			ctx, _ := testutil.Context(t)
			report, err := other.OpenFile(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, 2, report.Nodes)
			assert.Equal(t, 1, report.Connections)
		})
	}
}

func TestSession_PasteIsDirty(t *testing.T) {
	s := newSession(t)
	buildPair(t, s)
	snap := s.Snapshot()

	ctx, _ := testutil.Context(t)
	report := s.Paste(ctx, snap)
	assert.Equal(t, 2, report.Nodes)
	assert.True(t, s.Dispatcher.IsDirty())
	assert.Len(t, s.Facade.Graph().Nodes(), 4)
}
