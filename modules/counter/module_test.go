package counter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/command"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/testutil"
	"github.com/vk/flowgridgo/modules/counter"
	"github.com/zclconf/go-cty/cty"
)

func id(s string) nodeid.UUID { return nodeid.MustParse(s) }

func TestCounter_Sequence(t *testing.T) {
	s := testutil.NewSession(t)
	s.Registry.RegisterModules(&counter.Module{})
	d := s.Dispatcher

	require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: counter.TypeName}))
	require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: "sink"}))
	require.NoError(t, d.Execute(s.Ctx, &command.AddConnection{From: id("counter_0:|:out_0"), To: id("sink_0:|:in_0")}))
	require.NoError(t, d.Execute(s.Ctx, &command.SetParameter{UUID: id("counter_0"), Name: "start", Value: cty.NumberIntVal(10)}))
	require.NoError(t, d.Execute(s.Ctx, &command.SetParameter{UUID: id("counter_0"), Name: "step", Value: cty.NumberIntVal(5)}))
	require.NoError(t, d.Execute(s.Ctx, &command.SetParameter{UUID: id("counter_0"), Name: "limit", Value: cty.NumberIntVal(2)}))

	w, _ := testutil.Node[*counter.Node](t, s, "counter_0")
	_, sink := testutil.Node[*testutil.Sink](t, s, "sink_0")

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Facade.Tick(w.UUID()))
		require.Eventually(t, func() bool { return sink.Runs() == i }, time.Second, 5*time.Millisecond)
	}

	want := []int64{10, 15, 10}
	got := sink.Values()
	require.Len(t, got, len(want))
	for i, v := range want {
		assert.True(t, got[i].Equals(cty.NumberIntVal(v)).True(), "value %d: %#v", i, got[i])
	}
}

func TestCounter_TickFrequencyOption(t *testing.T) {
	s := testutil.NewSession(t)
	s.Registry.RegisterModules(&counter.Module{TickFrequency: 50})

	require.NoError(t, s.Dispatcher.Execute(s.Ctx, &command.AddNode{NodeType: counter.TypeName}))
	w, _ := testutil.Node[*counter.Node](t, s, "counter_0")
	assert.Equal(t, 50.0, w.TickFrequency())
}
