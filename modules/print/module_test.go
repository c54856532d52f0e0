package print_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/command"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/testutil"
	"github.com/vk/flowgridgo/modules/print"
	"github.com/zclconf/go-cty/cty"
)

func id(s string) nodeid.UUID { return nodeid.MustParse(s) }

func TestPrint_WritesValues(t *testing.T) {
	s := testutil.NewSession(t)
	out := &testutil.SafeBuffer{}
	s.Registry.RegisterModules(&print.Module{Out: out})
	d := s.Dispatcher

	require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: "source"}))
	require.NoError(t, d.Execute(s.Ctx, &command.AddNode{NodeType: print.TypeName}))
	require.NoError(t, d.Execute(s.Ctx, &command.AddConnection{From: id("source_0:|:out_0"), To: id("print_0:|:in_0")}))
	require.NoError(t, d.Execute(s.Ctx, &command.SetParameter{UUID: id("print_0"), Name: "prefix", Value: cty.StringVal("> ")}))

	_, src := testutil.Node[*testutil.Source](t, s, "source_0")
	for i := int64(1); i <= 2; i++ {
		require.NoError(t, s.Facade.Tick(id("source_0")))
		require.Eventually(t, func() bool { return src.Runs() == i }, time.Second, 5*time.Millisecond)
	}
	require.Eventually(t, func() bool { return out.String() == "> 1: 1\n> 2: 2\n" }, time.Second, 5*time.Millisecond, out.String())
}
