package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/param"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/token"
	"github.com/vk/flowgridgo/internal/worker"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

const TypeName = "print"

// Module implements the registry.Module interface for this package. Out
// defaults to stdout.
type Module struct {
	Out io.Writer
}

// Register registers the print node type.
func (m *Module) Register(r *registry.Registry) {
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	var mu sync.Mutex
	r.Register(&registry.NodeType{
		Name:        TypeName,
		Description: "Writes every value arriving on \"value\" as JSON, one per line.",
		New:         func() worker.Node { return &Node{out: out, mu: &mu} },
	})
}

// Node prints incoming values. The "clear" slot resets the line counter.
type Node struct {
	value  *connector.Input
	prefix *param.Parameter

	out   io.Writer
	mu    *sync.Mutex // shared by every node writing to out
	lines int
}

func (n *Node) Setup(s *worker.Setup) error {
	n.value = s.AddInput("value", token.Any)
	s.AddSlot("clear", func(context.Context, *token.Token) error {
		n.Reset()
		return nil
	})
	var err error
	n.prefix, err = s.AddParameter("prefix", cty.StringVal(""), param.WithDescription("text written before each value"))
	return err
}

func (n *Node) Process(ctx context.Context) error {
	v, ok := n.value.Value()
	if !ok {
		return nil
	}
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Printing value.", "type", v.Type().FriendlyName())

	body := "null"
	if !v.IsNull() && v.IsWhollyKnown() {
		b, err := ctyjson.Marshal(v, v.Type())
		if err != nil {
			return fmt.Errorf("failed to encode value: %w", err)
		}
		body = string(b)
	}

	prefix := ""
	if p := n.prefix.Value(); !p.IsNull() && p.Type() == cty.String {
		prefix = p.AsString()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.lines++
	_, err := fmt.Fprintf(n.out, "%s%d: %s\n", prefix, n.lines, body)
	return err
}

// Reset restarts line numbering.
func (n *Node) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lines = 0
}
