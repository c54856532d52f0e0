// Package sum provides a node that adds the numbers arriving on its two
// inputs. It processes only once both inputs hold a message.
package sum

import (
	"context"
	"fmt"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/worker"
	"github.com/zclconf/go-cty/cty"
)

const TypeName = "sum"

type Module struct{}

func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.NodeType{
		Name:        TypeName,
		Description: "Publishes a+b once both inputs arrived.",
		New:         func() worker.Node { return &Node{} },
	})
}

type Node struct {
	a, b *connector.Input
	out  *connector.Output
}

func (n *Node) Setup(s *worker.Setup) error {
	n.a = s.AddInput("a", cty.Number)
	n.b = s.AddInput("b", cty.Number)
	n.out = s.AddOutput("sum", cty.Number, false)
	return nil
}

func (n *Node) Process(context.Context) error {
	a, okA := n.a.Value()
	b, okB := n.b.Value()
	if !okA || !okB {
		return nil
	}
	if a.IsNull() || b.IsNull() {
		return fmt.Errorf("cannot add null operands")
	}
	n.out.Publish(a.Add(b))
	return nil
}
