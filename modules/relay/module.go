// Package relay provides an asynchronous pass-through node. Values are
// forwarded after a delay without holding the node's thread group.
package relay

import (
	"context"
	"time"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/param"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/token"
	"github.com/vk/flowgridgo/internal/worker"
	"github.com/zclconf/go-cty/cty"
)

const TypeName = "relay"

type Module struct{}

func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.NodeType{
		Name:        TypeName,
		Description: "Forwards \"in\" to \"out\" after delay_ms, asynchronously.",
		New:         func() worker.Node { return &Node{} },
	})
}

type Node struct {
	in    *connector.Input
	out   *connector.Output
	delay *param.Parameter
}

func (n *Node) Setup(s *worker.Setup) error {
	n.in = s.AddInput("in", token.Any)
	n.out = s.AddOutput("out", token.Any, false)
	var err error
	n.delay, err = s.AddParameter("delay_ms", cty.NumberIntVal(0), param.WithDescription("forwarding delay in milliseconds"))
	return err
}

// Process is unused; the worker prefers ProcessAsync.
func (n *Node) Process(ctx context.Context) error {
	errc := make(chan error, 1)
	n.ProcessAsync(ctx, func(err error) { errc <- err })
	return <-errc
}

func (n *Node) ProcessAsync(ctx context.Context, done func(error)) {
	v, ok := n.in.Value()
	delay := time.Duration(0)
	if d := n.delay.Value(); !d.IsNull() && d.Type() == cty.Number {
		ms, _ := d.AsBigFloat().Float64()
		delay = time.Duration(ms * float64(time.Millisecond))
	}

	go func() {
		if delay > 0 {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				ctxlog.FromContext(ctx).Debug("Relay cancelled.")
				done(ctx.Err())
				return
			}
		}
		if ok {
			n.out.Publish(v)
		}
		done(nil)
	}()
}
