// Package counter provides a tick-driven source node that emits an
// arithmetic sequence.
package counter

import (
	"context"
	"sync"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/param"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/worker"
	"github.com/zclconf/go-cty/cty"
)

// TypeName is the registered node type.
const TypeName = "counter"

// Module registers the counter node. TickFrequency is the default rate of
// new counters in Hz; zero leaves them manually ticked.
type Module struct {
	TickFrequency float64
}

func (m *Module) Register(r *registry.Registry) {
	var opts []worker.Option
	if m.TickFrequency > 0 {
		opts = append(opts, worker.WithTickFrequency(m.TickFrequency))
	}
	r.Register(&registry.NodeType{
		Name:        TypeName,
		Description: "Emits start, start+step, ... on every tick. Fires \"wrapped\" when limit is reached.",
		New:         func() worker.Node { return &Node{} },
		Options:     opts,
	})
}

// Node is the counter logic.
type Node struct {
	count   *connector.Output
	wrapped *connector.Output
	start   *param.Parameter
	step    *param.Parameter
	limit   *param.Parameter

	mu sync.Mutex
	n  int64
}

func (c *Node) Setup(s *worker.Setup) error {
	c.count = s.AddOutput("count", cty.Number, false)
	c.wrapped = s.AddEvent("wrapped")

	var err error
	if c.start, err = s.AddParameter("start", cty.NumberIntVal(0), param.WithDescription("first emitted value")); err != nil {
		return err
	}
	if c.step, err = s.AddParameter("step", cty.NumberIntVal(1), param.WithDescription("increment per tick")); err != nil {
		return err
	}
	c.limit, err = s.AddParameter("limit", cty.NumberIntVal(0), param.WithDescription("number of values before wrapping, 0 for never"))
	return err
}

func (c *Node) Process(context.Context) error {
	c.mu.Lock()
	n := c.n
	c.n++
	limit := asInt(c.limit.Value())
	if limit > 0 && c.n >= limit {
		c.n = 0
	}
	c.mu.Unlock()

	v := c.start.Value().Add(c.step.Value().Multiply(cty.NumberIntVal(n)))
	c.count.Publish(v)
	if limit > 0 && n == limit-1 {
		c.wrapped.Trigger()
	}
	return nil
}

// Reset restarts the sequence.
func (c *Node) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}

func asInt(v cty.Value) int64 {
	if v.IsNull() || !v.IsKnown() || v.Type() != cty.Number {
		return 0
	}
	i, _ := v.AsBigFloat().Int64()
	return i
}
