package worker

import (
	"fmt"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/param"
	"github.com/zclconf/go-cty/cty"
)

// Setup is handed to Node.Setup to declare connectors and parameters.
type Setup struct {
	w       *NodeWorker
	indices map[connector.Kind]int
}

// InputOption configures a declared input.
type InputOption func(*inputConfig)

type inputConfig struct {
	optional bool
	async    bool
}

// Optional lets the input stay disconnected without blocking the node.
func Optional() InputOption { return func(c *inputConfig) { c.optional = true } }

// Async excludes the input from the synchronization barrier.
func Async() InputOption { return func(c *inputConfig) { c.async = true } }

func (s *Setup) nextID(kind connector.Kind) nodeid.UUID {
	idx := s.indices[kind]
	s.indices[kind] = idx + 1
	return s.w.uuid.Child(nodeid.NewSegmentWithIndex(kind.Prefix(), idx))
}

// UUID is the id of the node being set up.
func (s *Setup) UUID() nodeid.UUID { return s.w.uuid }

// AddInput declares a data input.
func (s *Setup) AddInput(label string, typ cty.Type, opts ...InputOption) *connector.Input {
	var cfg inputConfig
	for _, o := range opts {
		o(&cfg)
	}
	in := connector.NewInput(s.nextID(connector.DataInput), connector.DataInput, label, typ, cfg.optional, cfg.async)
	s.w.inputs.AddInput(in)
	return in
}

// AddOutput declares a data output. Forced outputs emit even when nothing
// listens.
func (s *Setup) AddOutput(label string, typ cty.Type, forced bool) *connector.Output {
	out := connector.NewOutput(s.nextID(connector.DataOutput), connector.DataOutput, label, typ, forced)
	s.w.outputs.AddOutput(out)
	return out
}

// AddEvent declares an event output that feeds slots.
func (s *Setup) AddEvent(label string) *connector.Output {
	out := connector.NewOutput(s.nextID(connector.Event), connector.Event, label, cty.DynamicPseudoType, false)
	s.w.outputs.AddOutput(out)
	return out
}

// AddSlot declares a trigger input whose handler runs when a token arrives.
func (s *Setup) AddSlot(label string, fn SlotHandler) *connector.Input {
	in := connector.NewInput(s.nextID(connector.Slot), connector.Slot, label, cty.DynamicPseudoType, true, false)
	s.w.inputs.AddInput(in)
	s.w.slots[in] = fn
	return in
}

// AddParameter declares a parameter with a default value.
func (s *Setup) AddParameter(name string, def cty.Value, opts ...param.Option) (*param.Parameter, error) {
	p := param.New(name, def, opts...)
	if err := s.w.params.Add(p); err != nil {
		return nil, fmt.Errorf("node %s: %w", s.w.uuid, err)
	}
	return p, nil
}
