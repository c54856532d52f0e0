// Package env_vars provides a source node that reads the process
// environment on every tick.
package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/param"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/worker"
	"github.com/zclconf/go-cty/cty"
)

const TypeName = "env_vars"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the env_vars node type.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.NodeType{
		Name:        TypeName,
		Description: "Publishes the variable named by \"name\" and the whole environment on every tick.",
		New:         func() worker.Node { return &Node{} },
	})
}

// Node reads the environment. An unset variable publishes "" on "value" and
// fires "missing".
type Node struct {
	value   *connector.Output
	all     *connector.Output
	missing *connector.Output
	name    *param.Parameter
}

func (n *Node) Setup(s *worker.Setup) error {
	n.value = s.AddOutput("value", cty.String, false)
	n.all = s.AddOutput("all", cty.Map(cty.String), false)
	n.missing = s.AddEvent("missing")

	var err error
	n.name, err = s.AddParameter("name", cty.StringVal(""), param.WithDescription("variable published on \"value\""))
	return err
}

func (n *Node) Process(context.Context) error {
	env := make(map[string]cty.Value)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			env[pair[0]] = cty.StringVal(pair[1])
		}
	}
	if len(env) == 0 {
		n.all.Publish(cty.MapValEmpty(cty.String))
	} else {
		n.all.Publish(cty.MapVal(env))
	}

	name := ""
	if p := n.name.Value(); !p.IsNull() && p.Type() == cty.String {
		name = p.AsString()
	}
	if name == "" {
		return nil
	}
	v, ok := os.LookupEnv(name)
	n.value.Publish(cty.StringVal(v))
	if !ok {
		n.missing.Trigger()
	}
	return nil
}
