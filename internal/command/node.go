package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/worker"
	"github.com/zclconf/go-cty/cty"
)

// AddNode creates a node of a registered type. An empty UUID is generated
// on first execution and kept for redo.
type AddNode struct {
	NodeType string            `json:"node_type"`
	UUID     nodeid.UUID       `json:"uuid"`
	Pos      connector.Point   `json:"pos"`
	State    *worker.NodeState `json:"-"`
}

func (c *AddNode) Type() string { return "add_node" }

func (c *AddNode) Describe() string {
	return fmt.Sprintf("add %s node %s", c.NodeType, c.UUID)
}

func (c *AddNode) Execute(ctx context.Context, env *Env) error {
	generated := c.UUID.IsEmpty()
	if generated {
		c.UUID = env.Facade.GenerateUUID(c.NodeType)
	}
	err := createNode(ctx, env, c.NodeType, c.UUID, c.Pos, c.State, -1)
	if err != nil && generated {
		env.Graph().IDs().Free(c.UUID)
		c.UUID = nodeid.Empty
	}
	return err
}

func (c *AddNode) Undo(_ context.Context, env *Env) error {
	w, err := env.Graph().FindNode(c.UUID)
	if err != nil {
		return err
	}
	st := w.SaveState()
	c.State, c.Pos = &st, w.Pos()
	return env.Graph().DeleteNode(c.UUID)
}

func (c *AddNode) Redo(ctx context.Context, env *Env) error {
	return createNode(ctx, env, c.NodeType, c.UUID, c.Pos, c.State, -1)
}

func createNode(ctx context.Context, env *Env, typeName string, id nodeid.UUID, pos connector.Point, st *worker.NodeState, index int) error {
	w, err := env.Registry.MakeNode(ctx, id, typeName)
	if err != nil {
		return err
	}
	w.SetPos(pos)
	if st != nil {
		if err := w.RestoreState(*st); err != nil {
			env.Graph().Notify(id, slog.LevelWarn, fmt.Sprintf("state partially restored: %v", err))
		}
	}
	if err := env.Graph().InsertNode(w, index); err != nil {
		w.Destroy()
		return err
	}
	return nil
}

// DeleteNode removes a node together with its connections. The connections
// are deleted by nested commands so undo restores them.
type DeleteNode struct {
	UUID nodeid.UUID `json:"uuid"`

	nodeType string
	pos      connector.Point
	state    worker.NodeState
	index    int
	conns    *Meta
}

func (c *DeleteNode) Type() string     { return "delete_node" }
func (c *DeleteNode) Describe() string { return fmt.Sprintf("delete node %s", c.UUID) }

func (c *DeleteNode) Execute(ctx context.Context, env *Env) error {
	g := env.Graph()
	w, err := g.FindNode(c.UUID)
	if err != nil {
		return err
	}
	c.conns = NewMeta("delete connections of " + c.UUID.String())
	for _, conn := range g.ConnectionsOf(c.UUID) {
		c.conns.Add(&DeleteConnection{From: conn.From().UUID(), To: conn.To().UUID()})
	}
	c.nodeType, c.pos, c.state = w.TypeName(), w.Pos(), w.SaveState()
	c.index, _ = g.NodeIndex(c.UUID)
	return c.apply(ctx, env, PhaseExecute)
}

func (c *DeleteNode) Redo(ctx context.Context, env *Env) error {
	w, err := env.Graph().FindNode(c.UUID)
	if err != nil {
		return err
	}
	c.pos, c.state = w.Pos(), w.SaveState()
	return c.apply(ctx, env, PhaseRedo)
}

func (c *DeleteNode) apply(ctx context.Context, env *Env, phase Phase) error {
	if err := run(ctx, env, c.conns, phase); err != nil {
		return err
	}
	if err := env.Graph().DeleteNode(c.UUID); err != nil {
		if uerr := c.conns.Undo(ctx, env); uerr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, uerr)
		}
		return err
	}
	return nil
}

func (c *DeleteNode) Undo(ctx context.Context, env *Env) error {
	if err := createNode(ctx, env, c.nodeType, c.UUID, c.pos, &c.state, c.index); err != nil {
		return err
	}
	if err := c.conns.Undo(ctx, env); err != nil {
		// The command stays on the undo stack, so the node must go again.
		if derr := env.Graph().DeleteNode(c.UUID); derr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, derr)
		}
		return err
	}
	return nil
}

// RenameNode changes the label of a node.
type RenameNode struct {
	UUID  nodeid.UUID `json:"uuid"`
	Label string      `json:"label"`

	old string
}

func (c *RenameNode) Type() string { return "rename_node" }
func (c *RenameNode) Describe() string {
	return fmt.Sprintf("rename %s to %q", c.UUID, c.Label)
}

func (c *RenameNode) Execute(_ context.Context, env *Env) error {
	w, err := env.Facade.FindNode(c.UUID)
	if err != nil {
		return err
	}
	c.old = w.Label()
	w.SetLabel(c.Label)
	return nil
}

func (c *RenameNode) Undo(_ context.Context, env *Env) error {
	w, err := env.Facade.FindNode(c.UUID)
	if err != nil {
		return err
	}
	w.SetLabel(c.old)
	return nil
}

func (c *RenameNode) Redo(ctx context.Context, env *Env) error { return c.Execute(ctx, env) }

// MoveBox changes the editor position of a node.
type MoveBox struct {
	UUID nodeid.UUID     `json:"uuid"`
	Pos  connector.Point `json:"pos"`

	old connector.Point
}

func (c *MoveBox) Type() string { return "move_box" }
func (c *MoveBox) Describe() string {
	return fmt.Sprintf("move %s to (%g, %g)", c.UUID, c.Pos.X, c.Pos.Y)
}

func (c *MoveBox) Execute(_ context.Context, env *Env) error {
	w, err := env.Facade.FindNode(c.UUID)
	if err != nil {
		return err
	}
	c.old = w.Pos()
	w.SetPos(c.Pos)
	return nil
}

func (c *MoveBox) Undo(_ context.Context, env *Env) error {
	w, err := env.Facade.FindNode(c.UUID)
	if err != nil {
		return err
	}
	w.SetPos(c.old)
	return nil
}

func (c *MoveBox) Redo(ctx context.Context, env *Env) error { return c.Execute(ctx, env) }

// SetNodeEnabled enables or disables a node.
type SetNodeEnabled struct {
	UUID    nodeid.UUID `json:"uuid"`
	Enabled bool        `json:"enabled"`

	old bool
}

func (c *SetNodeEnabled) Type() string { return "set_node_enabled" }
func (c *SetNodeEnabled) Describe() string {
	if c.Enabled {
		return fmt.Sprintf("enable %s", c.UUID)
	}
	return fmt.Sprintf("disable %s", c.UUID)
}

func (c *SetNodeEnabled) Execute(_ context.Context, env *Env) error {
	w, err := env.Facade.FindNode(c.UUID)
	if err != nil {
		return err
	}
	c.old = w.IsEnabled()
	w.SetEnabled(c.Enabled)
	return nil
}

func (c *SetNodeEnabled) Undo(_ context.Context, env *Env) error {
	w, err := env.Facade.FindNode(c.UUID)
	if err != nil {
		return err
	}
	w.SetEnabled(c.old)
	return nil
}

func (c *SetNodeEnabled) Redo(ctx context.Context, env *Env) error { return c.Execute(ctx, env) }

// SetParameter assigns a parameter value of a node.
type SetParameter struct {
	UUID  nodeid.UUID `json:"uuid"`
	Name  string      `json:"name"`
	Value cty.Value   `json:"-"`

	old cty.Value
}

func (c *SetParameter) Type() string { return "set_parameter" }
func (c *SetParameter) Describe() string {
	return fmt.Sprintf("set %s.%s", c.UUID, c.Name)
}

func (c *SetParameter) Execute(_ context.Context, env *Env) error {
	w, err := env.Facade.FindNode(c.UUID)
	if err != nil {
		return err
	}
	p, ok := w.Params().Get(c.Name)
	if !ok {
		return fmt.Errorf("node %s has no parameter %q", c.UUID, c.Name)
	}
	old := p.Value()
	if err := p.Set(c.Value); err != nil {
		return err
	}
	c.old = old
	return nil
}

func (c *SetParameter) Undo(_ context.Context, env *Env) error {
	w, err := env.Facade.FindNode(c.UUID)
	if err != nil {
		return err
	}
	p, ok := w.Params().Get(c.Name)
	if !ok {
		return fmt.Errorf("node %s has no parameter %q", c.UUID, c.Name)
	}
	return p.Set(c.old)
}

func (c *SetParameter) Redo(ctx context.Context, env *Env) error { return c.Execute(ctx, env) }
