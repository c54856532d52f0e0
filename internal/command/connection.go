package command

import (
	"context"
	"fmt"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/nodeid"
)

// AddConnection links an output to an input.
type AddConnection struct {
	From   nodeid.UUID `json:"from"`
	To     nodeid.UUID `json:"to"`
	Active bool        `json:"active"`

	fulcrums []connector.Fulcrum
}

func (c *AddConnection) Type() string { return "add_connection" }
func (c *AddConnection) Describe() string {
	return fmt.Sprintf("connect %s -> %s", c.From, c.To)
}

func (c *AddConnection) Execute(_ context.Context, env *Env) error {
	conn, err := env.Graph().AddConnection(c.From, c.To, c.Active)
	if err != nil {
		return err
	}
	if len(c.fulcrums) > 0 {
		conn.SetFulcrums(c.fulcrums)
	}
	return nil
}

func (c *AddConnection) Undo(_ context.Context, env *Env) error {
	if conn, ok := env.Graph().FindConnection(c.From, c.To); ok {
		c.fulcrums = conn.Fulcrums()
	}
	return env.Graph().RemoveConnection(c.From, c.To)
}

func (c *AddConnection) Redo(ctx context.Context, env *Env) error { return c.Execute(ctx, env) }

// DeleteConnection unlinks an output from an input. Undo restores the
// trigger flag and the fulcrums.
type DeleteConnection struct {
	From nodeid.UUID `json:"from"`
	To   nodeid.UUID `json:"to"`

	active   bool
	fulcrums []connector.Fulcrum
}

func (c *DeleteConnection) Type() string { return "delete_connection" }
func (c *DeleteConnection) Describe() string {
	return fmt.Sprintf("disconnect %s -> %s", c.From, c.To)
}

func (c *DeleteConnection) Execute(_ context.Context, env *Env) error {
	conn, ok := env.Graph().FindConnection(c.From, c.To)
	if !ok {
		return fmt.Errorf("no connection %s -> %s", c.From, c.To)
	}
	c.active, c.fulcrums = conn.IsActive(), conn.Fulcrums()
	return env.Graph().RemoveConnection(c.From, c.To)
}

func (c *DeleteConnection) Undo(_ context.Context, env *Env) error {
	conn, err := env.Graph().AddConnection(c.From, c.To, c.active)
	if err != nil {
		return err
	}
	conn.SetFulcrums(c.fulcrums)
	return nil
}

func (c *DeleteConnection) Redo(ctx context.Context, env *Env) error { return c.Execute(ctx, env) }

// MoveConnection re-targets every connection of one connector onto another
// connector of the same direction.
type MoveConnection struct {
	From nodeid.UUID `json:"from"`
	To   nodeid.UUID `json:"to"`

	nested *Meta
}

func (c *MoveConnection) Type() string { return "move_connection" }
func (c *MoveConnection) Describe() string {
	return fmt.Sprintf("move connections of %s to %s", c.From, c.To)
}

func (c *MoveConnection) Execute(ctx context.Context, env *Env) error {
	g := env.Graph()
	from, err := g.FindConnector(c.From)
	if err != nil {
		return err
	}
	to, err := g.FindConnector(c.To)
	if err != nil {
		return err
	}
	if from.Kind().IsOutput() != to.Kind().IsOutput() {
		return fmt.Errorf("%w: cannot move connections from %s %s to %s %s",
			connector.ErrIncompatible, from.Kind(), c.From, to.Kind(), c.To)
	}

	c.nested = NewMeta("move connections")
	for _, conn := range from.Connections() {
		src, dst := conn.From().UUID(), conn.To().UUID()
		c.nested.Add(&DeleteConnection{From: src, To: dst})
		if from.Kind().IsOutput() {
			c.nested.Add(&AddConnection{From: c.To, To: dst, Active: conn.IsActive()})
		} else {
			c.nested.Add(&AddConnection{From: src, To: c.To, Active: conn.IsActive()})
		}
	}
	return c.nested.Execute(ctx, env)
}

func (c *MoveConnection) Undo(ctx context.Context, env *Env) error { return c.nested.Undo(ctx, env) }
func (c *MoveConnection) Redo(ctx context.Context, env *Env) error { return c.nested.Redo(ctx, env) }

// ModifyFulcrums replaces the waypoints of a connection.
type ModifyFulcrums struct {
	From     nodeid.UUID         `json:"from"`
	To       nodeid.UUID         `json:"to"`
	Fulcrums []connector.Fulcrum `json:"fulcrums"`

	old []connector.Fulcrum
}

func (c *ModifyFulcrums) Type() string { return "modify_fulcrums" }
func (c *ModifyFulcrums) Describe() string {
	return fmt.Sprintf("modify fulcrums of %s -> %s", c.From, c.To)
}

func (c *ModifyFulcrums) Execute(_ context.Context, env *Env) error {
	conn, ok := env.Graph().FindConnection(c.From, c.To)
	if !ok {
		return fmt.Errorf("no connection %s -> %s", c.From, c.To)
	}
	c.old = conn.Fulcrums()
	conn.SetFulcrums(c.Fulcrums)
	return nil
}

func (c *ModifyFulcrums) Undo(_ context.Context, env *Env) error {
	conn, ok := env.Graph().FindConnection(c.From, c.To)
	if !ok {
		return fmt.Errorf("no connection %s -> %s", c.From, c.To)
	}
	conn.SetFulcrums(c.old)
	return nil
}

func (c *ModifyFulcrums) Redo(ctx context.Context, env *Env) error { return c.Execute(ctx, env) }
