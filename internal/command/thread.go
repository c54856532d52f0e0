package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/scheduler"
)

// CreateThread creates a named thread group. With a node UUID the node is
// moved into the new group; undo moves it back to the group it came from.
type CreateThread struct {
	UUID nodeid.UUID `json:"uuid"`
	Name string      `json:"name"`

	groupID  int
	oldGroup int
	oldName  string
}

func (c *CreateThread) Type() string { return "create_thread" }
func (c *CreateThread) Describe() string {
	if c.UUID.IsEmpty() {
		return fmt.Sprintf("create thread %q", c.Name)
	}
	return fmt.Sprintf("move %s to new thread %q", c.UUID, c.Name)
}

func (c *CreateThread) Execute(_ context.Context, env *Env) error {
	if c.UUID.IsEmpty() {
		id, err := env.Facade.CreateGroup(c.Name)
		if err != nil {
			return err
		}
		c.groupID = id
		return nil
	}

	old, err := env.Facade.ThreadOf(c.UUID)
	if err != nil {
		return err
	}
	c.oldGroup, c.oldName = old.ID(), old.Name()
	if old.Private() {
		c.oldGroup = scheduler.PrivateThreadID
	}
	id, err := env.Facade.MoveToNewGroup(c.UUID, c.Name)
	if err != nil {
		return err
	}
	c.groupID = id
	return nil
}

func (c *CreateThread) Undo(_ context.Context, env *Env) error {
	if !c.UUID.IsEmpty() {
		if err := moveBack(env, c.UUID, c.oldGroup, c.oldName); err != nil {
			return err
		}
	}
	return env.Facade.RemoveGroup(c.groupID)
}

// Redo recreates the group under the id it had before.
func (c *CreateThread) Redo(_ context.Context, env *Env) error {
	if err := env.Facade.CreateGroupWithID(c.groupID, c.Name); err != nil {
		return err
	}
	if c.UUID.IsEmpty() {
		return nil
	}
	if err := env.Facade.MoveToGroup(c.UUID, c.groupID); err != nil {
		return errors.Join(err, env.Facade.RemoveGroup(c.groupID))
	}
	return nil
}

// moveBack returns a node to a previous group, recreating a user group
// that has disappeared in the meantime.
func moveBack(env *Env, id nodeid.UUID, group int, name string) error {
	if group == scheduler.PrivateThreadID {
		return env.Facade.MoveToPrivateGroup(id)
	}
	if group != scheduler.DefaultGroupID {
		if _, ok := env.Facade.Pool().Group(group); !ok {
			if err := env.Facade.CreateGroupWithID(group, name); err != nil {
				return err
			}
		}
	}
	return env.Facade.MoveToGroup(id, group)
}

// SwitchThread moves a node into an existing group.
type SwitchThread struct {
	UUID    nodeid.UUID `json:"uuid"`
	GroupID int         `json:"group_id"`

	oldGroup int
	oldName  string
}

func (c *SwitchThread) Type() string { return "switch_thread" }
func (c *SwitchThread) Describe() string {
	return fmt.Sprintf("move %s to thread %d", c.UUID, c.GroupID)
}

func (c *SwitchThread) Execute(_ context.Context, env *Env) error {
	old, err := env.Facade.ThreadOf(c.UUID)
	if err != nil {
		return err
	}
	c.oldGroup, c.oldName = old.ID(), old.Name()
	if old.Private() {
		c.oldGroup = scheduler.PrivateThreadID
	}
	return env.Facade.MoveToGroup(c.UUID, c.GroupID)
}

func (c *SwitchThread) Undo(_ context.Context, env *Env) error {
	return moveBack(env, c.UUID, c.oldGroup, c.oldName)
}

func (c *SwitchThread) Redo(ctx context.Context, env *Env) error { return c.Execute(ctx, env) }
