package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Meta applies its children as one command. Execute and Redo run them in
// order, Undo in reverse. If a child fails, the children already applied in
// this pass are reverted before the error is returned.
type Meta struct {
	Name     string    `json:"name"`
	Children []Command `json:"-"`
}

// NewMeta groups cmds under name.
func NewMeta(name string, cmds ...Command) *Meta {
	return &Meta{Name: name, Children: cmds}
}

// Add appends a child.
func (m *Meta) Add(cmd Command) { m.Children = append(m.Children, cmd) }

func (m *Meta) Type() string { return "meta" }

func (m *Meta) Describe() string {
	parts := make([]string, len(m.Children))
	for i, c := range m.Children {
		parts[i] = c.Describe()
	}
	return fmt.Sprintf("%s [%s]", m.Name, strings.Join(parts, "; "))
}

func (m *Meta) Execute(ctx context.Context, env *Env) error {
	return m.forward(ctx, env, PhaseExecute)
}

func (m *Meta) Redo(ctx context.Context, env *Env) error {
	return m.forward(ctx, env, PhaseRedo)
}

func (m *Meta) Undo(ctx context.Context, env *Env) error {
	for i := len(m.Children) - 1; i >= 0; i-- {
		if err := run(ctx, env, m.Children[i], PhaseUndo); err != nil {
			// re-apply what was already undone
			var errs []error
			for j := i + 1; j < len(m.Children); j++ {
				if rerr := run(ctx, env, m.Children[j], PhaseRedo); rerr != nil {
					errs = append(errs, rerr)
				}
			}
			return errors.Join(append([]error{err}, errs...)...)
		}
	}
	return nil
}

func (m *Meta) forward(ctx context.Context, env *Env, phase Phase) error {
	for i, c := range m.Children {
		if err := run(ctx, env, c, phase); err != nil {
			var errs []error
			for j := i - 1; j >= 0; j-- {
				if rerr := run(ctx, env, m.Children[j], PhaseUndo); rerr != nil {
					errs = append(errs, rerr)
				}
			}
			return errors.Join(append([]error{err}, errs...)...)
		}
	}
	return nil
}
