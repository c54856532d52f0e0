package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/flowgridgo/internal/graph"
	"github.com/vk/flowgridgo/internal/registry"
)

var (
	// ErrNothingToUndo is returned by Undo on an empty done stack.
	ErrNothingToUndo = errors.New("command: nothing to undo")
	// ErrNothingToRedo is returned by Redo on an empty undone stack.
	ErrNothingToRedo = errors.New("command: nothing to redo")
)

// Env is what a command operates on.
type Env struct {
	Facade   *graph.Facade
	Registry *registry.Registry
}

// Graph is a shortcut for the facade's graph tables.
func (e *Env) Graph() *graph.Graph { return e.Facade.Graph() }

// Command is one undoable edit.
type Command interface {
	// Type is the stable name used for decoding and metrics.
	Type() string
	// Describe is a one-line human readable summary.
	Describe() string
	Execute(ctx context.Context, env *Env) error
	Undo(ctx context.Context, env *Env) error
	Redo(ctx context.Context, env *Env) error
}

// Phase names the command method that failed.
type Phase string

const (
	PhaseExecute Phase = "execute"
	PhaseUndo    Phase = "undo"
	PhaseRedo    Phase = "redo"
)

// Failure reports a command whose execute, undo or redo step failed.
type Failure struct {
	Type  string
	Phase Phase
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("command %s: %s failed: %v", f.Type, f.Phase, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// run calls the phase method of cmd and wraps its error in a Failure.
func run(ctx context.Context, env *Env, cmd Command, phase Phase) error {
	var err error
	switch phase {
	case PhaseExecute:
		err = cmd.Execute(ctx, env)
	case PhaseUndo:
		err = cmd.Undo(ctx, env)
	case PhaseRedo:
		err = cmd.Redo(ctx, env)
	}
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return &Failure{Type: cmd.Type(), Phase: phase, Err: err}
}
