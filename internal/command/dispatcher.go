package command

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/observer"
	"github.com/vk/flowgridgo/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type entry struct {
	cmd Command
	// afterSavepoint: undoing this command returns to the saved state.
	afterSavepoint bool
	// beforeSavepoint: redoing this command returns to the saved state.
	beforeSavepoint bool
}

// Dispatcher executes commands and keeps the undo/redo history.
type Dispatcher struct {
	logger *slog.Logger
	env    *Env

	// mu serializes commands and guards the history.
	mu     sync.Mutex
	done   []*entry
	undone []*entry
	later  []Command
	dirty  bool

	// StateChanged fires after every successful execute, undo or redo.
	StateChanged observer.Signal[struct{}]
	// DirtyChanged fires when IsDirty flips.
	DirtyChanged observer.Signal[bool]
}

// NewDispatcher creates a dispatcher operating on env.
func NewDispatcher(ctx context.Context, env *Env) *Dispatcher {
	return &Dispatcher{
		logger: ctxlog.FromContext(ctx).With("component", "dispatcher"),
		env:    env,
	}
}

// Env returns what commands operate on.
func (d *Dispatcher) Env() *Env { return d.env }

func (d *Dispatcher) traced(ctx context.Context, op string, cmd Command, fn func(context.Context) error) error {
	ctx, span := telemetry.Tracer.Start(ctx, "command."+op, trace.WithAttributes(
		attribute.String("command.type", cmd.Type()),
	))
	defer span.End()

	err := fn(ctx)
	telemetry.RecordCommand(ctx, op, cmd.Type(), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("Command failed.", "op", op, "command", cmd.Describe(), "error", err)
		return err
	}
	d.logger.Debug("Command applied.", "op", op, "command", cmd.Describe())
	return nil
}

// Execute runs cmd and records it. A fresh edit clears the redo history.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) error {
	d.mu.Lock()
	changed, err := d.executeLocked(ctx, cmd)
	d.mu.Unlock()

	d.emit(changed, err == nil)
	return err
}

func (d *Dispatcher) executeLocked(ctx context.Context, cmd Command) (dirtyChanged bool, err error) {
	err = d.traced(ctx, string(PhaseExecute), cmd, func(ctx context.Context) error {
		return run(ctx, d.env, cmd, PhaseExecute)
	})
	if err != nil {
		return false, err
	}
	d.done = append(d.done, &entry{cmd: cmd, afterSavepoint: !d.dirty})
	d.undone = nil
	return d.setDirtyLocked(true), nil
}

// ExecuteLater queues cmd for the next ExecuteQueued.
func (d *Dispatcher) ExecuteLater(cmd Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.later = append(d.later, cmd)
}

// ExecuteQueued executes every queued command in order. Failing commands
// are skipped; their errors are joined.
func (d *Dispatcher) ExecuteQueued(ctx context.Context) error {
	d.mu.Lock()
	queue := d.later
	d.later = nil
	var (
		errs    []error
		changed bool
		applied bool
	)
	for _, cmd := range queue {
		c, err := d.executeLocked(ctx, cmd)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		changed = changed || c
		applied = true
	}
	d.mu.Unlock()

	d.emit(changed, applied)
	return errors.Join(errs...)
}

// Queued returns the number of commands waiting for ExecuteQueued.
func (d *Dispatcher) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.later)
}

// ExecuteNotUndoable runs cmd without recording it. The document becomes
// dirty.
func (d *Dispatcher) ExecuteNotUndoable(ctx context.Context, cmd Command) error {
	d.mu.Lock()
	err := d.traced(ctx, "execute_not_undoable", cmd, func(ctx context.Context) error {
		return run(ctx, d.env, cmd, PhaseExecute)
	})
	changed := false
	if err == nil {
		changed = d.setDirtyLocked(true)
	}
	d.mu.Unlock()

	d.emit(changed, err == nil)
	return err
}

// UndoNotRedoable reverts cmd without touching the history.
func (d *Dispatcher) UndoNotRedoable(ctx context.Context, cmd Command) error {
	d.mu.Lock()
	err := d.traced(ctx, "undo_not_redoable", cmd, func(ctx context.Context) error {
		return run(ctx, d.env, cmd, PhaseUndo)
	})
	d.mu.Unlock()

	d.emit(false, err == nil)
	return err
}

// Undo reverts the most recent command.
func (d *Dispatcher) Undo(ctx context.Context) error {
	d.mu.Lock()
	if len(d.done) == 0 {
		d.mu.Unlock()
		return ErrNothingToUndo
	}
	last := d.done[len(d.done)-1]
	err := d.traced(ctx, string(PhaseUndo), last.cmd, func(ctx context.Context) error {
		return run(ctx, d.env, last.cmd, PhaseUndo)
	})
	changed := false
	if err == nil {
		d.done = d.done[:len(d.done)-1]
		d.undone = append(d.undone, last)
		changed = d.setDirtyLocked(!last.afterSavepoint)
	}
	d.mu.Unlock()

	d.emit(changed, err == nil)
	return err
}

// Redo re-applies the most recently undone command.
func (d *Dispatcher) Redo(ctx context.Context) error {
	d.mu.Lock()
	if len(d.undone) == 0 {
		d.mu.Unlock()
		return ErrNothingToRedo
	}
	last := d.undone[len(d.undone)-1]
	err := d.traced(ctx, string(PhaseRedo), last.cmd, func(ctx context.Context) error {
		return run(ctx, d.env, last.cmd, PhaseRedo)
	})
	changed := false
	if err == nil {
		d.undone = d.undone[:len(d.undone)-1]
		d.done = append(d.done, last)
		changed = d.setDirtyLocked(!last.beforeSavepoint)
	}
	d.mu.Unlock()

	d.emit(changed, err == nil)
	return err
}

func (d *Dispatcher) CanUndo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.done) > 0
}

func (d *Dispatcher) CanRedo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.undone) > 0
}

// IsDirty reports whether the graph differs from the last savepoint.
func (d *Dispatcher) IsDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// ResetDirtyPoint marks the current history position as saved.
func (d *Dispatcher) ResetDirtyPoint() {
	d.mu.Lock()
	changed := d.setDirtyLocked(false)
	d.clearSavepointsLocked()
	if n := len(d.done); n > 0 {
		d.done[n-1].beforeSavepoint = true
	}
	if n := len(d.undone); n > 0 {
		d.undone[n-1].afterSavepoint = true
	}
	d.mu.Unlock()

	d.emit(changed, false)
}

// ClearSavepoints forgets every savepoint marker. The dirty flag is kept.
func (d *Dispatcher) ClearSavepoints() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearSavepointsLocked()
}

func (d *Dispatcher) clearSavepointsLocked() {
	for _, e := range d.done {
		e.afterSavepoint, e.beforeSavepoint = false, false
	}
	for _, e := range d.undone {
		e.afterSavepoint, e.beforeSavepoint = false, false
	}
}

// MarkDirty flags the document as modified outside the history.
func (d *Dispatcher) MarkDirty() {
	d.mu.Lock()
	changed := d.setDirtyLocked(true)
	d.mu.Unlock()
	d.emit(changed, false)
}

// Reset clears the graph and forgets the history.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.env.Facade.Clear()
	d.done, d.undone, d.later = nil, nil, nil
	changed := d.setDirtyLocked(false)
	d.mu.Unlock()

	d.emit(changed, true)
}

// History returns the descriptions of the done and undone stacks, oldest
// first.
func (d *Dispatcher) History() (done, undone []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.done {
		done = append(done, e.cmd.Describe())
	}
	for _, e := range d.undone {
		undone = append(undone, e.cmd.Describe())
	}
	return done, undone
}

func (d *Dispatcher) setDirtyLocked(dirty bool) bool {
	changed := d.dirty != dirty
	d.dirty = dirty
	return changed
}

func (d *Dispatcher) emit(dirtyChanged, stateChanged bool) {
	if dirtyChanged {
		d.DirtyChanged.Emit(d.IsDirty())
	}
	if stateChanged {
		d.StateChanged.Emit(struct{}{})
	}
}
