// Package remote mirrors a session to a socket.io monitor and accepts
// control requests from it.
//
// Outgoing events:
//
//	notification  {"source", "level", "message"}
//	state         {"dirty", "can_undo", "can_redo", "paused"}
//	structure     {"nodes", "connections"}
//	reply         {"request", "ok", "error"}
//
// Incoming events: undo, redo, pause (bool), step, reset, command (a command
// envelope object).
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vk/flowgridgo/internal/command"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/graph"
	"github.com/vk/flowgridgo/internal/localsession"
	"github.com/vk/flowgridgo/internal/observer"
)

// ErrUnknownRequest is returned for incoming events the monitor does not
// handle.
var ErrUnknownRequest = errors.New("remote: unknown request")

// Emitter sends one event. *socket.Socket satisfies it.
type Emitter interface {
	Emit(ev string, args ...any) error
}

type Notification struct {
	Source  string `json:"source"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type State struct {
	Dirty   bool `json:"dirty"`
	CanUndo bool `json:"can_undo"`
	CanRedo bool `json:"can_redo"`
	Paused  bool `json:"paused"`
}

type Structure struct {
	Nodes       int `json:"nodes"`
	Connections int `json:"connections"`
}

type Reply struct {
	Request string `json:"request"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// Monitor forwards session events to out and applies incoming requests.
type Monitor struct {
	ctx    context.Context
	sess   *localsession.Session
	out    Emitter
	logger *slog.Logger
	subs   observer.Bag
}

// NewMonitor subscribes to sess. Call Close to detach.
func NewMonitor(ctx context.Context, sess *localsession.Session, out Emitter) *Monitor {
	m := &Monitor{
		ctx:    ctx,
		sess:   sess,
		out:    out,
		logger: ctxlog.FromContext(ctx).With("component", "remote"),
	}
	g := sess.Facade.Graph()
	m.subs.Add(
		g.Notifications.Subscribe(m.forwardNotification),
		g.StructureChanged.Subscribe(func(struct{}) { m.forwardStructure() }),
		sess.Dispatcher.StateChanged.Subscribe(func(struct{}) { m.forwardState() }),
		sess.Dispatcher.DirtyChanged.Subscribe(func(bool) { m.forwardState() }),
	)
	return m
}

// Close stops forwarding.
func (m *Monitor) Close() {
	m.subs.Dispose()
}

// Sync sends the full current state, used after (re)connecting.
func (m *Monitor) Sync() {
	m.forwardState()
	m.forwardStructure()
}

func (m *Monitor) emit(ev string, payload any) {
	if err := m.out.Emit(ev, payload); err != nil {
		m.logger.Warn("Failed to emit event.", "event", ev, "error", err)
	}
}

func (m *Monitor) forwardNotification(n graph.Notification) {
	m.emit("notification", Notification{Source: n.Source.String(), Level: n.Level.String(), Message: n.Message})
}

func (m *Monitor) forwardState() {
	d := m.sess.Dispatcher
	m.emit("state", State{
		Dirty:   d.IsDirty(),
		CanUndo: d.CanUndo(),
		CanRedo: d.CanRedo(),
		Paused:  m.sess.Facade.IsPaused(),
	})
}

func (m *Monitor) forwardStructure() {
	g := m.sess.Facade.Graph()
	m.emit("structure", Structure{Nodes: len(g.Nodes()), Connections: len(g.Connections())})
}

// Handle applies one incoming request and emits its reply.
func (m *Monitor) Handle(event string, args ...any) error {
	err := m.apply(event, args)
	reply := Reply{Request: event, OK: err == nil}
	if err != nil {
		reply.Error = err.Error()
		m.logger.Debug("Remote request failed.", "request", event, "error", err)
	}
	m.emit("reply", reply)
	return err
}

func (m *Monitor) apply(event string, args []any) error {
	switch event {
	case "undo":
		return m.sess.Dispatcher.Undo(m.ctx)
	case "redo":
		return m.sess.Dispatcher.Redo(m.ctx)
	case "pause":
		paused := true
		if len(args) > 0 {
			b, ok := args[0].(bool)
			if !ok {
				return fmt.Errorf("pause expects a boolean, got %T", args[0])
			}
			paused = b
		}
		m.sess.Facade.PauseRequest(paused)
		m.forwardState()
		return nil
	case "step":
		if !m.sess.Pool.Step() {
			return errors.New("not in stepping mode")
		}
		return nil
	case "reset":
		m.sess.Facade.Reset()
		return nil
	case "command":
		if len(args) == 0 {
			return errors.New("command expects a payload")
		}
		data, err := payloadBytes(args[0])
		if err != nil {
			return err
		}
		cmd, err := command.Decode(data)
		if err != nil {
			return err
		}
		return m.sess.Dispatcher.Execute(m.ctx, cmd)
	}
	return fmt.Errorf("%w: %q", ErrUnknownRequest, event)
}

// payloadBytes accepts a JSON string or an already decoded object.
func payloadBytes(v any) ([]byte, error) {
	switch p := v.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("invalid command payload: %w", err)
		}
		return data, nil
	}
}
