package api

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/vk/flowgridgo/internal/command"
	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/graphio"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/snapshotstore"
	"github.com/vk/flowgridgo/internal/worker"
)

// State is the dispatcher and run-control status.
type State struct {
	Paused   bool     `json:"paused"`
	Stepping bool     `json:"stepping"`
	Dirty    bool     `json:"dirty"`
	CanUndo  bool     `json:"can_undo"`
	CanRedo  bool     `json:"can_redo"`
	Done     []string `json:"done"`
	Undone   []string `json:"undone"`
}

// NodeView is the read model of one node.
type NodeView struct {
	UUID      nodeid.UUID     `json:"uuid"`
	Type      string          `json:"type"`
	Label     string          `json:"label"`
	State     string          `json:"state"`
	Enabled   bool            `json:"enabled"`
	Pos       connector.Point `json:"pos"`
	ThreadID  int             `json:"thread_id"`
	Thread    string          `json:"thread,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorText string          `json:"error_message,omitempty"`
	Params    map[string]any  `json:"params,omitempty"`
}

func (s *Server) state() State {
	d := s.sess.Dispatcher
	done, undone := d.History()
	return State{
		Paused:   s.sess.Facade.IsPaused(),
		Stepping: s.sess.Pool.IsStepping(),
		Dirty:    d.IsDirty(),
		CanUndo:  d.CanUndo(),
		CanRedo:  d.CanRedo(),
		Done:     done,
		Undone:   undone,
	}
}

func (s *Server) getState(c fiber.Ctx) error {
	return c.JSON(s.state())
}

func (s *Server) getTypes(c fiber.Ctx) error {
	return c.JSON(s.sess.Registry.Types())
}

func (s *Server) getCommandTypes(c fiber.Ctx) error {
	return c.JSON(command.Types())
}

func (s *Server) postCommand(c fiber.Ctx) error {
	cmd, err := command.Decode(c.Body())
	if err != nil {
		if errors.Is(err, command.ErrUnknownCommand) {
			return err
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.sess.Dispatcher.Execute(s.ctx, cmd); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(s.state())
}

func (s *Server) postUndo(c fiber.Ctx) error {
	if err := s.sess.Dispatcher.Undo(s.ctx); err != nil {
		return err
	}
	return c.JSON(s.state())
}

func (s *Server) postRedo(c fiber.Ctx) error {
	if err := s.sess.Dispatcher.Redo(s.ctx); err != nil {
		return err
	}
	return c.JSON(s.state())
}

type toggle struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) postPause(c fiber.Ctx) error {
	var req toggle
	if err := c.Bind().JSON(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	s.sess.Facade.PauseRequest(req.Enabled)
	return c.JSON(s.state())
}

func (s *Server) postStepping(c fiber.Ctx) error {
	var req toggle
	if err := c.Bind().JSON(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	s.sess.Pool.SetSteppingMode(req.Enabled)
	return c.JSON(s.state())
}

func (s *Server) postStep(c fiber.Ctx) error {
	if !s.sess.Pool.Step() {
		return fiber.NewError(fiber.StatusConflict, "not in stepping mode")
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) postReset(c fiber.Ctx) error {
	s.sess.Facade.Reset()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) nodeID(c fiber.Ctx) (nodeid.UUID, error) {
	id, err := nodeid.Parse(c.Params("id"))
	if err != nil {
		return nodeid.Empty, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return id, nil
}

func (s *Server) view(w *worker.NodeWorker) NodeView {
	st := w.SaveState()
	v := NodeView{
		UUID:     w.UUID(),
		Type:     w.TypeName(),
		Label:    st.Label,
		State:    w.State().String(),
		Enabled:  st.Enabled,
		Pos:      w.Pos(),
		ThreadID: st.ThreadID,
		Thread:   st.ThreadName,
	}
	if level, msg := w.Error(); level != worker.ErrorNone {
		v.Error, v.ErrorText = level.String(), msg
	}
	if len(st.Params) > 0 {
		v.Params = make(map[string]any, len(st.Params))
		for name, p := range st.Params {
			v.Params[name] = jsonValue(p)
		}
	}
	return v
}

func (s *Server) getNodes(c fiber.Ctx) error {
	nodes := s.sess.Facade.Graph().Nodes()
	views := make([]NodeView, 0, len(nodes))
	for _, w := range nodes {
		views = append(views, s.view(w))
	}
	return c.JSON(views)
}

func (s *Server) getNode(c fiber.Ctx) error {
	id, err := s.nodeID(c)
	if err != nil {
		return err
	}
	w, err := s.sess.Facade.FindNode(id)
	if err != nil {
		return err
	}
	return c.JSON(s.view(w))
}

func (s *Server) postTick(c fiber.Ctx) error {
	id, err := s.nodeID(c)
	if err != nil {
		return err
	}
	if err := s.sess.Facade.Tick(id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) getConnections(c fiber.Ctx) error {
	return c.JSON(s.sess.Facade.EnumerateAllConnections())
}

// getGraph exports the current graph as JSON, or as HCL with ?format=hcl.
func (s *Server) getGraph(c fiber.Ctx) error {
	snap := graphio.Save(s.sess.Facade)
	var buf bytes.Buffer
	switch format := c.Query("format", "json"); format {
	case "json":
		if err := graphio.EncodeJSON(&buf, snap); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	case "hcl":
		if err := graphio.EncodeHCL(&buf, snap); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	default:
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
	}
	return c.Send(buf.Bytes())
}

func (s *Server) listSnapshots(c fiber.Ctx) error {
	infos, err := s.store.List(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(infos)
}

func (s *Server) putSnapshot(c fiber.Ctx) error {
	info, err := s.store.Put(c.Context(), c.Params("name"), s.sess.Snapshot())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(info)
}

func (s *Server) getSnapshot(c fiber.Ctx) error {
	rec, err := s.store.Get(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

// LoadResult reports a snapshot load.
type LoadResult struct {
	Snapshot    snapshotstore.Info `json:"snapshot"`
	Nodes       int                `json:"nodes"`
	Connections int                `json:"connections"`
	Skipped     []string           `json:"skipped"`
}

func (s *Server) loadSnapshot(c fiber.Ctx) error {
	rec, err := s.store.Get(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}
	report := s.sess.Open(s.ctx, rec.Snapshot)
	return c.JSON(LoadResult{
		Snapshot:    rec.Info,
		Nodes:       report.Nodes,
		Connections: report.Connections,
		Skipped:     report.Skipped,
	})
}

func (s *Server) deleteSnapshot(c fiber.Ctx) error {
	if err := s.store.Delete(c.Context(), c.Params("name")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
