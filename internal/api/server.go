package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/vk/flowgridgo/internal/command"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/graph"
	"github.com/vk/flowgridgo/internal/localsession"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/snapshotstore"
)

// Server serves one session.
type Server struct {
	app    *fiber.App
	sess   *localsession.Session
	store  snapshotstore.Store
	logger *slog.Logger
	ctx    context.Context
}

// New builds the routes. ctx carries the logger and bounds the work started
// by requests.
func New(ctx context.Context, sess *localsession.Session, store snapshotstore.Store) *Server {
	s := &Server{
		sess:   sess,
		store:  store,
		logger: ctxlog.FromContext(ctx).With("component", "api"),
		ctx:    ctx,
	}
	s.app = fiber.New(fiber.Config{
		AppName:      "flowgridgo",
		ErrorHandler: s.handleError,
	})
	s.routes()
	return s
}

// App returns the fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("API server starting.", "address", addr)
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops the server, waiting for in-flight requests up to a timeout.
func (s *Server) Shutdown() error {
	s.logger.Debug("Shutting down API server...")
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

func (s *Server) routes() {
	s.app.Get("/health", func(c fiber.Ctx) error {
		return c.SendString("OK")
	})

	api := s.app.Group("/api")
	api.Get("/state", s.getState)
	api.Get("/types", s.getTypes)
	api.Get("/commands", s.getCommandTypes)
	api.Post("/commands", s.postCommand)
	api.Post("/undo", s.postUndo)
	api.Post("/redo", s.postRedo)

	api.Post("/pause", s.postPause)
	api.Post("/stepping", s.postStepping)
	api.Post("/step", s.postStep)
	api.Post("/reset", s.postReset)

	api.Get("/nodes", s.getNodes)
	api.Get("/nodes/:id", s.getNode)
	api.Post("/nodes/:id/tick", s.postTick)
	api.Get("/connections", s.getConnections)
	api.Get("/graph", s.getGraph)

	api.Get("/snapshots", s.listSnapshots)
	api.Put("/snapshots/:name", s.putSnapshot)
	api.Get("/snapshots/:name", s.getSnapshot)
	api.Post("/snapshots/:name/load", s.loadSnapshot)
	api.Delete("/snapshots/:name", s.deleteSnapshot)
}

// handleError maps domain errors to status codes.
func (s *Server) handleError(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, graph.ErrNotFound), errors.Is(err, snapshotstore.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, command.ErrUnknownCommand), errors.Is(err, registry.ErrUnknownType),
		errors.Is(err, snapshotstore.ErrInvalidName):
		code = fiber.StatusBadRequest
	case errors.Is(err, command.ErrNothingToUndo), errors.Is(err, command.ErrNothingToRedo):
		code = fiber.StatusConflict
	case errors.Is(err, graph.ErrStructural):
		code = fiber.StatusUnprocessableEntity
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed.", "method", c.Method(), "path", c.Path(), "error", err)
	} else {
		s.logger.Debug("Request rejected.", "method", c.Method(), "path", c.Path(), "status", code, "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
