// Package localsession wires a registry, a thread pool, a facade and a
// command dispatcher into one in-process editing and execution session.
package localsession

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/vk/flowgridgo/internal/command"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/graph"
	"github.com/vk/flowgridgo/internal/graphio"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/scheduler"
)

// Option configures a Session.
type Option func(*options)

type options struct {
	privateThreads     bool
	maxWorkers         int
	paused             bool
	suppressExceptions bool
}

// WithPrivateThreads gives every new node its own thread group.
func WithPrivateThreads(enabled bool) Option {
	return func(o *options) { o.privateThreads = enabled }
}

// WithMaxWorkers bounds the goroutines of the pool. Zero is unbounded.
func WithMaxWorkers(n int) Option {
	return func(o *options) { o.maxWorkers = n }
}

// WithPaused starts the session with dispatching paused.
func WithPaused(paused bool) Option {
	return func(o *options) { o.paused = paused }
}

// WithSuppressExceptions keeps thread groups running after a node panics.
// Enabled by default.
func WithSuppressExceptions(enabled bool) Option {
	return func(o *options) { o.suppressExceptions = enabled }
}

// Session is a running graph with its command history.
type Session struct {
	ID         uuid.UUID
	Registry   *registry.Registry
	Pool       *scheduler.ThreadPool
	Facade     *graph.Facade
	Dispatcher *command.Dispatcher

	logger *slog.Logger
}

// New starts a session on reg.
func New(ctx context.Context, reg *registry.Registry, opts ...Option) (*Session, error) {
	o := options{suppressExceptions: true}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New()
	ctx, logger := ctxlog.With(ctx, "session", id.String())

	pool, err := scheduler.NewThreadPool(ctx,
		scheduler.WithPrivateThreads(o.privateThreads),
		scheduler.WithMaxWorkers(o.maxWorkers),
		scheduler.WithSuppressExceptions(o.suppressExceptions),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start thread pool: %w", err)
	}
	f := graph.NewFacade(ctx, graph.New(ctx), pool)
	if o.paused {
		f.PauseRequest(true)
	}

	logger.Debug("Session started.", "private_threads", o.privateThreads, "max_workers", o.maxWorkers, "paused", o.paused)
	return &Session{
		ID:         id,
		Registry:   reg,
		Pool:       pool,
		Facade:     f,
		Dispatcher: command.NewDispatcher(ctx, &command.Env{Facade: f, Registry: reg}),
		logger:     logger,
	}, nil
}

// Snapshot captures the graph and marks the current history position as
// saved.
func (s *Session) Snapshot() *graphio.Snapshot {
	snap := graphio.Save(s.Facade)
	s.Dispatcher.ResetDirtyPoint()
	return snap
}

// Open replaces the graph with snap. History is dropped and the loaded
// state becomes the savepoint.
func (s *Session) Open(ctx context.Context, snap *graphio.Snapshot) *graphio.Report {
	s.Dispatcher.Reset()
	report := graphio.Load(ctx, s.Facade, s.Registry, snap)
	s.Dispatcher.ResetDirtyPoint()
	s.logger.Info("Graph loaded.", "nodes", report.Nodes, "connections", report.Connections, "skipped", len(report.Skipped))
	return report
}

// Paste adds snap next to the existing graph as one undoable edit.
func (s *Session) Paste(ctx context.Context, snap *graphio.Snapshot) *graphio.Report {
	report := graphio.Paste(ctx, s.Facade, s.Registry, snap)
	s.Dispatcher.MarkDirty()
	return report
}

// OpenFile reads a .hcl or .json graph file and opens it.
func (s *Session) OpenFile(ctx context.Context, path string) (*graphio.Report, error) {
	snap, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, snap), nil
}

// SaveFile writes the graph to path in the format implied by its
// extension.
func (s *Session) SaveFile(path string) error {
	var buf bytes.Buffer
	snap := graphio.Save(s.Facade)
	var err error
	if isJSON(path) {
		err = graphio.EncodeJSON(&buf, snap)
	} else {
		err = graphio.EncodeHCL(&buf, snap)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	s.Dispatcher.ResetDirtyPoint()
	return nil
}

// ReadFile decodes a graph file. Files ending in .json are JSON, anything
// else is HCL.
func ReadFile(path string) (*graphio.Snapshot, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if isJSON(path) {
		return graphio.DecodeJSON(bytes.NewReader(src))
	}
	return graphio.DecodeHCL(src, path)
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// Close stops every thread group.
func (s *Session) Close() {
	s.Facade.Stop()
	s.logger.Debug("Session closed.")
}
