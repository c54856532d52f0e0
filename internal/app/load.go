package app

import (
	"context"
	"fmt"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/filesnapshot"
	"github.com/vk/flowgridgo/internal/inmemorysnapshot"
	"github.com/vk/flowgridgo/internal/localsession"
	"github.com/vk/flowgridgo/internal/pgsnapshot"
	"github.com/vk/flowgridgo/internal/snapshotstore"
)

// loadGraph opens the configured graph file into sess, if any.
func (a *App) loadGraph(ctx context.Context, sess *localsession.Session) error {
	logger := ctxlog.FromContext(ctx)
	if a.config.GraphPath == "" {
		logger.Debug("No graph file configured, starting empty.")
		return nil
	}
	logger.Debug("Loading graph...", "graph_path", a.config.GraphPath)

	report, err := sess.OpenFile(ctx, a.config.GraphPath)
	if err != nil {
		return fmt.Errorf("failed to load graph: %w", err)
	}
	for _, s := range report.Skipped {
		logger.Warn("Graph entry skipped.", "entry", s)
	}
	logger.Info("Graph loaded successfully.",
		"nodes", len(sess.Facade.EnumerateAllNodes()),
		"connections", len(sess.Facade.EnumerateAllConnections()),
		"skipped", len(report.Skipped))
	return nil
}

// openStore selects the snapshot store. The returned close function is
// never nil.
func (a *App) openStore(ctx context.Context) (snapshotstore.Store, func(), error) {
	logger := ctxlog.FromContext(ctx)
	switch {
	case a.config.SnapshotDir != "":
		store, err := filesnapshot.New(a.config.SnapshotDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using directory snapshot store.", "dir", a.config.SnapshotDir)
		return store, func() {}, nil
	case a.config.PostgresDSN == "":
		logger.Debug("Using in-memory snapshot store.")
		return inmemorysnapshot.New(), func() {}, nil
	}
	store, err := pgsnapshot.Connect(ctx, a.config.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect snapshot store: %w", err)
	}
	logger.Info("Using PostgreSQL snapshot store.")
	return store, store.Close, nil
}
