package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vk/flowgridgo/internal/api"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/localsession"
	"github.com/vk/flowgridgo/internal/remote"
	"github.com/vk/flowgridgo/internal/telemetry"
)

// Run starts a session on the configured graph and serves it until ctx ends
// or RunFor elapses.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.OTLPEndpoint != "" {
		clean, err := telemetry.Start(ctx, telemetry.WithEndpoint(a.config.OTLPEndpoint), telemetry.WithInsecure())
		if err != nil {
			return fmt.Errorf("failed to start telemetry: %w", err)
		}
		defer func() {
			if err := clean(); err != nil {
				a.logger.Error("Telemetry shutdown failed.", "error", err)
			}
		}()
		a.logger.Info("Telemetry exporting.", "endpoint", a.config.OTLPEndpoint)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sess, err := localsession.New(ctx, a.registry,
		localsession.WithMaxWorkers(a.config.Workers),
		localsession.WithPrivateThreads(a.config.PrivateThreads),
		localsession.WithPaused(a.config.Paused),
	)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := a.loadGraph(ctx, sess); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	if a.config.APIPort > 0 {
		srv := api.New(ctx, sess, store)
		go func() {
			serveErr <- srv.Listen(":" + strconv.Itoa(a.config.APIPort))
		}()
		defer func() {
			if err := srv.Shutdown(); err != nil {
				a.logger.Error("API server shutdown failed.", "error", err)
			}
		}()
	}

	if a.config.MonitorURL != "" {
		client, err := remote.Connect(ctx, sess, remote.Config{URL: a.config.MonitorURL})
		if err != nil {
			return fmt.Errorf("failed to connect monitor: %w", err)
		}
		defer client.Close()
	}

	a.logger.Info("🚀 Graph running.", "paused", sess.Facade.IsPaused())

	var deadline <-chan time.Time
	if a.config.RunFor > 0 {
		timer := time.NewTimer(a.config.RunFor)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown requested.")
	case <-deadline:
		a.logger.Info("Run duration elapsed.", "run_for", a.config.RunFor)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return errors.New("API server stopped unexpectedly")
	}

	a.logger.Info("🏁 Execution finished.")
	return nil
}
