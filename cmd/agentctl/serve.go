package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/agentlink/internal/agent"
	"github.com/rickgao/agentlink/internal/config"
	"github.com/rickgao/agentlink/internal/database"
	"github.com/rickgao/agentlink/internal/poller"
	"github.com/rickgao/agentlink/internal/store"
	"github.com/rickgao/agentlink/internal/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Hold the agent link open and expose health and status over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, os.Stdout)
			slog.SetDefault(logger)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting agentctl serve",
		"version", version.Version,
		"commit", version.Commit,
		"environment", cfg.Environment,
		"endpoint", cfg.Agent.Endpoint,
	)

	client := newAgentClient(cfg, false, logger)

	var writer *store.SnapshotWriter
	if cfg.Store.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Store.Database.Host,
			"port", cfg.Store.Database.Port,
			"database", cfg.Store.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Store.Database)
		if err != nil {
			return fmt.Errorf("connect store database: %w", err)
		}
		defer pool.Close()

		writer = store.NewSnapshotWriter(store.Config{
			Endpoint:      cfg.Agent.Endpoint,
			FlushInterval: cfg.Store.FlushInterval,
		}, pool, logger.With("component", "store"))
		if err := writer.EnsureSchema(ctx); err != nil {
			return err
		}
		writer.Attach(client.Events())
	}

	var statusPoller *poller.Poller
	if cfg.Poller.Enabled {
		statusPoller = poller.New(poller.Config{Interval: cfg.Poller.Interval}, client, logger.With("component", "poller"))
	}

	var healthWriter storeStats
	if writer != nil {
		healthWriter = writer
	}
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           createHealthHandler(client, healthWriter),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// A failed first dial is retried by the reconnect policy.
		if err := client.Connect(gctx); err != nil {
			logger.Warn("initial connect failed", "error", err)
		}
		var starts []func(context.Context) error
		if writer != nil {
			starts = append(starts, writer.Start)
		}
		if statusPoller != nil {
			starts = append(starts, statusPoller.Start)
		}

		return runUntilDone(gctx, starts, func() error {
			return shutdown(client, statusPoller, writer, healthServer, logger)
		})
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("agentctl serve stopped")
	return nil
}

// runUntilDone starts each component in order and blocks until ctx is done,
// then calls stop. A failed start also runs stop so earlier components and the
// health server are released.
func runUntilDone(ctx context.Context, starts []func(context.Context) error, stop func() error) error {
	for _, start := range starts {
		if err := start(ctx); err != nil {
			return errors.Join(err, stop())
		}
	}
	<-ctx.Done()
	return stop()
}

// shutdown stops components in reverse start order.
func shutdown(client *agent.Client, p *poller.Poller, w *store.SnapshotWriter, srv *http.Server, logger *slog.Logger) error {
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if p != nil {
		if err := p.Stop(ctx); err != nil {
			logger.Warn("poller stop", "error", err)
		}
	}
	client.Disconnect()
	if w != nil {
		if err := w.Stop(ctx); err != nil {
			logger.Warn("final snapshot flush failed", "error", err)
		}
	}
	return srv.Shutdown(ctx)
}
