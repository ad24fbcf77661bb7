package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wattview/internal/rollup"
	"wattview/internal/server"
)

const shutdownGrace = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var skipInitialRollup bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the analytics API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, skipInitialRollup)
		},
	}
	cmd.Flags().BoolVar(&skipInitialRollup, "skip-rollup", false,
		"do not rebuild summary tables on startup")
	return cmd
}

func runServe(
	ctx context.Context, opts *rootOptions, skipInitialRollup bool,
) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger, err := opts.newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	builder := rollup.New(database, logger,
		rollup.WithProgressEvery(cfg.Rollup.ProgressEvery))

	// One rebuild at a time, whether triggered by the watcher,
	// the API, or startup.
	var rebuildMu sync.Mutex
	rebuild := func(ctx context.Context) error {
		rebuildMu.Lock()
		defer rebuildMu.Unlock()
		return builder.Run(ctx)
	}

	if !skipInitialRollup {
		logger.Info("rebuilding summary tables")
		if err := rebuild(ctx); err != nil {
			// The query service falls back to raw readings, so
			// a failed rebuild degrades service instead of
			// blocking startup.
			logger.Error("initial rollup failed", zap.Error(err))
		}
	}

	if cfg.Rollup.Watch {
		watcher, err := rollup.NewWatcher(
			cfg.Database.Path, cfg.Rollup.Debounce.Std(), logger,
			func() {
				if err := rebuild(context.Background()); err != nil {
					logger.Error("watched rollup failed", zap.Error(err))
				}
			})
		if err != nil {
			logger.Warn("file watcher unavailable", zap.Error(err))
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	port := server.FindAvailablePort(cfg.Server.Host, cfg.Server.Port)
	if port != cfg.Server.Port {
		logger.Info("port in use, using fallback",
			zap.Int("requested", cfg.Server.Port),
			zap.Int("using", port))
		cfg.Server.Port = port
	}

	srv := server.New(cfg, database, logger,
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
		server.WithRebuild(rebuild),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
