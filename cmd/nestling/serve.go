// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nestling/nestling/internal/auth"
	"github.com/nestling/nestling/internal/config"
	"github.com/nestling/nestling/internal/httpapi"
	"github.com/nestling/nestling/internal/logging"
	"github.com/nestling/nestling/internal/observability"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the auth API server",
		Long: `Run the HTTP API serving signup, login, session and logout
endpoints, plus the metrics and health listener when metrics.addr is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps starts the API server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		//nolint:wrapcheck // already coded
		return err
	}
	logger := logging.SetDefault(logging.Options{
		Service: "nestling",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
	}, cmd.ErrOrStderr())

	logger.Info("starting nestling",
		"version", version,
		"addr", cfg.Server.Addr,
		"driver", cfg.Database.Driver,
	)

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg, deps, logger); err != nil {
			return err
		}
	}

	st, err := deps.StoreOpener(ctx, cfg, logger)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("driver", cfg.Database.Driver).Wrap(err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, st.Ping, logger)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	shutdown := func(servers ...interface{ Stop(context.Context) error }) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		for _, s := range servers {
			if s == nil {
				continue
			}
			if err := s.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping server", "error", err)
			}
		}
	}

	service, err := newAuthService(cfg, st, logger, metrics)
	if err != nil {
		shutdown(obsServer)
		return err
	}

	skip, err := httpapi.CompileSkipPatterns(cfg.Server.AccessLogSkip)
	if err != nil {
		shutdown(obsServer)
		//nolint:wrapcheck // already coded
		return err
	}

	apiServer := deps.APIServerFactory(cfg.Server.Addr, httpapi.NewAPI(service, httpapi.APIOptions{
		Logger:  logger,
		Metrics: metrics,
		Skip:    skip,
	}), httpapi.ServerOptions{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       logger,
	})
	apiErrCh, err := apiServer.Start()
	if err != nil {
		shutdown(obsServer)
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api", logger)

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		runSweeper(ctx, service, cfg.Auth.SweepInterval, metrics, logger)
	}()

	metricsAddr := ""
	if obsServer != nil {
		metricsAddr = obsServer.Addr()
	}
	cmd.Println("Nestling API listening on " + apiServer.Addr())
	logger.Info("nestling ready", "addr", apiServer.Addr(), "metrics_addr", metricsAddr)
	deps.OnReady(apiServer.Addr(), metricsAddr)

	<-ctx.Done()
	logger.Info("shutting down")

	// API first so in-flight requests finish while readiness still answers.
	shutdown(apiServer)
	<-sweepDone
	if obsServer != nil {
		shutdown(obsServer)
	}

	logger.Info("shutdown complete")
	return nil
}

// newAuthService builds the auth service from the config and store.
func newAuthService(cfg *config.Config, st *Store, logger *slog.Logger, metrics auth.MetricsRecorder) (*auth.Service, error) {
	params := auth.DefaultArgon2Params
	params.Time = cfg.Auth.Argon2.Time
	params.MemoryKiB = cfg.Auth.Argon2.MemoryKiB
	params.Threads = cfg.Auth.Argon2.Threads

	hasher, err := auth.NewArgon2idHasherWithParams(params)
	if err != nil {
		return nil, oops.With("operation", "create password hasher").Wrap(err)
	}

	service, err := auth.NewAuthService(st.Users, st.Sessions, hasher,
		auth.WithLogger(logger),
		auth.WithMetrics(metrics),
		auth.WithSessionTTL(cfg.Auth.SessionTTL),
	)
	if err != nil {
		return nil, oops.With("operation", "create auth service").Wrap(err)
	}
	return service, nil
}

// autoMigrate applies pending migrations before the store is opened.
func autoMigrate(cfg *config.Config, deps *ServeDeps, logger *slog.Logger) error {
	databaseURL, err := requirePostgres(cfg, "auto-migrate")
	if err != nil {
		return err
	}

	logger.Info("running database migrations")
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations complete")
	return nil
}

// sweeper is the part of auth.Service the background sweep drives.
type sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// runSweeper deletes expired sessions every interval until ctx is done.
// A zero interval disables sweeping.
func runSweeper(ctx context.Context, s sweeper, interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) {
	if interval <= 0 {
		logger.Info("session sweeper disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.SweepExpired(ctx)
			metrics.RecordSweep(deleted, err)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("session sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("swept expired sessions", "deleted", deleted)
			}
		}
	}
}

// monitorServerErrors watches for server errors and triggers shutdown via cancel.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
