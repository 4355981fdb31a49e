// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/nestling/nestling/internal/auth/memory"
	authpg "github.com/nestling/nestling/internal/auth/postgres"
	"github.com/nestling/nestling/internal/config"
	"github.com/nestling/nestling/internal/store"
)

// openStore opens the store selected by database.driver.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; accounts are lost on restart")
		mem := memory.NewStore()
		return &Store{
			Users:    mem.Users(),
			Sessions: mem.Sessions(),
			Ping:     func(context.Context) error { return nil },
			Close:    func() {},
		}, nil

	case config.DriverPostgres:
		pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{
			MaxConns:   cfg.Database.MaxConns,
			MaxRetries: cfg.Database.ConnectRetries,
			Logger:     logger,
		})
		if err != nil {
			return nil, oops.With("operation", "open store").Wrap(err)
		}
		logger.Info("connected to database", "max_conns", pool.Config().MaxConns)
		return &Store{
			Users:    authpg.NewUserRepository(pool),
			Sessions: authpg.NewSessionRepository(pool),
			Ping:     pool.Ping,
			Close:    pool.Close,
		}, nil

	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("field", "database.driver").
			Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// requirePostgres returns the database URL for commands that only make
// sense against PostgreSQL.
func requirePostgres(cfg *config.Config, command string) (string, error) {
	if cfg.Database.Driver != config.DriverPostgres {
		return "", oops.Code("CONFIG_INVALID").
			With("field", "database.driver").
			With("command", command).
			Errorf("%s requires the postgres driver", command)
	}
	return cfg.Database.URL, nil
}
