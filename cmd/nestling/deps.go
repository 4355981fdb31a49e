// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nestling/nestling/internal/auth"
	"github.com/nestling/nestling/internal/config"
	"github.com/nestling/nestling/internal/httpapi"
	"github.com/nestling/nestling/internal/observability"
	"github.com/nestling/nestling/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the configured user and session store.
	// Default: openStore
	StoreOpener storeOpener

	// MigratorFactory creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory migratorFactory

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// APIServerFactory creates the HTTP API server.
	// Default: httpapi.NewServer
	APIServerFactory func(addr string, handler http.Handler, opts httpapi.ServerOptions) APIServer

	// OnReady is called once both servers are listening. Tests use it to
	// learn the bound addresses.
	OnReady func(apiAddr, metricsAddr string)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = openStore
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = newStoreMigrator
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, checker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, checker, logger)
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, handler http.Handler, opts httpapi.ServerOptions) APIServer {
			return httpapi.NewServer(addr, handler, opts)
		}
	}
	if out.OnReady == nil {
		out.OnReady = func(string, string) {}
	}
	return &out
}

// storeOpener opens the store selected by the config.
type storeOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error)

// Store bundles the repositories with the handle that owns them.
type Store struct {
	Users    auth.UserRepository
	Sessions auth.SessionRepository
	// Ping reports whether the backing database answers.
	Ping  func(ctx context.Context) error
	Close func()
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Status() (*store.Status, error)
	Force(version int) error
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// APIServer interface wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func newStoreMigrator(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		//nolint:wrapcheck // migrator errors carry their own codes
		return nil, err
	}
	return m, nil
}
