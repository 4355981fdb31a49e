// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Pool is the query surface repositories need. *pgxpool.Pool and
// pgxmock.PgxPoolIface both satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

var _ Pool = (*pgxpool.Pool)(nil)

// ConnectOptions tunes Connect. Zero values use the defaults.
type ConnectOptions struct {
	MaxConns    int32
	MaxRetries  uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	PingTimeout time.Duration
	Logger      *slog.Logger
}

// Connect defaults.
const (
	DefaultConnectRetries = 5
	DefaultBaseDelay      = 250 * time.Millisecond
	DefaultMaxDelay       = 5 * time.Second
	DefaultPingTimeout    = 5 * time.Second
)

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultConnectRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = DefaultPingTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Connect opens a pgx pool and waits until the database answers a ping.
// Transient failures are retried with capped exponential backoff;
// authentication and unknown-database errors fail immediately.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	opts = opts.withDefaults()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("STORE_INVALID_DSN").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.MaxRetries,
		retry.WithCappedDuration(opts.MaxDelay, retry.NewExponential(opts.BaseDelay)))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()

		pingErr := pool.Ping(pingCtx)
		if pingErr == nil {
			return nil
		}
		if !IsTransient(pingErr) {
			return pingErr
		}
		opts.Logger.WarnContext(ctx, "database not ready, retrying",
			"attempt", attempt, "error", pingErr)
		return retry.RetryableError(pingErr)
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}

// IsTransient reports whether a connection error may succeed on retry.
// Credential and catalog errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsInvalidAuthorizationSpecification(pgErr.Code),
			pgerrcode.IsInvalidCatalogName(pgErr.Code):
			return false
		}
	}
	return true
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
