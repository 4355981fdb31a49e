// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// migratorFactory opens a Migrator for a database URL.
type migratorFactory func(databaseURL string) (Migrator, error)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(newStoreMigrator)
}

func newMigrateCmd(factory migratorFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the users and sessions schema",
		Long: `Apply, roll back, or inspect the embedded PostgreSQL migrations.
Running migrate with no subcommand applies all pending migrations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, runMigrateUp)
		},
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, runMigrateUp)
		},
	}

	var confirmed bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all accounts)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return oops.Code("CONFIRMATION_REQUIRED").
					Errorf("migrate down drops all users and sessions; rerun with --yes")
			}
			return withMigrator(cmd, factory, runMigrateDown)
		},
	}
	down.Flags().BoolVar(&confirmed, "yes", false, "confirm dropping all data")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, runMigrateStatus)
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Long: `Record VERSION as the applied migration without running it.
Use only after repairing a migration that failed partway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, factory, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Force(v); err != nil {
					return oops.With("operation", "force version").Wrap(err)
				}
				cmd.Printf("Forced schema version to %d\n", v)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}

// withMigrator loads the config, opens a migrator, runs fn and closes it.
func withMigrator(cmd *cobra.Command, factory migratorFactory, fn func(*cobra.Command, Migrator) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	databaseURL, err := requirePostgres(cfg, "migrate")
	if err != nil {
		return err
	}

	m, err := factory(databaseURL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = oops.With("operation", "close migrator").Wrap(closeErr)
		}
	}()
	return fn(cmd, m)
}

func runMigrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.With("operation", "apply migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Rolling back migrations...")
	if err := m.Down(); err != nil {
		return oops.With("operation", "roll back migrations").Wrap(err)
	}
	cmd.Println("Rollback completed")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, m Migrator) error {
	st, err := m.Status()
	if err != nil {
		return oops.With("operation", "migration status").Wrap(err)
	}

	state := "clean"
	if st.Dirty {
		state = "DIRTY"
	}
	cmd.Printf("Schema version: %d (%s)\n", st.Version, state)
	for _, mig := range st.Applied {
		cmd.Printf("  [x] %s\n", mig.Name)
	}
	for _, mig := range st.Pending {
		cmd.Printf("  [ ] %s\n", mig.Name)
	}
	if len(st.Pending) == 0 {
		cmd.Println("No pending migrations")
	} else {
		cmd.Printf("%d pending migration(s)\n", len(st.Pending))
	}
	if st.Dirty {
		cmd.Println("The last migration failed partway; fix the schema and run 'nestling migrate force VERSION'")
	}
	return nil
}

// parseForceVersion parses a non-negative schema version.
func parseForceVersion(s string) (int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, oops.Code("INVALID_VERSION").Errorf("version is required")
	}
	v, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer: %q", s)
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative, got %d", v)
	}
	return v, nil
}
