// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nestling/nestling/internal/logging"
	"github.com/nestling/nestling/internal/observability"
)

// NewSessionsCmd creates the sessions command group.
func NewSessionsCmd() *cobra.Command {
	return newSessionsCmd(openStore)
}

func newSessionsCmd(opener storeOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain stored sessions",
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired and revoked sessions once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				//nolint:wrapcheck // already coded
				return err
			}
			logger := logging.Setup(logging.Options{
				Service: "nestling",
				Version: version,
				Format:  cfg.Log.Format,
				Level:   level,
			}, cmd.ErrOrStderr())

			st, err := opener(cmd.Context(), cfg, logger)
			if err != nil {
				return oops.Code("STORE_OPEN_FAILED").With("driver", cfg.Database.Driver).Wrap(err)
			}
			defer st.Close()

			service, err := newAuthService(cfg, st, logger, observability.NewMetrics(prometheus.NewRegistry()))
			if err != nil {
				return err
			}
			deleted, err := service.SweepExpired(cmd.Context())
			if err != nil {
				return oops.With("operation", "sweep sessions").Wrap(err)
			}
			cmd.Printf("Deleted %d expired session(s)\n", deleted)
			return nil
		},
	}

	cmd.AddCommand(sweep)
	return cmd
}
