// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/nestling/nestling/internal/config"
	"github.com/nestling/nestling/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Nestling CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nestling",
		Short: "Nestling - accounts and sessions for the Nestling app",
		Long: `Nestling runs the account service behind the Nestling pregnancy and
parenting app: signup with a pregnant or parent profile, password login,
and server-held bearer sessions backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/nestling/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSessionsCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// configPath returns --config, or the XDG default when that file exists.
// A missing HOME means there is no default file.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	if path, exists, err := xdg.ConfigFile(); err == nil && exists {
		return path
	}
	return ""
}

// loadConfig builds the effective config for cmd from the file, the
// command's flags, and the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	//nolint:wrapcheck // config errors carry their own codes
	return config.Loader{Path: configPath(), Flags: cmd.Flags()}.Load()
}
