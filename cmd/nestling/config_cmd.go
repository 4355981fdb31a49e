// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nestling/nestling/internal/config"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			redacted := cfg.Redacted()
			out, err := yaml.Marshal(&redacted)
			if err != nil {
				return oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			//nolint:wrapcheck // stdout write
			return err
		},
	}

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := config.GenerateSchema()
			if err != nil {
				//nolint:wrapcheck // already coded
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			//nolint:wrapcheck // stdout write
			return err
		},
	}

	validate := &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a config file against the schema and value rules",
		Long: `Validate FILE, or the file named by --config or the XDG default
when FILE is omitted. Flags are not applied; DATABASE_URL still is.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return oops.Code("CONFIG_NOT_FOUND").Errorf("no config file given and none found in the XDG config directory")
			}
			if _, err := (config.Loader{Path: path}).Load(); err != nil {
				//nolint:wrapcheck // config errors carry their own codes
				return err
			}
			cmd.Printf("%s is valid\n", path)
			return nil
		},
	}

	cmd.AddCommand(show, schema, validate)
	return cmd
}
