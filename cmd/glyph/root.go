// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Glyph CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glyph",
		Short: "Glyph - permission and role authority for gaming communities",
		Long: `Glyph is the permission service for multi-tenant gaming communities:
per-server roles, channel-scoped overrides, and fast cached permission
checks served over HTTP.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/glyph/glyph.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewCheckCmd())

	return cmd
}
