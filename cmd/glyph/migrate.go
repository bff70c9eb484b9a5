// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/syameer-io/glyph/internal/store"
)

// migrateConfig holds configuration for the migrate subcommands.
type migrateConfig struct {
	steps int
	force int
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cfg := &migrateConfig{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending schema migrations against the PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.steps, "steps", 0, "apply N migrations (negative rolls back)")
	cmd.Flags().IntVar(&cfg.force, "force", -1, "force the schema version without running migrations")

	cmd.AddCommand(newMigrateStatusCmd())

	return cmd
}

func runMigrate(cmd *cobra.Command, cfg *migrateConfig) error {
	forcing := cmd.Flags().Changed("force")
	if forcing && cfg.force < 0 {
		return oops.Code("INVALID_VERSION").Errorf("force version must be non-negative, got %d", cfg.force)
	}

	url, err := databaseURL()
	if err != nil {
		return err
	}

	migrator, err := store.NewMigrator(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			cmd.PrintErrln("warning: error closing migrator:", closeErr)
		}
	}()

	switch {
	case forcing:
		if err := migrator.Force(cfg.force); err != nil {
			return err
		}
		cmd.Printf("Schema version forced to %d\n", cfg.force)
	case cfg.steps != 0:
		if err := migrator.Steps(cfg.steps); err != nil {
			return err
		}
		cmd.Printf("Applied %d migration step(s)\n", cfg.steps)
	default:
		cmd.Println("Running migrations...")
		if err := migrator.Up(); err != nil {
			return err
		}
		cmd.Println("Migrations completed successfully")
	}
	return nil
}

// newMigrateStatusCmd reports the current schema version and pending work.
func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}

			migrator, err := store.NewMigrator(url)
			if err != nil {
				return err
			}
			defer migrator.Close() //nolint:errcheck // read-only command

			version, dirty, err := migrator.Version()
			if err != nil {
				return err
			}

			name := ""
			if version > 0 {
				name, _ = store.MigrationName(version)
			}
			cmd.Printf("Current version: %d", version)
			if name != "" {
				cmd.Printf(" (%s)", name)
			}
			if dirty {
				cmd.Print(" DIRTY")
			}
			cmd.Println()

			pending, err := migrator.PendingMigrations()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				cmd.Println("No pending migrations")
				return nil
			}
			cmd.Println("Pending:")
			for _, v := range pending {
				name, _ := store.MigrationName(v)
				cmd.Printf("  %06d %s\n", v, name)
			}
			return nil
		},
	}
}
