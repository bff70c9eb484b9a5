// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package main

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/syameer-io/glyph/internal/perm"
	permpg "github.com/syameer-io/glyph/internal/perm/postgres"
	"github.com/syameer-io/glyph/internal/store"
)

// Default timeout for check command.
const defaultCheckTimeout = 10 * time.Second

// errDenied makes a denied check exit non-zero for scripting.
var errDenied = errors.New("permission denied")

// checkConfig holds configuration for the check command.
type checkConfig struct {
	channelID string
	catalog   string
	timeout   time.Duration
}

// NewCheckCmd creates the check subcommand.
func NewCheckCmd() *cobra.Command {
	cfg := &checkConfig{}

	cmd := &cobra.Command{
		Use:   "check <server-id> <user-id> [permission]",
		Short: "Evaluate a permission against the database",
		Long: `Resolves a user's effective permissions on a server directly from the
database. With a permission argument it prints ALLOWED or DENIED and exits
non-zero when denied; without one it lists every effective permission key.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.channelID, "channel", "", "evaluate in a channel context (applies overrides)")
	cmd.Flags().StringVar(&cfg.catalog, "catalog", "", "path to permission catalog YAML (defaults to built-in catalog)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultCheckTimeout, "timeout for database operations")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string, cfg *checkConfig) error {
	serverID, userID := args[0], args[1]

	url, err := databaseURL()
	if err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg.catalog)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	pool, err := store.NewPool(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	dir := permpg.NewDirectoryRepository(pool)
	roles := permpg.NewRoleRepository(pool)
	overrides := permpg.NewOverrideRepository(pool)
	engine := perm.NewEngine(dir, roles, overrides, perm.NewMemoryCache(), catalog)

	if len(args) == 3 {
		allowed, err := engine.Check(ctx, userID, args[2], serverID, cfg.channelID)
		if err != nil {
			return err
		}
		if allowed {
			cmd.Println("ALLOWED")
			return nil
		}
		cmd.Println("DENIED")
		// Non-zero exit without a usage dump.
		cmd.SilenceUsage = true
		return errDenied
	}

	keys, err := engine.GetEffectivePermissions(ctx, userID, serverID, cfg.channelID)
	if err != nil {
		return err
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		cmd.Println("(no effective permissions)")
		return nil
	}
	for _, key := range keys {
		cmd.Println(key)
	}
	return nil
}
