// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/syameer-io/glyph/internal/perm"
	permpg "github.com/syameer-io/glyph/internal/perm/postgres"
	"github.com/syameer-io/glyph/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// Well-known IDs for the demo server. Fixed ULIDs keep the command
// idempotent: repeated runs upsert the same rows instead of piling up
// duplicates.
const (
	seedServerID    = "01J5BQKS000000000000000000"
	seedCreatorID   = "01J5BQKS0000000000000000CR"
	seedGeneralID   = "01J5BQKS000000000000000GEN"
	seedAnnounceID  = "01J5BQKS000000000000000ANN"
	seedMemberOneID = "01J5BQKS0000000000000000M1"
	seedMemberTwoID = "01J5BQKS0000000000000000M2"
)

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo server with initial data",
		Long: `Creates a demo server with channels, members, and the protected
Server Admin and Member roles. This command is idempotent - it will not
create duplicates if run multiple times.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

func runSeed(cmd *cobra.Command, _ []string, cfg *seedConfig) error {
	url, err := databaseURL()
	if err != nil {
		return err
	}

	// Bound the run so a wedged database cannot hang the command.
	// cmd.Context() keeps SIGINT/SIGTERM working.
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	pool, err := store.NewPool(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	cmd.Println("Running migrations...")
	migrator, err := store.NewMigrator(url)
	if err != nil {
		return err
	}
	if migrateErr := migrator.Up(); migrateErr != nil {
		_ = migrator.Close()
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(migrateErr)
	}
	if err := migrator.Close(); err != nil {
		cmd.PrintErrln("warning: error closing migrator:", err)
	}

	// Validate the well-known IDs before touching the database.
	for _, id := range []string{seedServerID, seedCreatorID, seedGeneralID, seedAnnounceID, seedMemberOneID, seedMemberTwoID} {
		if _, parseErr := ulid.Parse(id); parseErr != nil {
			return oops.Code("SEED_FAILED").With("id", id).Wrap(parseErr)
		}
	}

	if err := seedDirectory(ctx, pool); err != nil {
		return err
	}
	cmd.Println("Seeded demo server: Glyph HQ")

	catalog := perm.DefaultCatalog()
	cache := perm.NewMemoryCache()
	roles := permpg.NewRoleRepository(pool)
	overrides := permpg.NewOverrideRepository(pool)
	dir := permpg.NewDirectoryRepository(pool)
	svc := perm.NewService(dir, roles, overrides, cache, catalog)

	if err := svc.BootstrapServer(ctx, seedServerID); err != nil {
		return oops.Code("SEED_FAILED").With("operation", "bootstrap protected roles").Wrap(err)
	}
	cmd.Println("Bootstrapped protected roles")

	member, err := roles.GetByName(ctx, seedServerID, perm.RoleNameMember)
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "look up Member role").Wrap(err)
	}
	if err := svc.AssignRole(ctx, seedMemberOneID, member.ID); err != nil {
		return oops.Code("SEED_FAILED").With("operation", "assign Member role").Wrap(err)
	}

	cmd.Println("Seeding complete!")
	slog.Info("Seeded demo server", "server_id", seedServerID, "channels", 2, "members", 2)
	return nil
}

// seedDirectory upserts the demo server, its channels, and its members.
// ON CONFLICT DO NOTHING makes every statement safe to replay.
func seedDirectory(ctx context.Context, pool permpg.PoolIface) error {
	statements := []struct {
		sql  string
		args []any
	}{
		{
			`INSERT INTO servers (id, name, creator_id) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			[]any{seedServerID, "Glyph HQ", seedCreatorID},
		},
		{
			`INSERT INTO channels (id, server_id, name) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			[]any{seedGeneralID, seedServerID, "general"},
		},
		{
			`INSERT INTO channels (id, server_id, name) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			[]any{seedAnnounceID, seedServerID, "announcements"},
		},
		{
			`INSERT INTO server_members (server_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			[]any{seedServerID, seedMemberOneID},
		},
		{
			`INSERT INTO server_members (server_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			[]any{seedServerID, seedMemberTwoID},
		},
	}

	for _, st := range statements {
		if _, err := pool.Exec(ctx, st.sql, st.args...); err != nil {
			return oops.Code("SEED_FAILED").With("sql", st.sql).Wrap(err)
		}
	}
	return nil
}
