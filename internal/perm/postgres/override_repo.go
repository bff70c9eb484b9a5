// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/syameer-io/glyph/internal/perm"
)

// OverrideRepository implements perm.OverrideStore using PostgreSQL.
type OverrideRepository struct {
	pool PoolIface
}

// NewOverrideRepository creates a new PostgreSQL override repository.
func NewOverrideRepository(pool PoolIface) *OverrideRepository {
	return &OverrideRepository{pool: pool}
}

const overrideColumns = `id, channel_id, role_id, permission, value, created_at, updated_at`

func scanOverrides(rows pgx.Rows) ([]*perm.Override, error) {
	defer rows.Close()
	var overrides []*perm.Override
	for rows.Next() {
		var o perm.Override
		var value string
		err := rows.Scan(&o.ID, &o.ChannelID, &o.RoleID, &o.Permission,
			&value, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, oops.With("operation", "scan override row").Wrap(err)
		}
		o.Value = perm.OverrideValue(value)
		overrides = append(overrides, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate override rows").Wrap(err)
	}
	return overrides, nil
}

// Upsert creates or replaces the override for its (channel, role,
// permission) triple. The role's server is resolved for the notify signal.
func (r *OverrideRepository) Upsert(ctx context.Context, o *perm.Override) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("OVERRIDE_UPSERT_FAILED").With("channel_id", o.ChannelID).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var serverID string
	err = tx.QueryRow(ctx, `SELECT server_id FROM roles WHERE id = $1`, o.RoleID).Scan(&serverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code(perm.CodeRoleNotFound).With("role_id", o.RoleID).Wrap(perm.ErrNotFound)
	}
	if err != nil {
		return oops.Code("OVERRIDE_UPSERT_FAILED").With("role_id", o.RoleID).Wrap(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO channel_overrides (id, channel_id, role_id, permission, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (channel_id, role_id, permission)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, o.ID, o.ChannelID, o.RoleID, o.Permission, string(o.Value), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return oops.Code("OVERRIDE_UPSERT_FAILED").
			With("channel_id", o.ChannelID).With("role_id", o.RoleID).
			With("permission", o.Permission).Wrap(err)
	}

	if err := notify(ctx, tx, serverID); err != nil {
		return oops.Code("OVERRIDE_UPSERT_FAILED").With("operation", "notify").Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("OVERRIDE_UPSERT_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

// Remove hard-deletes an override by its triple.
func (r *OverrideRepository) Remove(ctx context.Context, channelID, roleID, permission string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("OVERRIDE_DELETE_FAILED").With("channel_id", channelID).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var serverID string
	err = tx.QueryRow(ctx, `SELECT server_id FROM roles WHERE id = $1`, roleID).Scan(&serverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code(perm.CodeRoleNotFound).With("role_id", roleID).Wrap(perm.ErrNotFound)
	}
	if err != nil {
		return oops.Code("OVERRIDE_DELETE_FAILED").With("role_id", roleID).Wrap(err)
	}

	result, err := tx.Exec(ctx, `
		DELETE FROM channel_overrides
		WHERE channel_id = $1 AND role_id = $2 AND permission = $3
	`, channelID, roleID, permission)
	if err != nil {
		return oops.Code("OVERRIDE_DELETE_FAILED").
			With("channel_id", channelID).With("role_id", roleID).
			With("permission", permission).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(perm.CodeOverrideNotFound).
			With("channel_id", channelID).With("role_id", roleID).
			With("permission", permission).Wrap(perm.ErrNotFound)
	}

	if err := notify(ctx, tx, serverID); err != nil {
		return oops.Code("OVERRIDE_DELETE_FAILED").With("operation", "notify").Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("OVERRIDE_DELETE_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

// ForRoleChannel returns all overrides for a role on a channel.
func (r *OverrideRepository) ForRoleChannel(ctx context.Context, roleID, channelID string) ([]*perm.Override, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+overrideColumns+` FROM channel_overrides
		 WHERE role_id = $1 AND channel_id = $2 ORDER BY permission`, roleID, channelID)
	if err != nil {
		return nil, oops.Code("OVERRIDE_QUERY_FAILED").
			With("role_id", roleID).With("channel_id", channelID).Wrap(err)
	}
	return scanOverrides(rows)
}

// ForChannel returns all overrides on a channel across roles.
func (r *OverrideRepository) ForChannel(ctx context.Context, channelID string) ([]*perm.Override, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+overrideColumns+` FROM channel_overrides
		 WHERE channel_id = $1 ORDER BY role_id, permission`, channelID)
	if err != nil {
		return nil, oops.Code("OVERRIDE_QUERY_FAILED").With("channel_id", channelID).Wrap(err)
	}
	return scanOverrides(rows)
}
