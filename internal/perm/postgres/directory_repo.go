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

// DirectoryRepository implements perm.Directory using PostgreSQL.
type DirectoryRepository struct {
	pool PoolIface
}

// NewDirectoryRepository creates a new PostgreSQL directory repository.
func NewDirectoryRepository(pool PoolIface) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// Server returns a server's identity row.
func (r *DirectoryRepository) Server(ctx context.Context, serverID string) (*perm.Server, error) {
	var s perm.Server
	err := r.pool.QueryRow(ctx,
		`SELECT id, creator_id FROM servers WHERE id = $1`, serverID).
		Scan(&s.ID, &s.CreatorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(perm.CodeServerNotFound).With("server_id", serverID).Wrap(perm.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SERVER_QUERY_FAILED").With("server_id", serverID).Wrap(err)
	}
	return &s, nil
}

// Channels returns the IDs of every channel in a server.
func (r *DirectoryRepository) Channels(ctx context.Context, serverID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM channels WHERE server_id = $1 ORDER BY id`, serverID)
	if err != nil {
		return nil, oops.Code("CHANNEL_QUERY_FAILED").With("server_id", serverID).Wrap(err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, oops.Code("CHANNEL_QUERY_FAILED").With("server_id", serverID).Wrap(err)
		}
		channels = append(channels, id)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("CHANNEL_QUERY_FAILED").With("server_id", serverID).Wrap(err)
	}
	return channels, nil
}

// CountImplicitMembers returns the number of server members who hold no
// role at all. They count toward member totals but never toward
// permissions.
func (r *DirectoryRepository) CountImplicitMembers(ctx context.Context, serverID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM server_members m
		WHERE m.server_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM role_assignments a
			WHERE a.user_id = m.user_id AND a.server_id = m.server_id
		  )
	`, serverID).Scan(&count)
	if err != nil {
		return 0, oops.Code("MEMBER_QUERY_FAILED").With("server_id", serverID).Wrap(err)
	}
	return count, nil
}
