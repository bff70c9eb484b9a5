// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

// Package postgres implements the permission engine's stores using
// PostgreSQL. Mutations send pg_notify('permission_changed', server_id)
// in the same transaction so peer processes can drop their cached
// entries; same-process coherence comes from the service's synchronous
// invalidation.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/syameer-io/glyph/internal/perm"
)

// NotifyChannel is the postgres NOTIFY channel carrying the server ID of
// every role, assignment, or override mutation.
const NotifyChannel = "permission_changed"

// RoleRepository implements perm.RoleStore using PostgreSQL.
type RoleRepository struct {
	pool PoolIface
}

// NewRoleRepository creates a new PostgreSQL role repository.
func NewRoleRepository(pool PoolIface) *RoleRepository {
	return &RoleRepository{pool: pool}
}

const roleColumns = `id, server_id, name, color, position, permissions, created_at, updated_at`

func scanRole(row pgx.Row) (*perm.Role, error) {
	var r perm.Role
	err := row.Scan(&r.ID, &r.ServerID, &r.Name, &r.Color, &r.Position,
		&r.Permissions, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRoles(rows pgx.Rows) ([]*perm.Role, error) {
	defer rows.Close()
	var roles []*perm.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, oops.With("operation", "scan role row").Wrap(err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate role rows").Wrap(err)
	}
	return roles, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Get retrieves a role by ID.
func (r *RoleRepository) Get(ctx context.Context, roleID string) (*perm.Role, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(perm.CodeRoleNotFound).With("role_id", roleID).Wrap(perm.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ROLE_GET_FAILED").With("role_id", roleID).Wrap(err)
	}
	return role, nil
}

// GetByName retrieves a role by its display name within a server.
func (r *RoleRepository) GetByName(ctx context.Context, serverID, name string) (*perm.Role, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE server_id = $1 AND name = $2`, serverID, name)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(perm.CodeRoleNotFound).
			With("server_id", serverID).With("name", name).Wrap(perm.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ROLE_GET_FAILED").
			With("server_id", serverID).With("name", name).Wrap(err)
	}
	return role, nil
}

// Create persists a new role. Role names are unique per server.
func (r *RoleRepository) Create(ctx context.Context, role *perm.Role) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("ROLE_CREATE_FAILED").With("name", role.Name).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO roles (id, server_id, name, color, position, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, role.ID, role.ServerID, role.Name, role.Color, role.Position,
		role.Permissions, role.CreatedAt, role.UpdatedAt)
	if isUniqueViolation(err) {
		return oops.Code(perm.CodeRoleExists).
			With("server_id", role.ServerID).With("name", role.Name).
			Errorf("role name already taken")
	}
	if err != nil {
		return oops.Code("ROLE_CREATE_FAILED").With("name", role.Name).Wrap(err)
	}

	if err := notify(ctx, tx, role.ServerID); err != nil {
		return oops.Code("ROLE_CREATE_FAILED").With("name", role.Name).With("operation", "notify").Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ROLE_CREATE_FAILED").With("name", role.Name).With("operation", "commit").Wrap(err)
	}
	return nil
}

// Update replaces a role's name, color, position, and permission set.
func (r *RoleRepository) Update(ctx context.Context, role *perm.Role) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("ROLE_UPDATE_FAILED").With("role_id", role.ID).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.Exec(ctx, `
		UPDATE roles SET name = $2, color = $3, position = $4, permissions = $5, updated_at = now()
		WHERE id = $1
	`, role.ID, role.Name, role.Color, role.Position, role.Permissions)
	if err != nil {
		return oops.Code("ROLE_UPDATE_FAILED").With("role_id", role.ID).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(perm.CodeRoleNotFound).With("role_id", role.ID).Wrap(perm.ErrNotFound)
	}

	if err := notify(ctx, tx, role.ServerID); err != nil {
		return oops.Code("ROLE_UPDATE_FAILED").With("role_id", role.ID).With("operation", "notify").Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ROLE_UPDATE_FAILED").With("role_id", role.ID).With("operation", "commit").Wrap(err)
	}
	return nil
}

// Delete removes a role. Assignments and overrides cascade.
func (r *RoleRepository) Delete(ctx context.Context, roleID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("ROLE_DELETE_FAILED").With("role_id", roleID).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var serverID string
	err = tx.QueryRow(ctx, `SELECT server_id FROM roles WHERE id = $1`, roleID).Scan(&serverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code(perm.CodeRoleNotFound).With("role_id", roleID).Wrap(perm.ErrNotFound)
	}
	if err != nil {
		return oops.Code("ROLE_DELETE_FAILED").With("role_id", roleID).Wrap(err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return oops.Code("ROLE_DELETE_FAILED").With("role_id", roleID).Wrap(err)
	}

	if err := notify(ctx, tx, serverID); err != nil {
		return oops.Code("ROLE_DELETE_FAILED").With("role_id", roleID).With("operation", "notify").Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ROLE_DELETE_FAILED").With("role_id", roleID).With("operation", "commit").Wrap(err)
	}
	return nil
}

// ListByServer returns all roles of a server, highest position first.
func (r *RoleRepository) ListByServer(ctx context.Context, serverID string) ([]*perm.Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE server_id = $1 ORDER BY position DESC, name`, serverID)
	if err != nil {
		return nil, oops.Code("ROLE_QUERY_FAILED").With("server_id", serverID).Wrap(err)
	}
	return scanRoles(rows)
}

// RolesForUser returns the roles explicitly assigned to a user in a server.
func (r *RoleRepository) RolesForUser(ctx context.Context, userID, serverID string) ([]*perm.Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.server_id, r.name, r.color, r.position, r.permissions, r.created_at, r.updated_at
		FROM roles r
		JOIN role_assignments a ON a.role_id = r.id
		WHERE a.user_id = $1 AND a.server_id = $2
		ORDER BY r.position DESC, r.name
	`, userID, serverID)
	if err != nil {
		return nil, oops.Code("ROLE_QUERY_FAILED").
			With("user_id", userID).With("server_id", serverID).Wrap(err)
	}
	return scanRoles(rows)
}

// Holders returns the IDs of every user explicitly holding the role.
func (r *RoleRepository) Holders(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM role_assignments WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, oops.Code("ASSIGNMENT_QUERY_FAILED").With("role_id", roleID).Wrap(err)
	}
	defer rows.Close()

	var holders []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, oops.Code("ASSIGNMENT_QUERY_FAILED").With("role_id", roleID).Wrap(err)
		}
		holders = append(holders, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ASSIGNMENT_QUERY_FAILED").With("role_id", roleID).Wrap(err)
	}
	return holders, nil
}

// CountHolders returns the number of users explicitly holding the role.
func (r *RoleRepository) CountHolders(ctx context.Context, roleID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM role_assignments WHERE role_id = $1`, roleID).Scan(&count)
	if err != nil {
		return 0, oops.Code("ASSIGNMENT_QUERY_FAILED").With("role_id", roleID).Wrap(err)
	}
	return count, nil
}

// Assign grants the role to a user. Re-assigning is a no-op.
func (r *RoleRepository) Assign(ctx context.Context, userID, roleID, serverID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("ASSIGNMENT_FAILED").With("role_id", roleID).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO role_assignments (user_id, role_id, server_id, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, role_id, server_id) DO NOTHING
	`, userID, roleID, serverID)
	if err != nil {
		return oops.Code("ASSIGNMENT_FAILED").
			With("user_id", userID).With("role_id", roleID).Wrap(err)
	}

	if err := notify(ctx, tx, serverID); err != nil {
		return oops.Code("ASSIGNMENT_FAILED").With("role_id", roleID).With("operation", "notify").Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ASSIGNMENT_FAILED").With("role_id", roleID).With("operation", "commit").Wrap(err)
	}
	return nil
}

// Unassign revokes the role from a user.
func (r *RoleRepository) Unassign(ctx context.Context, userID, roleID, serverID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("ASSIGNMENT_FAILED").With("role_id", roleID).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		DELETE FROM role_assignments WHERE user_id = $1 AND role_id = $2 AND server_id = $3
	`, userID, roleID, serverID)
	if err != nil {
		return oops.Code("ASSIGNMENT_FAILED").
			With("user_id", userID).With("role_id", roleID).Wrap(err)
	}

	if err := notify(ctx, tx, serverID); err != nil {
		return oops.Code("ASSIGNMENT_FAILED").With("role_id", roleID).With("operation", "notify").Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ASSIGNMENT_FAILED").With("role_id", roleID).With("operation", "commit").Wrap(err)
	}
	return nil
}

// notify queues the cross-process invalidation signal inside the mutation
// transaction, so peers only ever see committed changes.
func notify(ctx context.Context, tx pgx.Tx, serverID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, serverID)
	return err
}
