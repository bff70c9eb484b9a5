// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package perm

import "context"

// RoleStore manages role persistence and user-role assignments.
type RoleStore interface {
	// Get retrieves a role by ID.
	Get(ctx context.Context, roleID string) (*Role, error)

	// GetByName retrieves a role by its display name within a server.
	GetByName(ctx context.Context, serverID, name string) (*Role, error)

	// Create persists a new role. Fails if the name is taken in the server.
	Create(ctx context.Context, role *Role) error

	// Update replaces a role's name, color, position, and permission set.
	Update(ctx context.Context, role *Role) error

	// Delete removes a role and its assignments. Callers must reject
	// protected roles before calling this method.
	Delete(ctx context.Context, roleID string) error

	// ListByServer returns all roles of a server, highest position first.
	ListByServer(ctx context.Context, serverID string) ([]*Role, error)

	// RolesForUser returns the roles explicitly assigned to a user in a
	// server. An empty result means the user is at most an implicit member.
	RolesForUser(ctx context.Context, userID, serverID string) ([]*Role, error)

	// Holders returns the IDs of every user explicitly holding the role.
	Holders(ctx context.Context, roleID string) ([]string, error)

	// CountHolders returns the number of users explicitly holding the role.
	CountHolders(ctx context.Context, roleID string) (int, error)

	// Assign grants the role to a user. Assigning an already-held role is
	// a no-op.
	Assign(ctx context.Context, userID, roleID, serverID string) error

	// Unassign revokes the role from a user.
	Unassign(ctx context.Context, userID, roleID, serverID string) error
}

// OverrideStore manages channel permission overrides, keyed by the unique
// (channel, role, permission) triple.
type OverrideStore interface {
	// Upsert creates or replaces an override.
	Upsert(ctx context.Context, o *Override) error

	// Remove hard-deletes an override, which is equivalent to inherit.
	Remove(ctx context.Context, channelID, roleID, permission string) error

	// ForRoleChannel returns all overrides for a role on a channel.
	ForRoleChannel(ctx context.Context, roleID, channelID string) ([]*Override, error)

	// ForChannel returns all overrides on a channel across roles.
	ForChannel(ctx context.Context, channelID string) ([]*Override, error)
}

// Directory exposes the slice of the identity/server store the engine
// consumes. It is owned by a collaborating service and read-only here.
type Directory interface {
	// Server returns the server's creator for the bypass check.
	Server(ctx context.Context, serverID string) (*Server, error)

	// Channels returns the IDs of every channel in a server, used to
	// enumerate channel-scoped cache keys during invalidation.
	Channels(ctx context.Context, serverID string) ([]string, error)

	// CountImplicitMembers returns the number of server members holding no
	// explicit role. Implicit members count toward membership display but
	// never toward the aggregated permission set.
	CountImplicitMembers(ctx context.Context, serverID string) (int, error)
}
