// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package perm

import (
	"context"

	"github.com/samber/oops"
)

// Hierarchy rules: the server creator manages anyone and any role; all
// other comparisons use the strict ordering of highest role positions,
// so equal rank cannot manage each other.

// CanManageUser reports whether actor may manage target in the server.
// Always false for self-management and for targets who created the server.
func (e *Engine) CanManageUser(ctx context.Context, actorID, targetID, serverID string) (bool, error) {
	if actorID == targetID {
		return false, nil
	}

	srv, err := e.dir.Server(ctx, serverID)
	if err != nil {
		return false, oops.With("server_id", serverID).Wrap(err)
	}
	if actorID == srv.CreatorID {
		return true, nil
	}
	if targetID == srv.CreatorID {
		return false, nil
	}

	actorPos, err := e.highestPosition(ctx, actorID, serverID)
	if err != nil {
		return false, err
	}
	targetPos, err := e.highestPosition(ctx, targetID, serverID)
	if err != nil {
		return false, err
	}
	return actorPos > targetPos, nil
}

// CanManageRole reports whether actor out-ranks the role in its server.
func (e *Engine) CanManageRole(ctx context.Context, actorID, roleID string) (bool, error) {
	role, err := e.roles.Get(ctx, roleID)
	if err != nil {
		return false, oops.With("role_id", roleID).Wrap(err)
	}

	srv, err := e.dir.Server(ctx, role.ServerID)
	if err != nil {
		return false, oops.With("server_id", role.ServerID).Wrap(err)
	}
	if actorID == srv.CreatorID {
		return true, nil
	}

	actorPos, err := e.highestPosition(ctx, actorID, role.ServerID)
	if err != nil {
		return false, err
	}
	return actorPos > role.Position, nil
}

// highestPosition returns the max position among the user's explicit roles
// in the server, or 0 if none.
func (e *Engine) highestPosition(ctx context.Context, userID, serverID string) (int, error) {
	roles, err := e.roles.RolesForUser(ctx, userID, serverID)
	if err != nil {
		return 0, oops.With("user_id", userID).With("server_id", serverID).Wrap(err)
	}
	if len(roles) == 0 {
		return 0, nil
	}
	highest := roles[0].Position
	for _, role := range roles[1:] {
		if role.Position > highest {
			highest = role.Position
		}
	}
	return highest, nil
}
