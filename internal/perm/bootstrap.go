// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package perm

import (
	"context"

	"github.com/samber/oops"
)

// Positions for the protected roles created at server bootstrap. Admin
// sits well above user-created roles; Member sits at the bottom.
const (
	bootstrapAdminPosition  = 100
	bootstrapMemberPosition = 1
)

// BootstrapServer ensures the two protected roles exist for a server with
// their catalog defaults. Idempotent: existing roles are left untouched,
// including any permission edits admins made since creation.
func (s *Service) BootstrapServer(ctx context.Context, serverID string) error {
	if _, err := s.dir.Server(ctx, serverID); err != nil {
		return oops.Code(CodeServerNotFound).With("server_id", serverID).Wrap(err)
	}

	if err := s.ensureRole(ctx, serverID, RoleNameAdmin, bootstrapAdminPosition, s.catalog.Defaults("admin")); err != nil {
		return err
	}
	return s.ensureRole(ctx, serverID, RoleNameMember, bootstrapMemberPosition, s.catalog.Defaults("member"))
}

func (s *Service) ensureRole(ctx context.Context, serverID, name string, position int, permissions []string) error {
	_, err := s.roles.GetByName(ctx, serverID, name)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return oops.With("server_id", serverID).With("name", name).Wrap(err)
	}

	_, err = s.CreateRole(ctx, serverID, name, "", position, permissions)
	if err != nil {
		return oops.With("server_id", serverID).With("name", name).Wrap(err)
	}
	return nil
}
