// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package perm

import (
	"context"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Service owns role and override mutations. Every mutation validates its
// input, writes through the store, then synchronously invalidates the
// affected cache entries before returning, so a mutator always reads its
// own writes. Invalidation is conservative: over-invalidation is
// acceptable, under-invalidation is not.
type Service struct {
	dir       Directory
	roles     RoleStore
	overrides OverrideStore
	cache     Cache
	catalog   *Catalog
}

// NewService creates a Service with the given collaborators.
func NewService(dir Directory, roles RoleStore, overrides OverrideStore, cache Cache, catalog *Catalog) *Service {
	return &Service{
		dir:       dir,
		roles:     roles,
		overrides: overrides,
		cache:     cache,
		catalog:   catalog,
	}
}

// CreateRole creates a role with a validated, deduplicated permission set.
func (s *Service) CreateRole(ctx context.Context, serverID, name, color string, position int, permissions []string) (*Role, error) {
	perms, err := s.validatePermissions(permissions)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	role := &Role{
		ID:          ulid.Make().String(),
		ServerID:    serverID,
		Name:        name,
		Color:       color,
		Position:    position,
		Permissions: perms,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	// A fresh role has no holders yet; nothing to invalidate.
	return role, nil
}

// DeleteRole removes a role. The two protected roles are never deletable.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return err
	}
	if role.Protected() {
		return oops.Code(CodeProtectedRole).
			With("role_id", roleID).With("name", role.Name).
			Errorf("role %q is protected and cannot be deleted", role.Name)
	}

	// Holders must be enumerated before the delete cascades assignments.
	holders, err := s.roles.Holders(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.roles.Delete(ctx, roleID); err != nil {
		return err
	}
	return s.invalidateRole(ctx, role.ServerID, holders)
}

// SetPermissions atomically replaces the role's permission set. Every key
// must exist in the catalog; on any invalid key the role is left unchanged.
func (s *Service) SetPermissions(ctx context.Context, roleID string, permissions []string) error {
	perms, err := s.validatePermissions(permissions)
	if err != nil {
		return err
	}

	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return err
	}
	role.Permissions = perms
	role.UpdatedAt = time.Now()
	if err := s.roles.Update(ctx, role); err != nil {
		return err
	}

	holders, err := s.roles.Holders(ctx, roleID)
	if err != nil {
		return err
	}
	return s.invalidateRole(ctx, role.ServerID, holders)
}

// GrantPermission adds a single key to the role's set. Returns false when
// the role already held the key.
func (s *Service) GrantPermission(ctx context.Context, roleID, permission string) (bool, error) {
	if !s.catalog.Contains(permission) {
		return false, oops.Code(CodeInvalidPermissionKey).
			With("permission", permission).
			Errorf("permission %q is not in the catalog", permission)
	}

	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return false, err
	}
	if role.HasPermission(permission) {
		return false, nil
	}
	role.Permissions = append(role.Permissions, permission)
	sort.Strings(role.Permissions)
	role.UpdatedAt = time.Now()
	if err := s.roles.Update(ctx, role); err != nil {
		return false, err
	}

	holders, err := s.roles.Holders(ctx, roleID)
	if err != nil {
		return false, err
	}
	if err := s.invalidateRole(ctx, role.ServerID, holders); err != nil {
		return false, err
	}
	return true, nil
}

// RevokePermission removes a single key from the role's set. Returns false
// when the role did not hold the key.
func (s *Service) RevokePermission(ctx context.Context, roleID, permission string) (bool, error) {
	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return false, err
	}
	if !role.HasPermission(permission) {
		return false, nil
	}

	kept := role.Permissions[:0]
	for _, p := range role.Permissions {
		if p != permission {
			kept = append(kept, p)
		}
	}
	role.Permissions = kept
	role.UpdatedAt = time.Now()
	if err := s.roles.Update(ctx, role); err != nil {
		return false, err
	}

	holders, err := s.roles.Holders(ctx, roleID)
	if err != nil {
		return false, err
	}
	if err := s.invalidateRole(ctx, role.ServerID, holders); err != nil {
		return false, err
	}
	return true, nil
}

// SetRolePosition changes the role's hierarchy position. Position feeds
// channel computations through management checks only, but role updates
// invalidate conservatively all the same.
func (s *Service) SetRolePosition(ctx context.Context, roleID string, position int) error {
	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return err
	}
	role.Position = position
	role.UpdatedAt = time.Now()
	if err := s.roles.Update(ctx, role); err != nil {
		return err
	}

	holders, err := s.roles.Holders(ctx, roleID)
	if err != nil {
		return err
	}
	return s.invalidateRole(ctx, role.ServerID, holders)
}

// AssignRole grants the role to a user and invalidates that user's entries.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.roles.Assign(ctx, userID, roleID, role.ServerID); err != nil {
		return err
	}
	return s.invalidateUser(ctx, userID, role.ServerID, triggerAssignment)
}

// UnassignRole revokes the role from a user and invalidates that user's entries.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID string) error {
	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.roles.Unassign(ctx, userID, roleID, role.ServerID); err != nil {
		return err
	}
	return s.invalidateUser(ctx, userID, role.ServerID, triggerAssignment)
}

// SetOverride upserts a channel override for the (channel, role,
// permission) triple and invalidates holders' entries for that channel.
func (s *Service) SetOverride(ctx context.Context, channelID, roleID, permission string, value OverrideValue) (*Override, error) {
	if !value.Valid() {
		return nil, oops.Code(CodeInvalidOverride).
			With("value", string(value)).
			Errorf("override value must be allow, deny, or inherit")
	}
	if !s.catalog.Contains(permission) {
		return nil, oops.Code(CodeInvalidPermissionKey).
			With("permission", permission).
			Errorf("permission %q is not in the catalog", permission)
	}

	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	o := &Override{
		ID:         ulid.Make().String(),
		ChannelID:  channelID,
		RoleID:     roleID,
		Permission: permission,
		Value:      value,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.overrides.Upsert(ctx, o); err != nil {
		return nil, err
	}
	if err := s.invalidateOverride(ctx, role.ServerID, roleID, channelID); err != nil {
		return nil, err
	}
	return o, nil
}

// RemoveOverride hard-deletes an override, equivalent to setting inherit.
// Returns false when no override existed for the triple.
func (s *Service) RemoveOverride(ctx context.Context, channelID, roleID, permission string) (bool, error) {
	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return false, err
	}

	if err := s.overrides.Remove(ctx, channelID, roleID, permission); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := s.invalidateOverride(ctx, role.ServerID, roleID, channelID); err != nil {
		return false, err
	}
	return true, nil
}

// CountEffectiveMembers returns the number of users counting as members of
// the role for display. The protected Member role additionally counts
// implicit members (server members holding no explicit role); permission
// resolution never does.
func (s *Service) CountEffectiveMembers(ctx context.Context, roleID string) (int, error) {
	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return 0, err
	}

	explicit, err := s.roles.CountHolders(ctx, roleID)
	if err != nil {
		return 0, err
	}
	if role.Name != RoleNameMember {
		return explicit, nil
	}

	implicit, err := s.dir.CountImplicitMembers(ctx, role.ServerID)
	if err != nil {
		return 0, err
	}
	return explicit + implicit, nil
}

// InvalidateUserCache drops a user's cached entries. With serverID empty
// the drop spans every server the user has entries in, so callers that
// cannot scope the change still never leave stale grants behind.
func (s *Service) InvalidateUserCache(ctx context.Context, userID, serverID string) error {
	if serverID == "" {
		recordInvalidation(triggerManual)
		if err := s.cache.DeleteMatching(ctx, UserKeyMatcher(userID)); err != nil {
			return oops.Code("CACHE_INVALIDATE_FAILED").With("user_id", userID).Wrap(err)
		}
		return nil
	}
	return s.invalidateUser(ctx, userID, serverID, triggerManual)
}

// InvalidateServerCache drops every cached entry for a server. Used by
// collaborators that mutate role assignments directly.
func (s *Service) InvalidateServerCache(ctx context.Context, serverID string) error {
	recordInvalidation(triggerManual)
	if err := s.cache.DeletePrefix(ctx, ServerPrefix(serverID)); err != nil {
		return oops.Code("CACHE_INVALIDATE_FAILED").With("server_id", serverID).Wrap(err)
	}
	return nil
}

// validatePermissions rejects keys absent from the catalog and returns a
// sorted, deduplicated copy.
func (s *Service) validatePermissions(permissions []string) ([]string, error) {
	seen := make(map[string]struct{}, len(permissions))
	perms := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if !s.catalog.Contains(p) {
			return nil, oops.Code(CodeInvalidPermissionKey).
				With("permission", p).
				Errorf("permission %q is not in the catalog", p)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms, nil
}

// invalidateRole drops every holder's server-wide entry and every
// channel-scoped entry in the server. Conservative on purpose: a change to
// a role's permissions affects every channel computation that falls back
// to the base set.
func (s *Service) invalidateRole(ctx context.Context, serverID string, holders []string) error {
	if len(holders) == 0 {
		return nil
	}
	channels, err := s.dir.Channels(ctx, serverID)
	if err != nil {
		return oops.With("server_id", serverID).Wrap(err)
	}

	keys := make([]string, 0, len(holders)*(len(channels)+1))
	for _, userID := range holders {
		keys = append(keys, ServerKey(serverID, userID))
		for _, channelID := range channels {
			keys = append(keys, ChannelKey(serverID, userID, channelID))
		}
	}
	recordInvalidation(triggerRole)
	if err := s.cache.Delete(ctx, keys...); err != nil {
		return oops.Code("CACHE_INVALIDATE_FAILED").With("server_id", serverID).Wrap(err)
	}
	return nil
}

// invalidateOverride drops holders' server-wide entries (defensive) and
// their entries for the affected channel.
func (s *Service) invalidateOverride(ctx context.Context, serverID, roleID, channelID string) error {
	holders, err := s.roles.Holders(ctx, roleID)
	if err != nil {
		return err
	}
	if len(holders) == 0 {
		return nil
	}

	keys := make([]string, 0, len(holders)*2)
	for _, userID := range holders {
		keys = append(keys, ServerKey(serverID, userID))
		keys = append(keys, ChannelKey(serverID, userID, channelID))
	}
	recordInvalidation(triggerOverride)
	if err := s.cache.Delete(ctx, keys...); err != nil {
		return oops.Code("CACHE_INVALIDATE_FAILED").With("server_id", serverID).Wrap(err)
	}
	return nil
}

// invalidateUser drops a user's server-wide entry and every channel-scoped
// entry they have in the server.
func (s *Service) invalidateUser(ctx context.Context, userID, serverID, trigger string) error {
	channels, err := s.dir.Channels(ctx, serverID)
	if err != nil {
		return oops.With("server_id", serverID).Wrap(err)
	}

	keys := make([]string, 0, len(channels)+1)
	keys = append(keys, ServerKey(serverID, userID))
	for _, channelID := range channels {
		keys = append(keys, ChannelKey(serverID, userID, channelID))
	}
	recordInvalidation(trigger)
	if err := s.cache.Delete(ctx, keys...); err != nil {
		return oops.Code("CACHE_INVALIDATE_FAILED").
			With("user_id", userID).With("server_id", serverID).Wrap(err)
	}
	return nil
}
