// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package perm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syameer-io/glyph/internal/perm"
)

func TestService_CreateRole_RejectsUnknownKey(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator")

	_, err := f.svc.CreateRole(context.Background(), "srv1", "Bad", "", 1, []string{"launch_missiles"})
	require.Error(t, err)
	assert.True(t, perm.IsInvalidPermissionKey(err))
}

func TestService_CreateRole_DeduplicatesPermissions(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator")

	role, err := f.svc.CreateRole(context.Background(), "srv1", "Chatter", "", 1,
		[]string{"send_message", "send_message", "view_channels"})
	require.NoError(t, err)
	assert.Equal(t, []string{"send_message", "view_channels"}, role.Permissions)
}

func TestService_DeleteRole_ProtectedNamesAlwaysFail(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator")
	require.NoError(t, f.svc.BootstrapServer(context.Background(), "srv1"))

	ctx := context.Background()
	for _, name := range []string{perm.RoleNameAdmin, perm.RoleNameMember} {
		role, err := f.roles.GetByName(ctx, "srv1", name)
		require.NoError(t, err)

		err = f.svc.DeleteRole(ctx, role.ID)
		require.Error(t, err)
		assert.True(t, perm.IsProtectedRole(err), "deleting %q must be rejected", name)

		_, err = f.roles.Get(ctx, role.ID)
		assert.NoError(t, err, "protected role must survive the attempt")
	}
}

func TestService_DeleteRole_InvalidatesHolders(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator", "chan1")
	role := f.mustRole(t, "srv1", "Moderator", 10, []string{"kick_member"}, "user1")

	ctx := context.Background()
	ok, err := f.engine.Check(ctx, "user1", "kick_member", "srv1", "")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.svc.DeleteRole(ctx, role.ID))

	ok, err = f.engine.Check(ctx, "user1", "kick_member", "srv1", "")
	require.NoError(t, err)
	assert.False(t, ok, "deleted role must stop contributing immediately")
}

func TestService_SetPermissions_CoherentImmediately(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator", "chan1")
	role := f.mustRole(t, "srv1", "Moderator", 10, []string{"kick_member"}, "user1", "user2")

	ctx := context.Background()

	// Warm both users' entries, server-wide and channel-scoped.
	for _, user := range []string{"user1", "user2"} {
		_, err := f.engine.GetEffectivePermissions(ctx, user, "srv1", "")
		require.NoError(t, err)
		_, err = f.engine.GetEffectivePermissions(ctx, user, "srv1", "chan1")
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.SetPermissions(ctx, role.ID, []string{"ban_member"}))

	for _, user := range []string{"user1", "user2"} {
		ok, err := f.engine.Check(ctx, user, "kick_member", "srv1", "")
		require.NoError(t, err)
		assert.False(t, ok, "%s must lose the old permission immediately", user)

		ok, err = f.engine.Check(ctx, user, "ban_member", "srv1", "chan1")
		require.NoError(t, err)
		assert.True(t, ok, "%s must gain the new permission on channels too", user)
	}
}

func TestService_SetPermissions_InvalidKeyLeavesRoleUnchanged(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator")
	role := f.mustRole(t, "srv1", "Moderator", 10, []string{"kick_member"}, "user1")

	ctx := context.Background()
	err := f.svc.SetPermissions(ctx, role.ID, []string{"kick_member", "launch_missiles"})
	require.Error(t, err)
	assert.True(t, perm.IsInvalidPermissionKey(err))

	stored, err := f.roles.Get(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"kick_member"}, stored.Permissions)
}

func TestService_GrantRevokePermission(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator")
	role := f.mustRole(t, "srv1", "Moderator", 10, []string{"kick_member"}, "user1")

	ctx := context.Background()

	changed, err := f.svc.GrantPermission(ctx, role.ID, "ban_member")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.svc.GrantPermission(ctx, role.ID, "ban_member")
	require.NoError(t, err)
	assert.False(t, changed, "granting a held key is a no-op")

	_, err = f.svc.GrantPermission(ctx, role.ID, "launch_missiles")
	require.Error(t, err)
	assert.True(t, perm.IsInvalidPermissionKey(err))

	changed, err = f.svc.RevokePermission(ctx, role.ID, "ban_member")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.svc.RevokePermission(ctx, role.ID, "ban_member")
	require.NoError(t, err)
	assert.False(t, changed, "revoking an absent key is a no-op")

	ok, err := f.engine.Check(ctx, "user1", "ban_member", "srv1", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_SetOverride_RejectsInvalidValue(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator", "chan1")
	role := f.mustRole(t, "srv1", "Moderator", 10, []string{"kick_member"})

	_, err := f.svc.SetOverride(context.Background(), "chan1", role.ID, "kick_member", "maybe")
	require.Error(t, err)
	oopsErr := err.Error()
	assert.Contains(t, oopsErr, "allow, deny, or inherit")
}

func TestService_SetOverride_UpsertsByTriple(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator", "chan1")
	role := f.mustRole(t, "srv1", "Moderator", 10, []string{"kick_member"}, "user1")

	ctx := context.Background()
	_, err := f.svc.SetOverride(ctx, "chan1", role.ID, "kick_member", perm.OverrideDeny)
	require.NoError(t, err)

	ok, err := f.engine.Check(ctx, "user1", "kick_member", "srv1", "chan1")
	require.NoError(t, err)
	require.False(t, ok)

	// Same triple flips to allow; no duplicate row semantics.
	_, err = f.svc.SetOverride(ctx, "chan1", role.ID, "kick_member", perm.OverrideAllow)
	require.NoError(t, err)

	ovs, err := f.overrides.ForRoleChannel(ctx, role.ID, "chan1")
	require.NoError(t, err)
	require.Len(t, ovs, 1)
	assert.Equal(t, perm.OverrideAllow, ovs[0].Value)

	ok, err = f.engine.Check(ctx, "user1", "kick_member", "srv1", "chan1")
	require.NoError(t, err)
	assert.True(t, ok, "upsert must take effect immediately")
}

func TestService_RemoveOverride(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator", "chan1")
	role := f.mustRole(t, "srv1", "Moderator", 10, []string{"kick_member"}, "user1")

	ctx := context.Background()
	_, err := f.svc.SetOverride(ctx, "chan1", role.ID, "kick_member", perm.OverrideDeny)
	require.NoError(t, err)

	removed, err := f.svc.RemoveOverride(ctx, "chan1", role.ID, "kick_member")
	require.NoError(t, err)
	assert.True(t, removed)

	// Removal behaves like inherit: the base permission is back.
	ok, err := f.engine.Check(ctx, "user1", "kick_member", "srv1", "chan1")
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err = f.svc.RemoveOverride(ctx, "chan1", role.ID, "kick_member")
	require.NoError(t, err)
	assert.False(t, removed, "removing an absent override reports false")
}

func TestService_AssignUnassignRole_Invalidates(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator", "chan1")
	role := f.mustRole(t, "srv1", "Moderator", 10, []string{"kick_member"})

	ctx := context.Background()

	// Warm the empty set for a roleless user.
	ok, err := f.engine.Check(ctx, "user1", "kick_member", "srv1", "")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, f.svc.AssignRole(ctx, "user1", role.ID))
	ok, err = f.engine.Check(ctx, "user1", "kick_member", "srv1", "")
	require.NoError(t, err)
	assert.True(t, ok, "assignment must be visible immediately")

	require.NoError(t, f.svc.UnassignRole(ctx, "user1", role.ID))
	ok, err = f.engine.Check(ctx, "user1", "kick_member", "srv1", "")
	require.NoError(t, err)
	assert.False(t, ok, "revocation must be visible immediately")
}

func TestService_CountEffectiveMembers(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator")
	f.dir.NoRole["srv1"] = 7
	require.NoError(t, f.svc.BootstrapServer(context.Background(), "srv1"))

	ctx := context.Background()
	member, err := f.roles.GetByName(ctx, "srv1", perm.RoleNameMember)
	require.NoError(t, err)
	require.NoError(t, f.svc.AssignRole(ctx, "user1", member.ID))

	count, err := f.svc.CountEffectiveMembers(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, count, "Member counts explicit holders plus implicit members")

	mod := f.mustRole(t, "srv1", "Moderator", 10, nil, "user1", "user2")
	count, err = f.svc.CountEffectiveMembers(ctx, mod.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "other roles count explicit holders only")
}

func TestService_BootstrapServer(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator")

	ctx := context.Background()
	require.NoError(t, f.svc.BootstrapServer(ctx, "srv1"))

	admin, err := f.roles.GetByName(ctx, "srv1", perm.RoleNameAdmin)
	require.NoError(t, err)
	assert.Contains(t, admin.Permissions, "administrator")

	member, err := f.roles.GetByName(ctx, "srv1", perm.RoleNameMember)
	require.NoError(t, err)
	assert.Contains(t, member.Permissions, "send_message")
	assert.Greater(t, admin.Position, member.Position)

	// Idempotent: a second bootstrap leaves edits intact.
	require.NoError(t, f.svc.SetPermissions(ctx, member.ID, []string{"view_channels"}))
	require.NoError(t, f.svc.BootstrapServer(ctx, "srv1"))
	member, err = f.roles.GetByName(ctx, "srv1", perm.RoleNameMember)
	require.NoError(t, err)
	assert.Equal(t, []string{"view_channels"}, member.Permissions)
}

func TestService_InvalidateUserCache(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator", "chan1")
	role := f.mustRole(t, "srv1", "Moderator", 10, []string{"kick_member"}, "user1")

	ctx := context.Background()
	ok, err := f.engine.Check(ctx, "user1", "kick_member", "srv1", "chan1")
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate a collaborator mutating assignments directly.
	require.NoError(t, f.roles.Unassign(ctx, "user1", role.ID, "srv1"))

	ok, err = f.engine.Check(ctx, "user1", "kick_member", "srv1", "chan1")
	require.NoError(t, err)
	assert.True(t, ok, "stale until the escape hatch fires")

	require.NoError(t, f.svc.InvalidateUserCache(ctx, "user1", "srv1"))

	ok, err = f.engine.Check(ctx, "user1", "kick_member", "srv1", "chan1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_InvalidateUserCache_AllServers(t *testing.T) {
	f := newFixture(t)
	f.dir.AddServer("srv1", "creator", "chan1")
	f.dir.AddServer("srv2", "creator")
	role1 := f.mustRole(t, "srv1", "Moderator", 10, []string{"kick_member"}, "user1")
	role2 := f.mustRole(t, "srv2", "Moderator", 10, []string{"kick_member"}, "user1")
	f.mustRole(t, "srv1", "Helper", 5, []string{"kick_member"}, "user2")

	ctx := context.Background()
	for _, tc := range []struct{ srv, chn string }{{"srv1", "chan1"}, {"srv2", ""}} {
		ok, err := f.engine.Check(ctx, "user1", "kick_member", tc.srv, tc.chn)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// A collaborator strips the user's roles everywhere without knowing
	// which servers are affected.
	require.NoError(t, f.roles.Unassign(ctx, "user1", role1.ID, "srv1"))
	require.NoError(t, f.roles.Unassign(ctx, "user1", role2.ID, "srv2"))

	require.NoError(t, f.svc.InvalidateUserCache(ctx, "user1", ""))

	ok, err := f.engine.Check(ctx, "user1", "kick_member", "srv1", "chan1")
	require.NoError(t, err)
	assert.False(t, ok, "channel-scoped entry must not survive an unscoped invalidation")

	ok, err = f.engine.Check(ctx, "user1", "kick_member", "srv2", "")
	require.NoError(t, err)
	assert.False(t, ok, "entries in every server are dropped")

	ok, err = f.engine.Check(ctx, "user2", "kick_member", "srv1", "")
	require.NoError(t, err)
	assert.True(t, ok, "other users keep their grants")
}
