// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

// Package permtest provides in-memory test doubles for the permission
// engine's store and directory interfaces.
package permtest

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/syameer-io/glyph/internal/perm"
)

// Directory is a map-backed perm.Directory.
type Directory struct {
	Servers map[string]*perm.Server // serverID → server
	Chans   map[string][]string     // serverID → channelIDs
	NoRole  map[string]int          // serverID → implicit member count
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		Servers: make(map[string]*perm.Server),
		Chans:   make(map[string][]string),
		NoRole:  make(map[string]int),
	}
}

// AddServer registers a server with its creator and channels.
func (d *Directory) AddServer(serverID, creatorID string, channelIDs ...string) {
	d.Servers[serverID] = &perm.Server{ID: serverID, CreatorID: creatorID}
	d.Chans[serverID] = channelIDs
}

// Server returns the registered server or ErrNotFound.
func (d *Directory) Server(_ context.Context, serverID string) (*perm.Server, error) {
	srv, ok := d.Servers[serverID]
	if !ok {
		return nil, oops.Code(perm.CodeServerNotFound).With("server_id", serverID).Wrap(perm.ErrNotFound)
	}
	return srv, nil
}

// Channels returns the server's channel IDs.
func (d *Directory) Channels(_ context.Context, serverID string) ([]string, error) {
	return d.Chans[serverID], nil
}

// CountImplicitMembers returns the configured implicit member count.
func (d *Directory) CountImplicitMembers(_ context.Context, serverID string) (int, error) {
	return d.NoRole[serverID], nil
}

// RoleStore is an in-memory perm.RoleStore.
type RoleStore struct {
	mu          sync.Mutex
	roles       map[string]*perm.Role       // roleID → role
	assignments map[string]map[string]bool  // roleID → userID → held
}

// NewRoleStore creates an empty RoleStore.
func NewRoleStore() *RoleStore {
	return &RoleStore{
		roles:       make(map[string]*perm.Role),
		assignments: make(map[string]map[string]bool),
	}
}

// Get returns a copy of the role.
func (s *RoleStore) Get(_ context.Context, roleID string) (*perm.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return nil, oops.Code(perm.CodeRoleNotFound).With("role_id", roleID).Wrap(perm.ErrNotFound)
	}
	return copyRole(role), nil
}

// GetByName returns the role with the given name in the server.
func (s *RoleStore) GetByName(_ context.Context, serverID, name string) (*perm.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.ServerID == serverID && role.Name == name {
			return copyRole(role), nil
		}
	}
	return nil, oops.Code(perm.CodeRoleNotFound).
		With("server_id", serverID).With("name", name).Wrap(perm.ErrNotFound)
}

// Create stores the role, rejecting duplicate names within a server.
func (s *RoleStore) Create(_ context.Context, role *perm.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.ServerID == role.ServerID && existing.Name == role.Name {
			return oops.Code(perm.CodeRoleExists).
				With("server_id", role.ServerID).With("name", role.Name).
				Errorf("role name already taken")
		}
	}
	s.roles[role.ID] = copyRole(role)
	return nil
}

// Update replaces the stored role.
func (s *RoleStore) Update(_ context.Context, role *perm.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		return oops.Code(perm.CodeRoleNotFound).With("role_id", role.ID).Wrap(perm.ErrNotFound)
	}
	s.roles[role.ID] = copyRole(role)
	return nil
}

// Delete removes the role and its assignments.
func (s *RoleStore) Delete(_ context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return oops.Code(perm.CodeRoleNotFound).With("role_id", roleID).Wrap(perm.ErrNotFound)
	}
	delete(s.roles, roleID)
	delete(s.assignments, roleID)
	return nil
}

// ListByServer returns the server's roles, highest position first.
func (s *RoleStore) ListByServer(_ context.Context, serverID string) ([]*perm.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var roles []*perm.Role
	for _, role := range s.roles {
		if role.ServerID == serverID {
			roles = append(roles, copyRole(role))
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Position > roles[j].Position })
	return roles, nil
}

// RolesForUser returns the roles explicitly assigned to the user.
func (s *RoleStore) RolesForUser(_ context.Context, userID, serverID string) ([]*perm.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var roles []*perm.Role
	for roleID, users := range s.assignments {
		if !users[userID] {
			continue
		}
		role, ok := s.roles[roleID]
		if ok && role.ServerID == serverID {
			roles = append(roles, copyRole(role))
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Position > roles[j].Position })
	return roles, nil
}

// Holders returns the users holding the role, sorted for determinism.
func (s *RoleStore) Holders(_ context.Context, roleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var holders []string
	for userID, held := range s.assignments[roleID] {
		if held {
			holders = append(holders, userID)
		}
	}
	sort.Strings(holders)
	return holders, nil
}

// CountHolders returns the number of users holding the role.
func (s *RoleStore) CountHolders(ctx context.Context, roleID string) (int, error) {
	holders, err := s.Holders(ctx, roleID)
	if err != nil {
		return 0, err
	}
	return len(holders), nil
}

// Assign grants the role to the user.
func (s *RoleStore) Assign(_ context.Context, userID, roleID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return oops.Code(perm.CodeRoleNotFound).With("role_id", roleID).Wrap(perm.ErrNotFound)
	}
	if s.assignments[roleID] == nil {
		s.assignments[roleID] = make(map[string]bool)
	}
	s.assignments[roleID][userID] = true
	return nil
}

// Unassign revokes the role from the user.
func (s *RoleStore) Unassign(_ context.Context, userID, roleID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments[roleID], userID)
	return nil
}

// OverrideStore is an in-memory perm.OverrideStore.
type OverrideStore struct {
	mu        sync.Mutex
	overrides map[string]*perm.Override // channel|role|permission → override
}

// NewOverrideStore creates an empty OverrideStore.
func NewOverrideStore() *OverrideStore {
	return &OverrideStore{overrides: make(map[string]*perm.Override)}
}

func overrideKey(channelID, roleID, permission string) string {
	return channelID + "|" + roleID + "|" + permission
}

// Upsert creates or replaces an override.
func (s *OverrideStore) Upsert(_ context.Context, o *perm.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *o
	s.overrides[overrideKey(o.ChannelID, o.RoleID, o.Permission)] = &stored
	return nil
}

// Remove hard-deletes an override.
func (s *OverrideStore) Remove(_ context.Context, channelID, roleID, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := overrideKey(channelID, roleID, permission)
	if _, ok := s.overrides[key]; !ok {
		return oops.Code(perm.CodeOverrideNotFound).
			With("channel_id", channelID).With("role_id", roleID).
			With("permission", permission).Wrap(perm.ErrNotFound)
	}
	delete(s.overrides, key)
	return nil
}

// ForRoleChannel returns all overrides for the role on the channel.
func (s *OverrideStore) ForRoleChannel(_ context.Context, roleID, channelID string) ([]*perm.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*perm.Override
	for _, o := range s.overrides {
		if o.RoleID == roleID && o.ChannelID == channelID {
			stored := *o
			result = append(result, &stored)
		}
	}
	return result, nil
}

// ForChannel returns all overrides on the channel.
func (s *OverrideStore) ForChannel(_ context.Context, channelID string) ([]*perm.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*perm.Override
	for _, o := range s.overrides {
		if o.ChannelID == channelID {
			stored := *o
			result = append(result, &stored)
		}
	}
	return result, nil
}

func copyRole(role *perm.Role) *perm.Role {
	copied := *role
	copied.Permissions = append([]string(nil), role.Permissions...)
	return &copied
}
