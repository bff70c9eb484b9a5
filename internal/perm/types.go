// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

// Package perm implements the permission aggregation and authorization
// engine for Glyph communities ("servers" containing "channels").
//
// Authorization is role-based: each server defines named roles carrying a
// set of permission keys and an integer position (higher = more authority).
// Channels may carve out per-role exceptions via overrides. The engine
// resolves the effective permission set for a (user, server[, channel])
// tuple, memoizes it in an injected cache, and answers boolean checks
// against it.
package perm

import "time"

// Protected role names. Roles with these names are created at server
// bootstrap and may never be deleted.
const (
	RoleNameAdmin  = "Server Admin"
	RoleNameMember = "Member"
)

// OverrideValue is the per-channel exception applied to a role's base
// permission: allow grants it on the channel, deny removes it, inherit
// defers to the role's base set.
type OverrideValue string

// Valid override values.
const (
	OverrideAllow   OverrideValue = "allow"
	OverrideDeny    OverrideValue = "deny"
	OverrideInherit OverrideValue = "inherit"
)

// Valid reports whether v is one of the three enumerated override values.
func (v OverrideValue) Valid() bool {
	switch v {
	case OverrideAllow, OverrideDeny, OverrideInherit:
		return true
	}
	return false
}

// Role is a named, ordered bundle of permission keys scoped to one server.
// ID uses string (not ulid.ULID) because servers, channels, and users are
// owned by collaborating services and may use different ID schemes; roles
// generated here use ULID strings.
type Role struct {
	ID          string
	ServerID    string
	Name        string
	Color       string
	Position    int
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Protected reports whether the role carries one of the two protected names.
func (r *Role) Protected() bool {
	return r.Name == RoleNameAdmin || r.Name == RoleNameMember
}

// HasPermission reports whether the role's base set contains the key.
func (r *Role) HasPermission(key string) bool {
	for _, p := range r.Permissions {
		if p == key {
			return true
		}
	}
	return false
}

// Override is a per-channel exception to a role's base permission.
// The (ChannelID, RoleID, Permission) triple is unique; removing an
// override is equivalent to setting it to inherit.
type Override struct {
	ID         string
	ChannelID  string
	RoleID     string
	Permission string
	Value      OverrideValue
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Server is the slice of server state the engine needs: the creator
// bypasses every permission check and cannot be out-ranked.
type Server struct {
	ID        string
	CreatorID string
}
