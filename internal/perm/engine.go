// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package perm

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/oops"
)

// Engine resolves effective permission sets and answers boolean checks.
//
// Resolution order: server creator bypass, then the cached effective set,
// then the catalog's administrator key, then the requested key itself.
// Cache failures degrade to recomputation from the stores; they never
// decide a check on their own.
type Engine struct {
	dir       Directory
	roles     RoleStore
	overrides OverrideStore
	cache     Cache
	catalog   *Catalog
}

// NewEngine creates an Engine with the given collaborators.
func NewEngine(dir Directory, roles RoleStore, overrides OverrideStore, cache Cache, catalog *Catalog) *Engine {
	return &Engine{
		dir:       dir,
		roles:     roles,
		overrides: overrides,
		cache:     cache,
		catalog:   catalog,
	}
}

// Catalog returns the engine's permission catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Check reports whether the user holds the permission in the server.
// channelID scopes the check to a channel; pass "" for a server-wide check.
//
// An error means the stores could not be consulted; callers must treat it
// as a denial, never as a grant.
func (e *Engine) Check(ctx context.Context, userID, permission, serverID, channelID string) (bool, error) {
	start := time.Now()

	creator, set, err := e.resolve(ctx, userID, serverID, channelID)
	if err != nil {
		return false, err
	}
	if creator {
		recordCheck(time.Since(start), outcomeCreatorBypass)
		return true, nil
	}
	if _, ok := set[e.catalog.AdministratorKey()]; ok {
		// Note: a channel override denying the administrator key removes
		// it from the channel-scoped set, revoking the bypass there.
		recordCheck(time.Since(start), outcomeAdminBypass)
		return true, nil
	}
	if _, ok := set[permission]; ok {
		recordCheck(time.Since(start), outcomeAllow)
		return true, nil
	}
	recordCheck(time.Since(start), outcomeDeny)
	return false, nil
}

// CheckAny reports whether the user holds at least one of the permissions.
// The effective set is resolved once for all keys.
func (e *Engine) CheckAny(ctx context.Context, userID string, permissions []string, serverID, channelID string) (bool, error) {
	creator, set, err := e.resolve(ctx, userID, serverID, channelID)
	if err != nil {
		return false, err
	}
	if creator {
		return true, nil
	}
	if _, ok := set[e.catalog.AdministratorKey()]; ok {
		return true, nil
	}
	for _, p := range permissions {
		if _, ok := set[p]; ok {
			return true, nil
		}
	}
	return false, nil
}

// CheckAll reports whether the user holds every one of the permissions.
// An empty permissions slice is vacuously true.
func (e *Engine) CheckAll(ctx context.Context, userID string, permissions []string, serverID, channelID string) (bool, error) {
	creator, set, err := e.resolve(ctx, userID, serverID, channelID)
	if err != nil {
		return false, err
	}
	if creator {
		return true, nil
	}
	if _, ok := set[e.catalog.AdministratorKey()]; ok {
		return true, nil
	}
	for _, p := range permissions {
		if _, ok := set[p]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// GetEffectivePermissions returns the resolved permission set, sorted.
// The creator and administrator bypasses do not expand the set; they only
// affect Check outcomes.
func (e *Engine) GetEffectivePermissions(ctx context.Context, userID, serverID, channelID string) ([]string, error) {
	set, err := e.effective(ctx, userID, serverID, channelID)
	if err != nil {
		return nil, err
	}
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms, nil
}

// resolve fetches the server for the creator bypass and the effective set.
func (e *Engine) resolve(ctx context.Context, userID, serverID, channelID string) (bool, map[string]struct{}, error) {
	srv, err := e.dir.Server(ctx, serverID)
	if err != nil {
		// The store's code (not-found or query failure) propagates as is.
		return false, nil, oops.With("server_id", serverID).Wrap(err)
	}
	if srv.CreatorID == userID {
		return true, nil, nil
	}

	set, err := e.effective(ctx, userID, serverID, channelID)
	if err != nil {
		return false, nil, err
	}
	return false, set, nil
}

// effective returns the memoized effective permission set, recomputing on
// a cache miss. Server-wide and channel-scoped lookups use distinct keys.
func (e *Engine) effective(ctx context.Context, userID, serverID, channelID string) (map[string]struct{}, error) {
	key := ServerKey(serverID, userID)
	if channelID != "" {
		key = ChannelKey(serverID, userID, channelID)
	}

	cached, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		// Fail open to recomputation from the stores.
		recordCacheLookup(cacheError)
		slog.WarnContext(ctx, "permission cache get failed",
			"key", key, "error", err)
	} else if ok {
		recordCacheLookup(cacheHit)
		return toSet(cached), nil
	} else {
		recordCacheLookup(cacheMiss)
	}

	set, err := e.compute(ctx, userID, serverID, channelID)
	if err != nil {
		return nil, err
	}

	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	if setErr := e.cache.Set(ctx, key, perms, e.catalog.CacheTTL()); setErr != nil {
		slog.WarnContext(ctx, "permission cache set failed",
			"key", key, "error", setErr)
	}
	return set, nil
}

// compute aggregates the user's explicitly assigned roles and, for
// channel-scoped lookups, applies overrides with deny dominating allow
// across roles. Users without explicit roles resolve to the empty set:
// implicit membership never confers the Member role's permissions.
func (e *Engine) compute(ctx context.Context, userID, serverID, channelID string) (map[string]struct{}, error) {
	roles, err := e.roles.RolesForUser(ctx, userID, serverID)
	if err != nil {
		return nil, oops.With("user_id", userID).With("server_id", serverID).Wrap(err)
	}
	if len(roles) == 0 {
		return map[string]struct{}{}, nil
	}

	base := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range role.Permissions {
			base[p] = struct{}{}
		}
	}
	if channelID == "" {
		return base, nil
	}

	denied := make(map[string]struct{})
	allowed := make(map[string]struct{})
	for _, role := range roles {
		ovs, err := e.overrides.ForRoleChannel(ctx, role.ID, channelID)
		if err != nil {
			return nil, oops.With("role_id", role.ID).With("channel_id", channelID).Wrap(err)
		}
		for _, o := range ovs {
			switch o.Value {
			case OverrideDeny:
				denied[o.Permission] = struct{}{}
			case OverrideAllow:
				allowed[o.Permission] = struct{}{}
			case OverrideInherit:
				// falls through to base
			}
		}
	}

	// (base \ denied) ∪ (allowed \ denied): a deny wins even when the
	// allow comes from a different role than the one that denied.
	effective := make(map[string]struct{}, len(base)+len(allowed))
	for p := range base {
		if _, d := denied[p]; !d {
			effective[p] = struct{}{}
		}
	}
	for p := range allowed {
		if _, d := denied[p]; !d {
			effective[p] = struct{}{}
		}
	}
	return effective, nil
}

func toSet(perms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}
