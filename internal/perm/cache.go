// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package perm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cache memoizes resolved permission sets. Implementations must be safe
// for concurrent use. Errors from Get/Set are treated as misses by the
// engine: a cache outage degrades to recomputation from the source of
// truth, never to granting or denying by itself.
type Cache interface {
	// Get returns the cached permission set for key, and whether it was
	// present and unexpired.
	Get(ctx context.Context, key string) ([]string, bool, error)

	// Set stores the permission set under key for the given TTL.
	Set(ctx context.Context, key string, perms []string, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key with the given prefix. Used for
	// whole-server invalidation.
	DeletePrefix(ctx context.Context, prefix string) error

	// DeleteMatching removes every key accepted by match. Used for
	// cross-server invalidation of one user, where no single prefix
	// covers the keys.
	DeleteMatching(ctx context.Context, match func(key string) bool) error
}

// Cache key layout. The server ID leads so DeletePrefix(ServerPrefix(s))
// clears a whole server; the trailing colon in ServerPrefix keeps one
// server's keyspace from matching another's.
//
// Server-wide and channel-scoped entries are distinct keys: a channel
// lookup never reuses the server-wide entry, and vice versa.

// ServerKey is the cache key for a user's server-wide permission set.
func ServerKey(serverID, userID string) string {
	var b strings.Builder
	b.WriteString("perm:s:")
	b.WriteString(serverID)
	b.WriteString(":u:")
	b.WriteString(userID)
	return b.String()
}

// ChannelKey is the cache key for a user's channel-scoped permission set.
func ChannelKey(serverID, userID, channelID string) string {
	return ServerKey(serverID, userID) + ":c:" + channelID
}

// ServerPrefix is the shared prefix of every cache key in a server.
func ServerPrefix(serverID string) string {
	return "perm:s:" + serverID + ":"
}

// UserKeyMatcher returns a match function accepting every key that caches
// userID's permissions, in any server and any channel. The fragment must
// be followed by the channel marker or the end of the key, so one user ID
// cannot match another's prefix.
func UserKeyMatcher(userID string) func(key string) bool {
	frag := ":u:" + userID
	return func(key string) bool {
		i := strings.Index(key, frag)
		if i < 0 {
			return false
		}
		rest := key[i+len(frag):]
		return rest == "" || strings.HasPrefix(rest, ":c:")
	}
}

// memoryEntry is a cached permission set with its expiry instant.
type memoryEntry struct {
	perms     []string
	expiresAt time.Time
}

// MemoryCache is an in-process Cache backed by a map with passive TTL
// expiry and an optional background janitor. It serves tests and
// single-process deployments; shared deployments layer the postgres
// NOTIFY listener on top for cross-process invalidation.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// wg tracks the janitor goroutine for graceful shutdown.
	wg sync.WaitGroup
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get returns the permission set for key if present and unexpired.
// Expired entries are evicted lazily on read.
func (c *MemoryCache) Get(_ context.Context, key string) ([]string, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a Set may have raced.
		if cur, still := c.entries[key]; still && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	perms := make([]string, len(entry.perms))
	copy(perms, entry.perms)
	return perms, true, nil
}

// Set stores perms under key for ttl. The slice is copied so callers may
// mutate their copy afterwards.
func (c *MemoryCache) Set(_ context.Context, key string, perms []string, ttl time.Duration) error {
	stored := make([]string, len(perms))
	copy(stored, perms)

	c.mu.Lock()
	c.entries[key] = memoryEntry{perms: stored, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Delete removes the given keys.
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	return nil
}

// DeletePrefix removes every key with the given prefix.
func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	return nil
}

// DeleteMatching removes every key accepted by match.
func (c *MemoryCache) DeleteMatching(_ context.Context, match func(key string) bool) error {
	c.mu.Lock()
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartJanitor spawns a goroutine sweeping expired entries every interval.
// The goroutine exits when ctx is cancelled; call Wait to join it.
func (c *MemoryCache) StartJanitor(ctx context.Context, interval time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// Wait blocks until the janitor goroutine has exited.
func (c *MemoryCache) Wait() {
	c.wg.Wait()
}

func (c *MemoryCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}
