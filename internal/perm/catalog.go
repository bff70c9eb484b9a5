// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package perm

import (
	"sort"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
)

// defaultCacheTTL bounds staleness of cached permission entries when the
// catalog does not configure one.
const defaultCacheTTL = 300 * time.Second

// Category groups related permission keys for display and admin tooling.
type Category struct {
	Permissions []string `koanf:"permissions"`
}

// Catalog is the closed set of valid permission keys, loaded once at
// startup (or per tenant). It is read-only to the engine: permission key
// semantics are opaque strings; the catalog only decides which keys exist,
// which are dangerous, and what the built-in roles start with.
type Catalog struct {
	Administrator string              `koanf:"administrator"`
	TTL           time.Duration       `koanf:"cache_ttl"`
	Cats          map[string]Category `koanf:"categories"`
	Dangerous     []string            `koanf:"dangerous"`
	RoleDefaults  map[string][]string `koanf:"defaults"`

	// keys indexes every permission key across all categories.
	keys map[string]struct{}
}

// LoadCatalog reads a catalog YAML file and builds the key index.
func LoadCatalog(path string) (*Catalog, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, oops.Code("CATALOG_LOAD_FAILED").With("path", path).Wrap(err)
	}

	var c Catalog
	if err := k.Unmarshal("", &c); err != nil {
		return nil, oops.Code("CATALOG_PARSE_FAILED").With("path", path).Wrap(err)
	}
	if err := c.init(); err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return &c, nil
}

// init validates the catalog and builds the key index.
func (c *Catalog) init() error {
	if c.Administrator == "" {
		return oops.Code("CATALOG_INVALID").Errorf("administrator key must not be empty")
	}
	if c.TTL <= 0 {
		c.TTL = defaultCacheTTL
	}

	c.keys = make(map[string]struct{})
	for _, cat := range c.Cats {
		for _, p := range cat.Permissions {
			c.keys[p] = struct{}{}
		}
	}
	if _, ok := c.keys[c.Administrator]; !ok {
		return oops.Code("CATALOG_INVALID").
			With("administrator", c.Administrator).
			Errorf("administrator key must appear in a category")
	}
	for roleType, perms := range c.RoleDefaults {
		for _, p := range perms {
			if _, ok := c.keys[p]; !ok {
				return oops.Code("CATALOG_INVALID").
					With("role_type", roleType).With("permission", p).
					Errorf("default permission not in catalog")
			}
		}
	}
	return nil
}

// AllKeys returns every valid permission key, sorted.
func (c *Catalog) AllKeys() []string {
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Contains reports whether key is a valid permission key.
func (c *Catalog) Contains(key string) bool {
	_, ok := c.keys[key]
	return ok
}

// AdministratorKey returns the sentinel key whose presence in an effective
// set grants every permission.
func (c *Catalog) AdministratorKey() string {
	return c.Administrator
}

// CacheTTL returns the configured lifetime of cached permission entries.
func (c *Catalog) CacheTTL() time.Duration {
	return c.TTL
}

// Categories returns the category map.
func (c *Catalog) Categories() map[string]Category {
	return c.Cats
}

// DangerousKeys returns the keys flagged as dangerous for admin tooling.
func (c *Catalog) DangerousKeys() []string {
	return c.Dangerous
}

// Defaults returns the default permission set for a built-in role type
// ("admin" or "member"). Unknown role types return nil.
func (c *Catalog) Defaults(roleType string) []string {
	return c.RoleDefaults[roleType]
}

// DefaultCatalog returns the built-in catalog used by tests and by seed
// when no catalog file is supplied. Key names mirror the platform's
// server/channel feature set.
func DefaultCatalog() *Catalog {
	c := &Catalog{
		Administrator: "administrator",
		TTL:           defaultCacheTTL,
		Cats: map[string]Category{
			"general": {Permissions: []string{
				"view_channels",
				"send_message",
				"add_reactions",
				"attach_files",
				"mention_everyone",
			}},
			"membership": {Permissions: []string{
				"invite_member",
				"kick_member",
				"ban_member",
				"manage_nicknames",
			}},
			"management": {Permissions: []string{
				"manage_channels",
				"manage_roles",
				"manage_server",
				"manage_webhooks",
				"administrator",
			}},
			"voice": {Permissions: []string{
				"voice_connect",
				"voice_speak",
				"voice_mute_members",
			}},
		},
		Dangerous: []string{
			"administrator",
			"manage_roles",
			"manage_server",
			"ban_member",
		},
		RoleDefaults: map[string][]string{
			"admin": {"administrator"},
			"member": {
				"view_channels",
				"send_message",
				"add_reactions",
				"attach_files",
				"invite_member",
				"voice_connect",
				"voice_speak",
			},
		},
	}
	// init cannot fail on the built-in catalog.
	if err := c.init(); err != nil {
		panic(err)
	}
	return c
}
