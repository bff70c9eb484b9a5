// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package store

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err, "should read embedded migrations directory")

	// Every migration needs a matching up/down pair.
	assert.Equal(t, 0, len(entries)%2, "migrations must come in up/down pairs")

	fileNames := make(map[string]bool)
	for _, entry := range entries {
		fileNames[entry.Name()] = true
	}
	for _, expected := range []string{
		"000001_initial.up.sql",
		"000001_initial.down.sql",
		"000002_roles.up.sql",
		"000002_roles.down.sql",
		"000003_channel_overrides.up.sql",
		"000003_channel_overrides.down.sql",
	} {
		assert.True(t, fileNames[expected], "should contain %s", expected)
	}

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, entry := range entries {
		assert.True(t, pattern.MatchString(entry.Name()),
			"file %s should match pattern NNNNNN_name.(up|down).sql", entry.Name())
	}
}

func TestAllMigrationVersions(t *testing.T) {
	versions, err := allMigrationVersions()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, versions)
}
