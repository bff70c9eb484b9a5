// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syameer-io/glyph/pkg/errutil"
)

func TestSeedIDsAreValidULIDs(t *testing.T) {
	// The well-known seed IDs used for idempotency. Each must be exactly
	// 26 characters of Crockford's base32 alphabet.
	ids := map[string]string{
		"server":     seedServerID,
		"creator":    seedCreatorID,
		"general":    seedGeneralID,
		"announce":   seedAnnounceID,
		"member one": seedMemberOneID,
		"member two": seedMemberTwoID,
	}

	seen := make(map[string]bool)
	for name, id := range ids {
		require.Len(t, id, 26, "%s ID must be exactly 26 characters", name)

		parsed, err := ulid.Parse(id)
		require.NoError(t, err, "%s ID should be a valid ULID", name)
		require.NotEqual(t, ulid.ULID{}, parsed)

		assert.False(t, seen[id], "%s ID duplicates another seed ID", name)
		seen[id] = true
	}
}

func TestRunSeed_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&bytes.Buffer{})

	cfg := &seedConfig{timeout: 30 * time.Second}
	err := runSeed(cmd, nil, cfg)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestRunSeed_InvalidDatabaseURL(t *testing.T) {
	// An invalid scheme fails during connection string parsing, before
	// any network access.
	t.Setenv("DATABASE_URL", "invalid://not-a-valid-url")

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&bytes.Buffer{})

	cfg := &seedConfig{timeout: 30 * time.Second}
	err := runSeed(cmd, nil, cfg)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestNewSeedCmd(t *testing.T) {
	cmd := NewSeedCmd()
	require.NotNil(t, cmd)
	assert.Equal(t, "seed", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.Contains(t, cmd.Long, "idempotent")
	assert.NotNil(t, cmd.RunE)
}

func TestNewSeedCmd_TimeoutFlag(t *testing.T) {
	cmd := NewSeedCmd()

	timeout, err := cmd.Flags().GetDuration("timeout")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout, "default timeout should be 30s")

	require.NoError(t, cmd.Flags().Set("timeout", "1m"))
	timeout, err = cmd.Flags().GetDuration("timeout")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, timeout, "timeout should be settable to 1m")
}
