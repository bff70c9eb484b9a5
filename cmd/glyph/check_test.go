// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syameer-io/glyph/pkg/errutil"
)

func TestNewCheckCmd(t *testing.T) {
	cmd := NewCheckCmd()
	require.NotNil(t, cmd)
	assert.Contains(t, cmd.Use, "check")
	assert.NotEmpty(t, cmd.Short)
	assert.NotNil(t, cmd.RunE)
}

func TestNewCheckCmd_Flags(t *testing.T) {
	cmd := NewCheckCmd()

	channel, err := cmd.Flags().GetString("channel")
	require.NoError(t, err)
	assert.Empty(t, channel, "default is server-wide evaluation")

	timeout, err := cmd.Flags().GetDuration("timeout")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, timeout)

	catalog, err := cmd.Flags().GetString("catalog")
	require.NoError(t, err)
	assert.Empty(t, catalog, "default is the built-in catalog")
}

func TestCheckCommand_RequiresArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no args", args: []string{"check"}},
		{name: "one arg", args: []string{"check", "srv1"}},
		{name: "too many args", args: []string{"check", "srv1", "user1", "message.send", "extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetErr(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.Error(t, cmd.Execute())
		})
	}
}

func TestRunCheck_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cmd := NewCheckCmd()
	cmd.SetContext(context.Background())
	cmd.SetOut(&bytes.Buffer{})

	cfg := &checkConfig{timeout: time.Second}
	err := runCheck(cmd, []string{"srv1", "user1"}, cfg)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestRunCheck_InvalidDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "invalid://not-a-valid-url")

	cmd := NewCheckCmd()
	cmd.SetContext(context.Background())
	cmd.SetOut(&bytes.Buffer{})

	cfg := &checkConfig{timeout: time.Second}
	err := runCheck(cmd, []string{"srv1", "user1"}, cfg)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestRunCheck_BadCatalogPath(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/glyph")

	cmd := NewCheckCmd()
	cmd.SetContext(context.Background())
	cmd.SetOut(&bytes.Buffer{})

	cfg := &checkConfig{catalog: "/nonexistent/catalog.yaml", timeout: time.Second}
	err := runCheck(cmd, []string{"srv1", "user1"}, cfg)
	require.Error(t, err)
}
