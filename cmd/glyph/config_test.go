// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syameer-io/glyph/pkg/errutil"
)

func serveFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("listen-addr", defaultListenAddr, "")
	flags.String("metrics-addr", defaultMetricsAddr, "")
	flags.String("database-url", "", "")
	flags.String("catalog", "", "")
	flags.String("log-format", defaultLogFormat, "")
	flags.String("log-level", defaultLogLevel, "")
	flags.Bool("auto-migrate", false, "")
	return flags
}

func TestLoadServeConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := loadServeConfig("", serveFlags())
	require.NoError(t, err)

	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, defaultMetricsAddr, cfg.MetricsAddr)
	assert.Equal(t, defaultLogFormat, cfg.LogFormat)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.AutoMigrate)
}

func TestLoadServeConfig_FromFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	path := filepath.Join(t.TempDir(), "glyph.yaml")
	content := `listen-addr: ":9090"
database-url: "postgres://db.example.com:5432/glyph"
log-format: "text"
auto-migrate: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := loadServeConfig(path, serveFlags())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "postgres://db.example.com:5432/glyph", cfg.DatabaseURL)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.AutoMigrate)
	// Untouched by the file, stays at flag default.
	assert.Equal(t, defaultMetricsAddr, cfg.MetricsAddr)
}

func TestLoadServeConfig_FlagsOverrideFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	path := filepath.Join(t.TempDir(), "glyph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen-addr: \":9090\"\n"), 0o600))

	flags := serveFlags()
	require.NoError(t, flags.Set("listen-addr", ":7777"))

	cfg, err := loadServeConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.ListenAddr, "explicitly set flag should win over file")
}

func TestLoadServeConfig_EnvFallbackForDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env.example.com:5432/glyph")

	cfg, err := loadServeConfig("", serveFlags())
	require.NoError(t, err)
	assert.Equal(t, "postgres://env.example.com:5432/glyph", cfg.DatabaseURL)
}

func TestLoadServeConfig_MissingFile(t *testing.T) {
	_, err := loadServeConfig("/nonexistent/glyph.yaml", serveFlags())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestServeConfig_Validate(t *testing.T) {
	valid := serveConfig{
		ListenAddr:  ":8070",
		DatabaseURL: "postgres://localhost:5432/glyph",
		LogFormat:   "json",
	}

	tests := []struct {
		name    string
		mutate  func(*serveConfig)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*serveConfig) {},
		},
		{
			name:    "missing listen addr",
			mutate:  func(c *serveConfig) { c.ListenAddr = "" },
			wantErr: "listen-addr",
		},
		{
			name:    "missing database url",
			mutate:  func(c *serveConfig) { c.DatabaseURL = "" },
			wantErr: "database-url",
		},
		{
			name:    "bad log format",
			mutate:  func(c *serveConfig) { c.LogFormat = "xml" },
			wantErr: "log-format",
		},
		{
			name:   "text log format is accepted",
			mutate: func(c *serveConfig) { c.LogFormat = "text" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	tests := []struct {
		name        string
		envValue    string
		wantURL     string
		wantErr     bool
		wantErrCode string
	}{
		{
			name:        "returns error when DATABASE_URL is empty",
			envValue:    "",
			wantErr:     true,
			wantErrCode: "CONFIG_INVALID",
		},
		{
			name:     "returns URL when DATABASE_URL is set",
			envValue: "postgres://localhost:5432/testdb",
			wantURL:  "postgres://localhost:5432/testdb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", tt.envValue)

			url, err := databaseURL()

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Empty(t, url)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantURL, url)
			}
		})
	}
}
