// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

// Package xdg provides XDG Base Directory paths for Glyph.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "glyph"

// ConfigDir returns the XDG config directory for glyph.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DataDir returns the XDG data directory for glyph.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "share")
	}
	return filepath.Join(base, appName)
}

// StateDir returns the XDG state directory for glyph.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the path of the named file in ConfigDir and whether
// it exists. Callers use this to discover the default config file when
// no explicit path was given.
func ConfigFile(name string) (string, bool) {
	path := filepath.Join(ConfigDir(), name)
	if _, err := os.Stat(path); err != nil {
		return path, false
	}
	return path, true
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
