// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package main

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// serveConfig holds configuration for the serve command. Values come from
// the config file, then explicitly set flags on top.
type serveConfig struct {
	ListenAddr  string `koanf:"listen-addr"`
	MetricsAddr string `koanf:"metrics-addr"`
	DatabaseURL string `koanf:"database-url"`
	Catalog     string `koanf:"catalog"`
	LogFormat   string `koanf:"log-format"`
	LogLevel    string `koanf:"log-level"`
	AutoMigrate bool   `koanf:"auto-migrate"`
}

// Validate checks that the configuration is usable.
func (cfg *serveConfig) Validate() error {
	if cfg.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen-addr is required")
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database-url is required (flag, config file, or DATABASE_URL)")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log-format must be json or text, got %q", cfg.LogFormat)
	}
	return nil
}

// loadServeConfig merges the optional YAML config file with the command's
// flags. Explicitly set flags win over the file; the DATABASE_URL
// environment variable fills the database URL when neither provides one.
func loadServeConfig(path string, flags *pflag.FlagSet) (*serveConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "merge flags").Wrap(err)
	}

	var cfg serveConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return &cfg, nil
}

// databaseURL resolves the connection string for one-shot commands that
// take no config file.
func databaseURL() (string, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}
	return url, nil
}
