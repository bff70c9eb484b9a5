// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/syameer-io/glyph/internal/httpapi"
	"github.com/syameer-io/glyph/internal/logging"
	"github.com/syameer-io/glyph/internal/observability"
	"github.com/syameer-io/glyph/internal/perm"
	permpg "github.com/syameer-io/glyph/internal/perm/postgres"
	"github.com/syameer-io/glyph/internal/store"
	"github.com/syameer-io/glyph/internal/xdg"
	"github.com/syameer-io/glyph/pkg/errutil"
)

// Default values for serve command flags.
const (
	defaultListenAddr  = ":8070"
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultLogFormat   = "json"
	defaultLogLevel    = "info"

	janitorInterval = time.Minute
	shutdownTimeout = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the permission service",
		Long: `Start the permission service: HTTP API, permission cache with
cross-process invalidation, and metrics/health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFile
			if path == "" {
				if found, ok := xdg.ConfigFile("glyph.yaml"); ok {
					path = found
				}
			}
			cfg, err := loadServeConfig(path, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().String("listen-addr", defaultListenAddr, "HTTP API listen address")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection string (default: DATABASE_URL)")
	cmd.Flags().String("catalog", "", "permission catalog YAML path (default: built-in catalog)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	cmd.Flags().Bool("auto-migrate", false, "apply pending migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, cfg *serveConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logging.SetDefault("glyph", version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	catalog, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return err
	}
	slog.Info("permission catalog loaded",
		"keys", len(catalog.AllKeys()),
		"cache_ttl", catalog.CacheTTL(),
	)

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	slog.Info("connected to database")

	if cfg.AutoMigrate {
		migrator, err := store.NewMigrator(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := migrator.Up(); err != nil {
			_ = migrator.Close()
			return err
		}
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
		slog.Info("migrations applied")
	}

	roles := permpg.NewRoleRepository(pool)
	overrides := permpg.NewOverrideRepository(pool)
	directory := permpg.NewDirectoryRepository(pool)

	cache := perm.NewMemoryCache()
	cache.StartJanitor(ctx, janitorInterval)

	listener := permpg.NewListener(cfg.DatabaseURL, cache)
	listener.Start(ctx)

	engine := perm.NewEngine(directory, roles, overrides, cache, catalog)
	service := perm.NewService(directory, roles, overrides, cache, catalog)

	apiServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewHandler(engine, service, roles).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var ready atomic.Bool
	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, ready.Load)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	apiErrCh := make(chan error, 1)
	go func() {
		if serveErr := apiServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			apiErrCh <- serveErr
		}
	}()

	ready.Store(true)
	cmd.Println("Glyph permission service started")
	slog.Info("serving", "listen_addr", cfg.ListenAddr, "metrics_addr", cfg.MetricsAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-apiErrCh:
		errutil.LogError(slog.Default(), "http api server failed", err)
		cancel()
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error stopping http api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	cancel()
	listener.Wait()
	cache.Wait()

	slog.Info("shutdown complete")
	return nil
}

// loadCatalog reads the catalog file, or falls back to the built-in
// catalog when no path is configured.
func loadCatalog(path string) (*perm.Catalog, error) {
	if path == "" {
		return perm.DefaultCatalog(), nil
	}
	return perm.LoadCatalog(path)
}

// monitorServerErrors cancels the context when a server reports an error,
// so one failing component shuts the whole process down cleanly.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
