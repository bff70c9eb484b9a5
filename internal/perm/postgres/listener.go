// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package postgres

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/syameer-io/glyph/internal/perm"
)

// Default reconnection backoff for the NOTIFY listener.
const (
	defaultReconnectInitial = 100 * time.Millisecond
	defaultReconnectMax     = 30 * time.Second
)

// Listener subscribes to the permission_changed NOTIFY channel on a
// dedicated (non-pooled) connection and drops the mutated server's cache
// entries. It provides best-effort cross-process coherence on top of the
// service's synchronous same-process invalidation; a lost notification is
// bounded by the cache TTL.
type Listener struct {
	connStr string
	cache   perm.Cache

	reconnectInitial time.Duration
	reconnectMax     time.Duration

	// wg tracks the background goroutine for graceful shutdown.
	wg sync.WaitGroup
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithReconnectBackoff sets the exponential backoff bounds for
// re-establishing the LISTEN connection.
func WithReconnectBackoff(initial, maxInterval time.Duration) ListenerOption {
	return func(l *Listener) {
		l.reconnectInitial = initial
		l.reconnectMax = maxInterval
	}
}

// NewListener creates a Listener. connStr must be a PostgreSQL connection
// string for a dedicated connection; pooled connections cannot LISTEN.
func NewListener(connStr string, cache perm.Cache, opts ...ListenerOption) *Listener {
	l := &Listener{
		connStr:          connStr,
		cache:            cache,
		reconnectInitial: defaultReconnectInitial,
		reconnectMax:     defaultReconnectMax,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start spawns the background listen goroutine. It exits when ctx is
// cancelled; call Wait to join it.
func (l *Listener) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(ctx)
	}()
}

// Wait blocks until the background goroutine has exited.
func (l *Listener) Wait() {
	l.wg.Wait()
}

// run listens until ctx is cancelled, reconnecting with capped
// exponential backoff after any connection failure.
func (l *Listener) run(ctx context.Context) {
	backoff := retry.WithCappedDuration(l.reconnectMax,
		retry.NewExponential(l.reconnectInitial))

	for {
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := l.listen(ctx); err != nil {
				slog.WarnContext(ctx, "permission notify listener disconnected",
					"error", err)
				return retry.RetryableError(err)
			}
			return nil
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.ErrorContext(ctx, "permission notify listener gave up", "error", err)
			return
		}
	}
}

// listen opens a dedicated connection and processes notifications until
// the connection breaks or ctx is cancelled.
func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connStr)
	if err != nil {
		return oops.Code("LISTENER_CONNECT_FAILED").Wrap(err)
	}
	defer conn.Close(context.Background()) //nolint:errcheck // best-effort close on a broken connection

	if _, err := conn.Exec(ctx, `LISTEN `+NotifyChannel); err != nil {
		return oops.Code("LISTENER_SUBSCRIBE_FAILED").Wrap(err)
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return oops.Code("LISTENER_WAIT_FAILED").Wrap(err)
		}
		l.handle(ctx, notification.Payload)
	}
}

// handle drops every cached entry for the mutated server. Cache errors
// are logged and swallowed; stale entries expire via TTL.
func (l *Listener) handle(ctx context.Context, serverID string) {
	if serverID == "" {
		return
	}
	if err := l.cache.DeletePrefix(ctx, perm.ServerPrefix(serverID)); err != nil {
		slog.WarnContext(ctx, "permission cache invalidation from notify failed",
			"server_id", serverID, "error", err)
	}
}
