// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PoolIface is the subset of pgxpool.Pool the repositories use. The
// indirection keeps unit tests on pgxmock instead of a live database.
type PoolIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
