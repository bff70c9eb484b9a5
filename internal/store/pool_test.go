// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syameer-io/glyph/pkg/errutil"
)

func TestNewPool_InvalidDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "not a dsn ://")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}
