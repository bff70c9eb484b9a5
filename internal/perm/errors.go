// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package perm

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is the sentinel wrapped by store implementations when a role,
// override, server, or assignment does not exist for the given identifiers.
var ErrNotFound = errors.New("not found")

// Machine-readable error codes attached via oops. Validation failures are
// returned to the immediate caller and never retried automatically.
const (
	CodeInvalidPermissionKey = "PERMISSION_INVALID_KEY"
	CodeProtectedRole        = "ROLE_PROTECTED"
	CodeInvalidOverride      = "OVERRIDE_INVALID_VALUE"
	CodeRoleNotFound         = "ROLE_NOT_FOUND"
	CodeOverrideNotFound     = "OVERRIDE_NOT_FOUND"
	CodeServerNotFound       = "SERVER_NOT_FOUND"
	CodeRoleExists           = "ROLE_ALREADY_EXISTS"
)

// IsNotFound reports whether err represents a missing role, override, or
// server, either via the ErrNotFound sentinel or a *_NOT_FOUND oops code.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	switch oopsErr.Code() {
	case CodeRoleNotFound, CodeOverrideNotFound, CodeServerNotFound:
		return true
	}
	return false
}

// IsProtectedRole reports whether err was caused by an attempt to delete
// one of the two protected roles.
func IsProtectedRole(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == CodeProtectedRole
}

// IsInvalidPermissionKey reports whether err was caused by a permission key
// absent from the catalog.
func IsInvalidPermissionKey(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == CodeInvalidPermissionKey
}
