// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

// Package httpapi exposes the permission engine over HTTP for the other
// platform services. Authentication happens upstream; every request is
// trusted to name its acting user honestly.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/syameer-io/glyph/internal/perm"
)

// Handler serves the permission HTTP API.
type Handler struct {
	engine  *perm.Engine
	service *perm.Service
	roles   perm.RoleStore
}

// NewHandler creates a Handler over the given engine and service.
func NewHandler(engine *perm.Engine, service *perm.Service, roles perm.RoleStore) *Handler {
	return &Handler{engine: engine, service: service, roles: roles}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())

	v1 := r.Group("/v1")
	{
		v1.POST("/permissions/check", h.check)
		v1.GET("/servers/:server_id/members/:user_id/permissions", h.effectivePermissions)
		v1.GET("/servers/:server_id/members/:user_id/can-manage/:target_id", h.canManageUser)

		v1.POST("/servers/:server_id/bootstrap", h.bootstrapServer)
		v1.POST("/servers/:server_id/roles", h.createRole)
		v1.GET("/servers/:server_id/roles", h.listRoles)
		v1.DELETE("/servers/:server_id/cache", h.invalidateServer)
		v1.DELETE("/servers/:server_id/members/:user_id/cache", h.invalidateUser)
		v1.DELETE("/members/:user_id/cache", h.invalidateUser)

		v1.GET("/roles/:role_id/can-manage", h.canManageRole)

		v1.DELETE("/roles/:role_id", h.deleteRole)
		v1.PUT("/roles/:role_id/permissions", h.setPermissions)
		v1.POST("/roles/:role_id/permissions/:permission", h.grantPermission)
		v1.DELETE("/roles/:role_id/permissions/:permission", h.revokePermission)
		v1.PUT("/roles/:role_id/position", h.setPosition)
		v1.POST("/roles/:role_id/members", h.assignRole)
		v1.DELETE("/roles/:role_id/members/:user_id", h.unassignRole)
		v1.GET("/roles/:role_id/members/count", h.countMembers)

		v1.PUT("/channels/:channel_id/roles/:role_id/overrides/:permission", h.setOverride)
		v1.DELETE("/channels/:channel_id/roles/:role_id/overrides/:permission", h.removeOverride)
	}

	return r
}

// requestLogger logs each request through slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// writeError maps domain errors to HTTP statuses. Unknown errors are 500s
// with the detail kept out of the response body.
func writeError(c *gin.Context, err error) {
	switch {
	case perm.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case perm.IsProtectedRole(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case perm.IsInvalidPermissionKey(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if oopsErr, ok := oops.AsOops(err); ok {
			switch oopsErr.Code() {
			case perm.CodeInvalidOverride:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			case perm.CodeRoleExists:
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
		}
		slog.Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type checkPayload struct {
	UserID     string   `json:"user_id" binding:"required"`
	ServerID   string   `json:"server_id" binding:"required"`
	ChannelID  string   `json:"channel_id"`
	Permission string   `json:"permission"`
	Any        []string `json:"any"`
	All        []string `json:"all"`
}

func (h *Handler) check(c *gin.Context) {
	var payload checkPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		allowed bool
		err     error
	)
	switch {
	case payload.Permission != "":
		allowed, err = h.engine.Check(c.Request.Context(),
			payload.UserID, payload.Permission, payload.ServerID, payload.ChannelID)
	case len(payload.Any) > 0:
		allowed, err = h.engine.CheckAny(c.Request.Context(),
			payload.UserID, payload.Any, payload.ServerID, payload.ChannelID)
	case len(payload.All) > 0:
		allowed, err = h.engine.CheckAll(c.Request.Context(),
			payload.UserID, payload.All, payload.ServerID, payload.ChannelID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "one of permission, any, or all is required"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}

func (h *Handler) effectivePermissions(c *gin.Context) {
	perms, err := h.engine.GetEffectivePermissions(c.Request.Context(),
		c.Param("user_id"), c.Param("server_id"), c.Query("channel_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

func (h *Handler) canManageUser(c *gin.Context) {
	ok, err := h.engine.CanManageUser(c.Request.Context(),
		c.Param("user_id"), c.Param("target_id"), c.Param("server_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"can_manage": ok})
}

func (h *Handler) canManageRole(c *gin.Context) {
	actorID := c.Query("actor_id")
	if actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor_id is required"})
		return
	}
	ok, err := h.engine.CanManageRole(c.Request.Context(), actorID, c.Param("role_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"can_manage": ok})
}

func (h *Handler) bootstrapServer(c *gin.Context) {
	if err := h.service.BootstrapServer(c.Request.Context(), c.Param("server_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) invalidateServer(c *gin.Context) {
	if err := h.service.InvalidateServerCache(c.Request.Context(), c.Param("server_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// invalidateUser serves both the server-scoped and the unscoped route; on
// the latter server_id is empty and every server's entries are dropped.
func (h *Handler) invalidateUser(c *gin.Context) {
	err := h.service.InvalidateUserCache(c.Request.Context(), c.Param("user_id"), c.Param("server_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
