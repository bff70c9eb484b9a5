// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/syameer-io/glyph/internal/perm"
)

type createRolePayload struct {
	Name        string   `json:"name" binding:"required"`
	Color       string   `json:"color"`
	Position    int      `json:"position"`
	Permissions []string `json:"permissions"`
}

type roleResponse struct {
	ID          string   `json:"id"`
	ServerID    string   `json:"server_id"`
	Name        string   `json:"name"`
	Color       string   `json:"color"`
	Position    int      `json:"position"`
	Permissions []string `json:"permissions"`
}

func toRoleResponse(r *perm.Role) roleResponse {
	return roleResponse{
		ID:          r.ID,
		ServerID:    r.ServerID,
		Name:        r.Name,
		Color:       r.Color,
		Position:    r.Position,
		Permissions: r.Permissions,
	}
}

func (h *Handler) createRole(c *gin.Context) {
	var payload createRolePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := h.service.CreateRole(c.Request.Context(), c.Param("server_id"),
		payload.Name, payload.Color, payload.Position, payload.Permissions)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) listRoles(c *gin.Context) {
	roles, err := h.roles.ListByServer(c.Request.Context(), c.Param("server_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, toRoleResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"roles": out})
}

func (h *Handler) deleteRole(c *gin.Context) {
	if err := h.service.DeleteRole(c.Request.Context(), c.Param("role_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type permissionsPayload struct {
	Permissions []string `json:"permissions"`
}

func (h *Handler) setPermissions(c *gin.Context) {
	var payload permissionsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.SetPermissions(c.Request.Context(), c.Param("role_id"), payload.Permissions); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) grantPermission(c *gin.Context) {
	changed, err := h.service.GrantPermission(c.Request.Context(),
		c.Param("role_id"), c.Param("permission"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func (h *Handler) revokePermission(c *gin.Context) {
	changed, err := h.service.RevokePermission(c.Request.Context(),
		c.Param("role_id"), c.Param("permission"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

type positionPayload struct {
	Position int `json:"position"`
}

func (h *Handler) setPosition(c *gin.Context) {
	var payload positionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.SetRolePosition(c.Request.Context(), c.Param("role_id"), payload.Position); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type memberPayload struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) assignRole(c *gin.Context) {
	var payload memberPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.AssignRole(c.Request.Context(), payload.UserID, c.Param("role_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) unassignRole(c *gin.Context) {
	if err := h.service.UnassignRole(c.Request.Context(), c.Param("user_id"), c.Param("role_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// countMembers reports the effective member count a role summary shows.
// For the protected Member role this includes implicit members.
func (h *Handler) countMembers(c *gin.Context) {
	count, err := h.service.CountEffectiveMembers(c.Request.Context(), c.Param("role_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
