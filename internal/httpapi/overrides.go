// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/syameer-io/glyph/internal/perm"
)

type overridePayload struct {
	Value string `json:"value" binding:"required"`
}

type overrideResponse struct {
	ID         string `json:"id"`
	ChannelID  string `json:"channel_id"`
	RoleID     string `json:"role_id"`
	Permission string `json:"permission"`
	Value      string `json:"value"`
}

func (h *Handler) setOverride(c *gin.Context) {
	var payload overridePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	o, err := h.service.SetOverride(c.Request.Context(),
		c.Param("channel_id"), c.Param("role_id"), c.Param("permission"),
		perm.OverrideValue(payload.Value))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, overrideResponse{
		ID:         o.ID,
		ChannelID:  o.ChannelID,
		RoleID:     o.RoleID,
		Permission: o.Permission,
		Value:      string(o.Value),
	})
}

func (h *Handler) removeOverride(c *gin.Context) {
	removed, err := h.service.RemoveOverride(c.Request.Context(),
		c.Param("channel_id"), c.Param("role_id"), c.Param("permission"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "override not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
