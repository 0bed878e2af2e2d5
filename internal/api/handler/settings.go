package handler

import (
	"net/http"

	"userbotgo/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// GetSettings returns the bot settings, creating the defaults on first read.
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.store.GetSettings()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings applies a partial settings update.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var update models.SettingsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	if update.ResponseDelayMin != nil && update.ResponseDelayMax != nil &&
		*update.ResponseDelayMax < *update.ResponseDelayMin {
		badRequest(c, "response_delay_max must not be below response_delay_min")
		return
	}

	settings, err := h.store.GetSettings()
	if err != nil {
		respondError(c, err)
		return
	}
	update.Apply(settings)
	if err := h.store.SaveSettings(settings); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}
