package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// StartAll launches workers for every startable account.
func (h *Handler) StartAll(c *gin.Context) {
	started, err := h.bot.StartAll()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": started})
}

// StartAccount launches the worker for one account.
func (h *Handler) StartAccount(c *gin.Context) {
	if err := h.bot.Start(c.Param("account_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "starting"})
}

// StopAll stops every running worker.
func (h *Handler) StopAll(c *gin.Context) {
	h.bot.StopAll()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// StopAccount stops one account's worker. Stopping an account that is not
// running succeeds.
func (h *Handler) StopAccount(c *gin.Context) {
	if err := h.bot.Stop(c.Param("account_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// BotStatus reports the responder's aggregate state.
func (h *Handler) BotStatus(c *gin.Context) {
	active := h.bot.ActiveCount()
	status := "stopped"
	if active > 0 {
		status = "running"
	}

	settings, err := h.store.GetSettings()
	if err != nil {
		respondError(c, err)
		return
	}

	count, err := h.store.DailyResponseCount()
	if err != nil {
		log.Warn().Err(err).Msg("failed to read daily response count")
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               status,
		"active_accounts":      active,
		"daily_response_count": count,
		"max_daily_responses":  settings.MaxDailyResponses,
	})
}
