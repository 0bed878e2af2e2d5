package handler

import (
	"net/http"
	"strconv"

	"userbotgo/backend/internal/config"

	"github.com/gin-gonic/gin"
)

// ListLogs returns activity entries newest-first with skip/limit paging.
func (h *Handler) ListLogs(c *gin.Context) {
	skip := intQuery(c, "skip", 0)
	limit := intQuery(c, "limit", config.DefaultLogLimit)
	if limit > config.MaxLogLimit {
		limit = config.MaxLogLimit
	}

	entries, err := h.store.ListLogs(skip, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// LogStats returns the aggregate activity counters.
func (h *Handler) LogStats(c *gin.Context) {
	stats, err := h.store.Stats()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
