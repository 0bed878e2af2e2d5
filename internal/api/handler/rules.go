package handler

import (
	"net/http"

	"userbotgo/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type ruleCreateRequest struct {
	Name              string               `json:"name" binding:"required"`
	Priority          int                  `json:"priority"`
	IsActive          *bool                `json:"is_active"`
	AccountID         *string              `json:"account_id"`
	Conditions        models.ConditionList `json:"conditions"`
	Actions           models.ActionList    `json:"actions" binding:"required"`
	CooldownSeconds   int                  `json:"cooldown_seconds"`
	MaxTriggersPerDay int                  `json:"max_triggers_per_day"`
}

// ListRules returns all rules in evaluation order.
func (h *Handler) ListRules(c *gin.Context) {
	c.JSON(http.StatusOK, h.rules.List())
}

// GetRule returns one rule.
func (h *Handler) GetRule(c *gin.Context) {
	rule, err := h.rules.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateRule adds a rule. New rules are active unless the payload says
// otherwise.
func (h *Handler) CreateRule(c *gin.Context) {
	var req ruleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name and actions are required")
		return
	}
	if len(req.Actions) == 0 {
		badRequest(c, "rule needs at least one action")
		return
	}

	rule := &models.Rule{
		Name:              req.Name,
		Priority:          req.Priority,
		IsActive:          true,
		Conditions:        req.Conditions,
		Actions:           req.Actions,
		CooldownSeconds:   req.CooldownSeconds,
		MaxTriggersPerDay: req.MaxTriggersPerDay,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.AccountID != nil && *req.AccountID != "" {
		rule.AccountID = req.AccountID
	}

	if err := h.rules.Create(rule); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule applies a partial update.
func (h *Handler) UpdateRule(c *gin.Context) {
	var update models.RuleUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "invalid payload")
		return
	}

	rule, err := h.rules.Update(c.Param("id"), &update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule removes a rule. Deleting an unknown rule succeeds.
func (h *Handler) DeleteRule(c *gin.Context) {
	if err := h.rules.Delete(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}
