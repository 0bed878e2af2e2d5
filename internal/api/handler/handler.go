// Package handler exposes the REST and websocket surface of the service.
package handler

import (
	"context"
	"errors"
	"net/http"

	"userbotgo/backend/internal/models"
	"userbotgo/backend/internal/rules"
	"userbotgo/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// AccountService is the login flow surface. Implemented by
// telegram.AuthService.
type AccountService interface {
	BeginLogin(ctx context.Context, phone string, apiID int, apiHash string) (string, error)
	CompleteLogin(ctx context.Context, verificationID, code string) (*models.Account, error)
	Submit2FA(ctx context.Context, verificationID, password string) (*models.Account, error)
	Forget(ctx context.Context, account *models.Account)
}

// BotController starts and stops account workers. Implemented by
// telegram.Supervisor.
type BotController interface {
	Start(accountID string) error
	Stop(accountID string) error
	StartAll() (int, error)
	StopAll()
	ActiveCount() int
}

// FeedSource is the live activity feed. Implemented by activity.Logger.
type FeedSource interface {
	Subscribe() (<-chan models.LogEntry, func())
}

// Handler binds the HTTP routes to the services.
type Handler struct {
	store      storage.Storage
	accounts   AccountService
	bot        BotController
	rules      *rules.Repository
	feed       FeedSource
	uploadsDir string
}

// NewHandler Constructor
func NewHandler(store storage.Storage, accounts AccountService, bot BotController, repo *rules.Repository, feed FeedSource, uploadsDir string) *Handler {
	return &Handler{
		store:      store,
		accounts:   accounts,
		bot:        bot,
		rules:      repo,
		feed:       feed,
		uploadsDir: uploadsDir,
	}
}

// RegisterRoutes mounts the API under /api.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	accounts := api.Group("/accounts")
	{
		accounts.POST("/send-code", h.SendCode)
		accounts.POST("/verify-code", h.VerifyCode)
		accounts.POST("/verify-2fa", h.Verify2FA)
		accounts.GET("", h.ListAccounts)
		accounts.GET("/:id", h.GetAccount)
		accounts.PUT("/:id", h.UpdateAccount)
		accounts.DELETE("/:id", h.DeleteAccount)
	}

	bot := api.Group("/bot")
	{
		bot.POST("/start", h.StartAll)
		bot.POST("/start/:account_id", h.StartAccount)
		bot.POST("/stop", h.StopAll)
		bot.POST("/stop/:account_id", h.StopAccount)
		bot.GET("/status", h.BotStatus)
	}

	rulesGroup := api.Group("/rules")
	{
		rulesGroup.GET("", h.ListRules)
		rulesGroup.POST("", h.CreateRule)
		rulesGroup.GET("/:id", h.GetRule)
		rulesGroup.PUT("/:id", h.UpdateRule)
		rulesGroup.DELETE("/:id", h.DeleteRule)
	}

	media := api.Group("/media")
	{
		media.POST("/upload", h.UploadMedia)
		media.GET("", h.ListMedia)
		media.GET("/:id", h.GetMedia)
		media.DELETE("/:id", h.DeleteMedia)
	}

	logs := api.Group("/logs")
	{
		logs.GET("", h.ListLogs)
		logs.GET("/stats", h.LogStats)
		logs.GET("/feed", h.LogFeed)
	}

	api.GET("/settings", h.GetSettings)
	api.PUT("/settings", h.UpdateSettings)
}

// respondError maps the shared error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidCode),
		errors.Is(err, models.ErrInvalidPassword),
		errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrExpiredVerification),
		errors.Is(err, models.ErrMissingSession):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, models.ErrAlreadyRunning):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
