package handler

import (
	"errors"
	"net/http"

	"userbotgo/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type sendCodeRequest struct {
	Phone   string `json:"phone" binding:"required"`
	APIID   int    `json:"api_id" binding:"required"`
	APIHash string `json:"api_hash" binding:"required"`
}

// SendCode starts the login handshake for a phone number.
func (h *Handler) SendCode(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "phone, api_id and api_hash are required")
		return
	}

	id, err := h.accounts.BeginLogin(c.Request.Context(), req.Phone, req.APIID, req.APIHash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verification_id": id})
}

type verifyCodeRequest struct {
	VerificationID string `json:"verification_id" binding:"required"`
	Code           string `json:"code" binding:"required"`
}

// VerifyCode submits the confirmation code. When the account has two-factor
// auth enabled the response carries requires_2fa and the client follows up
// on /verify-2fa with the same verification id.
func (h *Handler) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "verification_id and code are required")
		return
	}

	account, err := h.accounts.CompleteLogin(c.Request.Context(), req.VerificationID, req.Code)
	if errors.Is(err, models.Err2FARequired) {
		c.JSON(http.StatusOK, gin.H{"requires_2fa": true})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

type verify2FARequest struct {
	VerificationID string `json:"verification_id" binding:"required"`
	Password       string `json:"password" binding:"required"`
}

// Verify2FA completes a login that required the cloud password.
func (h *Handler) Verify2FA(c *gin.Context) {
	var req verify2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "verification_id and password are required")
		return
	}

	account, err := h.accounts.Submit2FA(c.Request.Context(), req.VerificationID, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// ListAccounts returns all managed accounts. Session tokens and API hashes
// never appear in the payload.
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.store.ListAccounts()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

// GetAccount returns one account.
func (h *Handler) GetAccount(c *gin.Context) {
	account, err := h.store.GetAccountByID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

type accountUpdateRequest struct {
	APIID   *int    `json:"api_id"`
	APIHash *string `json:"api_hash"`
}

// UpdateAccount rotates the account's API credentials. The session itself
// can only be replaced by logging in again.
func (h *Handler) UpdateAccount(c *gin.Context) {
	var req accountUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}

	account, err := h.store.GetAccountByID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if req.APIID != nil {
		account.APIID = *req.APIID
	}
	if req.APIHash != nil {
		account.APIHash = *req.APIHash
	}
	if err := h.store.SaveAccount(account); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// DeleteAccount stops the account's worker, revokes the session and removes
// the row. Deletion always wins: a failed revoke does not keep the account.
func (h *Handler) DeleteAccount(c *gin.Context) {
	id := c.Param("id")
	account, err := h.store.GetAccountByID(id)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.bot.Stop(id); err != nil {
		respondError(c, err)
		return
	}
	h.accounts.Forget(c.Request.Context(), account)

	if err := h.store.DeleteAccount(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
