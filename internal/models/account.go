package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountStatus describes the connection lifecycle of a managed account.
type AccountStatus string

const (
	AccountDisconnected AccountStatus = "disconnected"
	AccountConnecting   AccountStatus = "connecting"
	AccountConnected    AccountStatus = "connected"
	AccountError        AccountStatus = "error"
)

// Account is a managed Telegram user account with its own MTProto session.
// SessionToken holds the AES-GCM encrypted session and is never serialized
// into API responses or logs.
type Account struct {
	ID           string        `gorm:"primaryKey" json:"id"`
	Phone        string        `gorm:"uniqueIndex" json:"phone"`
	APIID        int           `json:"api_id"`
	APIHash      string        `json:"-"`
	SessionToken string        `gorm:"type:text" json:"-"`
	Status       AccountStatus `json:"status"`
	FirstName    string        `json:"first_name,omitempty"`
	LastName     string        `json:"last_name,omitempty"`
	Username     string        `json:"username,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActive   *time.Time    `json:"last_active,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// BeforeCreate generates a UUID for the account if the ID is not yet set.
func (a *Account) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}

// VerificationAttempt tracks an in-progress login handshake. It is created by
// the send-code step and consumed by verify-code; expired attempts are swept
// on access. InterimSession carries the encrypted MTProto session from the
// send-code connection so that sign-in reuses the same auth key.
type VerificationAttempt struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	Phone          string    `gorm:"index" json:"phone"`
	APIID          int       `json:"-"`
	APIHash        string    `json:"-"`
	CodeHash       string    `json:"-"`
	InterimSession string    `gorm:"type:text" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the attempt is past its validity window.
func (v *VerificationAttempt) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}
