package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// BotSettings is the single process-wide configuration row. The daily
// response counter is kept in Redis keyed by date, so DailyResponseCount and
// LastResetDate are filled at read time rather than persisted here.
type BotSettings struct {
	ID                string         `gorm:"primaryKey" json:"id"`
	AutoStart         bool           `json:"auto_start"`
	LogMessages       bool           `json:"log_messages"`
	ResponseDelayMin  int            `json:"response_delay_min"`
	ResponseDelayMax  int            `json:"response_delay_max"`
	MaxDailyResponses int            `json:"max_daily_responses"`
	AllowedChatTypes  pq.StringArray `gorm:"type:text[]" json:"allowed_chat_types"`
	BlacklistedUsers  pq.StringArray `gorm:"type:text[]" json:"blacklisted_users"`
	WhitelistedUsers  pq.StringArray `gorm:"type:text[]" json:"whitelisted_users"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`

	DailyResponseCount int64  `gorm:"-" json:"daily_response_count"`
	LastResetDate      string `gorm:"-" json:"last_reset_date"`
}

// BeforeCreate generates a UUID for the settings row if the ID is not set.
func (s *BotSettings) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}

// DefaultSettings returns the settings created on first startup, mirroring
// the product defaults of the admin UI.
func DefaultSettings() *BotSettings {
	return &BotSettings{
		AutoStart:         false,
		LogMessages:       true,
		ResponseDelayMin:  1,
		ResponseDelayMax:  5,
		MaxDailyResponses: 1000,
		AllowedChatTypes:  pq.StringArray{"private", "group", "supergroup"},
		BlacklistedUsers:  pq.StringArray{},
		WhitelistedUsers:  pq.StringArray{},
	}
}

// IsBlacklisted reports whether the sender id is on the blacklist.
func (s *BotSettings) IsBlacklisted(userID int64) bool {
	return containsID(s.BlacklistedUsers, userID)
}

// IsWhitelisted reports whether the sender id is on the whitelist. An empty
// whitelist allows everyone.
func (s *BotSettings) IsWhitelisted(userID int64) bool {
	if len(s.WhitelistedUsers) == 0 {
		return true
	}
	return containsID(s.WhitelistedUsers, userID)
}

// ChatTypeAllowed reports whether the chat type is permitted for responses.
func (s *BotSettings) ChatTypeAllowed(chatType string) bool {
	for _, t := range s.AllowedChatTypes {
		if t == chatType {
			return true
		}
	}
	return false
}

func containsID(list pq.StringArray, userID int64) bool {
	for _, v := range list {
		if v == formatID(userID) {
			return true
		}
	}
	return false
}

// SettingsUpdate carries a partial settings update; nil fields are ignored.
type SettingsUpdate struct {
	AutoStart         *bool           `json:"auto_start"`
	LogMessages       *bool           `json:"log_messages"`
	ResponseDelayMin  *int            `json:"response_delay_min"`
	ResponseDelayMax  *int            `json:"response_delay_max"`
	MaxDailyResponses *int            `json:"max_daily_responses"`
	AllowedChatTypes  *pq.StringArray `json:"allowed_chat_types"`
	BlacklistedUsers  *pq.StringArray `json:"blacklisted_users"`
	WhitelistedUsers  *pq.StringArray `json:"whitelisted_users"`
}

// Apply copies the set fields onto the settings.
func (u *SettingsUpdate) Apply(s *BotSettings) {
	if u.AutoStart != nil {
		s.AutoStart = *u.AutoStart
	}
	if u.LogMessages != nil {
		s.LogMessages = *u.LogMessages
	}
	if u.ResponseDelayMin != nil {
		s.ResponseDelayMin = *u.ResponseDelayMin
	}
	if u.ResponseDelayMax != nil {
		s.ResponseDelayMax = *u.ResponseDelayMax
	}
	if u.MaxDailyResponses != nil {
		s.MaxDailyResponses = *u.MaxDailyResponses
	}
	if u.AllowedChatTypes != nil {
		s.AllowedChatTypes = *u.AllowedChatTypes
	}
	if u.BlacklistedUsers != nil {
		s.BlacklistedUsers = *u.BlacklistedUsers
	}
	if u.WhitelistedUsers != nil {
		s.WhitelistedUsers = *u.WhitelistedUsers
	}
}
