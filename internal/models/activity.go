package models

import "time"

// LogEntry records one evaluation outcome for one inbound message. Entries
// are append-only and never mutated.
type LogEntry struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	AccountID    string    `gorm:"index" json:"account_id"`
	ChatID       int64     `json:"chat_id"`
	ChatType     string    `json:"chat_type"`
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	MessageText  string    `json:"message_text,omitempty"`
	RuleID       *string   `gorm:"index" json:"rule_id,omitempty"`
	ActionTaken  string    `json:"action_taken"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
}

// ActivityStats aggregates log counters for the admin dashboard. SuccessRate
// is a percentage and zero when there are no entries.
type ActivityStats struct {
	TotalResponses      int64   `json:"total_responses"`
	SuccessfulResponses int64   `json:"successful_responses"`
	FailedResponses     int64   `json:"failed_responses"`
	ResponsesToday      int64   `json:"responses_today"`
	SuccessRate         float64 `json:"success_rate"`
}
