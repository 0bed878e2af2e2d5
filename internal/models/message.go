package models

import (
	"strconv"
	"time"
)

// IncomingMessage is the normalized form of an inbound Telegram update,
// produced by the transport adapter and consumed by the classifier. It is
// runtime-only and never persisted.
type IncomingMessage struct {
	AccountID   string
	MessageID   int
	ChatID      int64
	ChatType    string // private, group, supergroup, channel
	ChatTitle   string
	ChatMembers int
	UserID      int64
	Username    string
	FirstName   string
	Text        string
	MessageType string // text, photo, video, voice, sticker, animation, document
	Timestamp   time.Time
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
