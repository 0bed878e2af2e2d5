package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConditionType enumerates the predicate kinds evaluated against an inbound
// message. Unknown types never match.
type ConditionType string

const (
	CondAll           ConditionType = "all"
	CondChatType      ConditionType = "chat_type"
	CondUserID        ConditionType = "user_id"
	CondUsername      ConditionType = "username"
	CondKeyword       ConditionType = "keyword"
	CondChatFilter    ConditionType = "chat_filter"
	CondUserFilter    ConditionType = "user_filter"
	CondMessageFilter ConditionType = "message_filter"
	CondTimeFilter    ConditionType = "time_filter"
)

// TimeRange is an inclusive daily window in "HH:MM" server-local time.
type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Condition is a tagged variant: Type selects which of the parameter fields
// are meaningful. A condition with IsActive=false is skipped during
// evaluation (soft-disable without deletion).
type Condition struct {
	Type     ConditionType `json:"type"`
	IsActive bool          `json:"is_active"`

	// chat_type / user_id / username / keyword literal value.
	Value string `json:"value,omitempty"`

	// keyword / message_filter keyword lists.
	Keywords []string `json:"keywords,omitempty"`

	// chat_filter parameters.
	ChatTypes       []string `json:"chat_types,omitempty"`
	TitleContains   string   `json:"title_contains,omitempty"`
	MinMembers      int      `json:"min_members,omitempty"`
	MaxMembers      int      `json:"max_members,omitempty"`
	ChatIDWhitelist []int64  `json:"chat_id_whitelist,omitempty"`
	ChatIDBlacklist []int64  `json:"chat_id_blacklist,omitempty"`

	// user_filter parameters.
	UserIDs   []int64  `json:"user_ids,omitempty"`
	Usernames []string `json:"usernames,omitempty"`

	// message_filter parameters.
	MessageTypes []string `json:"message_types,omitempty"`

	// time_filter parameters.
	TimeRanges []TimeRange `json:"time_ranges,omitempty"`
}

// UnmarshalJSON applies defaults: a condition is active unless explicitly
// disabled.
func (c *Condition) UnmarshalJSON(data []byte) error {
	type alias Condition
	a := alias{IsActive: true}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = Condition(a)
	return nil
}

// ActionType enumerates the response behaviors a rule can dispatch.
type ActionType string

const (
	ActionSendText    ActionType = "send_text"
	ActionSendImage   ActionType = "send_image"
	ActionSendBoth    ActionType = "send_both"
	ActionSendContent ActionType = "send_content"
	ActionAddReaction ActionType = "add_reaction"
)

// MediaContentType selects the variant of a MediaContent item.
type MediaContentType string

const (
	ContentText    MediaContentType = "text"
	ContentImage   MediaContentType = "image"
	ContentSticker MediaContentType = "sticker"
	ContentEmoji   MediaContentType = "emoji"
)

// MediaContent is one piece of content within a send_content action. Image
// and sticker items reference a MediaFile by id; text and emoji are inlined.
type MediaContent struct {
	Type    MediaContentType `json:"type"`
	Text    string           `json:"text,omitempty"`
	MediaID string           `json:"media_id,omitempty"`
	Emoji   string           `json:"emoji,omitempty"`
}

// Button is a single inline keyboard button attached to a sent message.
type Button struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// Action is a tagged variant describing one unit of response behavior.
// DelaySeconds of zero means the dispatcher picks a randomized delay from
// the bot settings.
type Action struct {
	Type               ActionType       `json:"type"`
	Text               string           `json:"text,omitempty"`
	ImageIDs           []string         `json:"image_ids,omitempty"`
	Content            []MediaContent   `json:"content,omitempty"`
	Reaction           string           `json:"reaction,omitempty"`
	DelaySeconds       int              `json:"delay_seconds"`
	DeleteAfterSeconds *int             `json:"delete_after_seconds,omitempty"`
	ReplyToMessage     bool             `json:"reply_to_message"`
	InlineButtons      [][]Button       `json:"inline_buttons,omitempty"`
}

// ConditionList stores conditions as a JSONB column.
type ConditionList []Condition

func (l ConditionList) Value() (driver.Value, error) {
	if l == nil {
		l = ConditionList{}
	}
	return json.Marshal(l)
}

func (l *ConditionList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// ActionList stores actions as a JSONB column.
type ActionList []Action

func (l ActionList) Value() (driver.Value, error) {
	if l == nil {
		l = ActionList{}
	}
	return json.Marshal(l)
}

func (l *ActionList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}

// Rule is a named, prioritized condition→action mapping. AccountID of nil
// applies the rule to every account. Higher priority is evaluated first;
// equal priorities fall back to creation order.
type Rule struct {
	ID                string        `gorm:"primaryKey" json:"id"`
	Name              string        `json:"name"`
	Priority          int           `gorm:"index" json:"priority"`
	IsActive          bool          `json:"is_active"`
	AccountID         *string       `gorm:"index" json:"account_id"`
	Conditions        ConditionList `gorm:"type:jsonb" json:"conditions"`
	Actions           ActionList    `gorm:"type:jsonb" json:"actions"`
	CooldownSeconds   int           `json:"cooldown_seconds"`
	MaxTriggersPerDay int           `json:"max_triggers_per_day"`
	UsageCount        int64         `json:"usage_count"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// BeforeCreate generates a UUID for the rule if the ID is not yet set.
func (r *Rule) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// RuleUpdate carries a partial update; nil fields are left untouched.
type RuleUpdate struct {
	Name              *string        `json:"name"`
	Priority          *int           `json:"priority"`
	IsActive          *bool          `json:"is_active"`
	AccountID         *string        `json:"account_id"`
	Conditions        *ConditionList `json:"conditions"`
	Actions           *ActionList    `json:"actions"`
	CooldownSeconds   *int           `json:"cooldown_seconds"`
	MaxTriggersPerDay *int           `json:"max_triggers_per_day"`
}

// Apply copies the set fields onto the rule.
func (u *RuleUpdate) Apply(r *Rule) {
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.Priority != nil {
		r.Priority = *u.Priority
	}
	if u.IsActive != nil {
		r.IsActive = *u.IsActive
	}
	if u.AccountID != nil {
		if *u.AccountID == "" {
			r.AccountID = nil
		} else {
			r.AccountID = u.AccountID
		}
	}
	if u.Conditions != nil {
		r.Conditions = *u.Conditions
	}
	if u.Actions != nil {
		r.Actions = *u.Actions
	}
	if u.CooldownSeconds != nil {
		r.CooldownSeconds = *u.CooldownSeconds
	}
	if u.MaxTriggersPerDay != nil {
		r.MaxTriggersPerDay = *u.MaxTriggersPerDay
	}
}
