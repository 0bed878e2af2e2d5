package rules

import (
	"strconv"
	"strings"
	"time"

	"userbotgo/backend/internal/models"
)

// Gate reasons returned when a message is rejected before rule matching.
const (
	GateBlacklisted     = "sender blacklisted"
	GateNotWhitelisted  = "sender not whitelisted"
	GateChatTypeBlocked = "chat type not allowed"
)

// Gate applies the global pre-filters to an inbound message. Blacklist wins
// over whitelist, whitelist (when non-empty) is exclusive, and the chat type
// must be in the allowed set. The returned reason is empty when the message
// passes.
func Gate(msg models.IncomingMessage, settings *models.BotSettings) (bool, string) {
	if settings.IsBlacklisted(msg.UserID) {
		return false, GateBlacklisted
	}
	if !settings.IsWhitelisted(msg.UserID) {
		return false, GateNotWhitelisted
	}
	if !settings.ChatTypeAllowed(msg.ChatType) {
		return false, GateChatTypeBlocked
	}
	return true, ""
}

// Match returns the first rule whose active conditions all hold for the
// message, or nil when none matches. The slice must already be in evaluation
// order; matching stops at the first hit.
func Match(msg models.IncomingMessage, rules []models.Rule, now time.Time) *models.Rule {
	for i := range rules {
		if ruleMatches(msg, &rules[i], now) {
			return &rules[i]
		}
	}
	return nil
}

// ruleMatches ANDs the rule's active conditions. A rule with no active
// conditions never matches; opting into everything requires an explicit
// "all" condition.
func ruleMatches(msg models.IncomingMessage, rule *models.Rule, now time.Time) bool {
	evaluated := 0
	for i := range rule.Conditions {
		cond := &rule.Conditions[i]
		if !cond.IsActive {
			continue
		}
		evaluated++
		if !conditionMatches(msg, cond, now) {
			return false
		}
	}
	return evaluated > 0
}

func conditionMatches(msg models.IncomingMessage, cond *models.Condition, now time.Time) bool {
	switch cond.Type {
	case models.CondAll:
		return true
	case models.CondChatType:
		return matchChatType(msg, cond)
	case models.CondUserID:
		return matchUserID(msg, cond)
	case models.CondUsername:
		return matchUsername(msg, cond)
	case models.CondKeyword:
		return matchKeyword(msg, cond)
	case models.CondChatFilter:
		return matchChatFilter(msg, cond)
	case models.CondUserFilter:
		return matchUserFilter(msg, cond)
	case models.CondMessageFilter:
		return matchMessageFilter(msg, cond)
	case models.CondTimeFilter:
		return matchTimeFilter(cond, now)
	default:
		return false
	}
}

func matchChatType(msg models.IncomingMessage, cond *models.Condition) bool {
	if cond.Value != "" {
		return msg.ChatType == cond.Value
	}
	for _, t := range cond.ChatTypes {
		if msg.ChatType == t {
			return true
		}
	}
	return false
}

func matchUserID(msg models.IncomingMessage, cond *models.Condition) bool {
	if cond.Value != "" {
		id, err := strconv.ParseInt(cond.Value, 10, 64)
		return err == nil && msg.UserID == id
	}
	for _, id := range cond.UserIDs {
		if msg.UserID == id {
			return true
		}
	}
	return false
}

func matchUsername(msg models.IncomingMessage, cond *models.Condition) bool {
	username := normalizeUsername(msg.Username)
	if username == "" {
		return false
	}
	if cond.Value != "" {
		return username == normalizeUsername(cond.Value)
	}
	for _, u := range cond.Usernames {
		if username == normalizeUsername(u) {
			return true
		}
	}
	return false
}

// matchKeyword does case-insensitive substring matching against the message
// text; any keyword hit is enough.
func matchKeyword(msg models.IncomingMessage, cond *models.Condition) bool {
	text := strings.ToLower(msg.Text)
	if text == "" {
		return false
	}
	if cond.Value != "" && strings.Contains(text, strings.ToLower(cond.Value)) {
		return true
	}
	for _, kw := range cond.Keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// matchChatFilter evaluates chat-level constraints. The chat id blacklist
// wins over the whitelist; a whitelist hit bypasses the chat type check but
// title and member bounds still apply.
func matchChatFilter(msg models.IncomingMessage, cond *models.Condition) bool {
	for _, id := range cond.ChatIDBlacklist {
		if msg.ChatID == id {
			return false
		}
	}

	whitelisted := false
	for _, id := range cond.ChatIDWhitelist {
		if msg.ChatID == id {
			whitelisted = true
			break
		}
	}
	if len(cond.ChatIDWhitelist) > 0 && !whitelisted {
		return false
	}

	if !whitelisted && len(cond.ChatTypes) > 0 {
		typeOK := false
		for _, t := range cond.ChatTypes {
			if msg.ChatType == t {
				typeOK = true
				break
			}
		}
		if !typeOK {
			return false
		}
	}

	if cond.TitleContains != "" &&
		!strings.Contains(strings.ToLower(msg.ChatTitle), strings.ToLower(cond.TitleContains)) {
		return false
	}
	if cond.MinMembers > 0 && msg.ChatMembers < cond.MinMembers {
		return false
	}
	if cond.MaxMembers > 0 && msg.ChatMembers > cond.MaxMembers {
		return false
	}
	return true
}

// matchUserFilter is an OR across the id and username lists.
func matchUserFilter(msg models.IncomingMessage, cond *models.Condition) bool {
	for _, id := range cond.UserIDs {
		if msg.UserID == id {
			return true
		}
	}
	username := normalizeUsername(msg.Username)
	if username != "" {
		for _, u := range cond.Usernames {
			if username == normalizeUsername(u) {
				return true
			}
		}
	}
	return false
}

func matchMessageFilter(msg models.IncomingMessage, cond *models.Condition) bool {
	if len(cond.MessageTypes) > 0 {
		typeOK := false
		for _, t := range cond.MessageTypes {
			if msg.MessageType == t {
				typeOK = true
				break
			}
		}
		if !typeOK {
			return false
		}
	}
	if len(cond.Keywords) > 0 {
		text := strings.ToLower(msg.Text)
		hit := false
		for _, kw := range cond.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// matchTimeFilter reports whether now falls in any of the inclusive windows.
// A window whose start is after its end wraps past midnight. Unparseable
// ranges never match.
func matchTimeFilter(cond *models.Condition, now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	for _, r := range cond.TimeRanges {
		from, okFrom := parseClock(r.From)
		to, okTo := parseClock(r.To)
		if !okFrom || !okTo {
			continue
		}
		if from <= to {
			if minute >= from && minute <= to {
				return true
			}
		} else if minute >= from || minute <= to {
			return true
		}
	}
	return false
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimPrefix(u, "@"))
}
