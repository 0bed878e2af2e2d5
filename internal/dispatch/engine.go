// Package dispatch turns matched rules into outgoing Telegram actions,
// applying delays, cooldowns and daily caps on the way.
package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"userbotgo/backend/internal/models"
	"userbotgo/backend/internal/rules"

	"github.com/rs/zerolog/log"
)

// Rules is the classifier-facing slice of the rule repository.
type Rules interface {
	ActiveRulesFor(accountID string) []models.Rule
	IncrementUsage(id string)
}

// Limiter is the Redis-backed reservation surface. All reservations are
// linearizable: a true return means the slot is taken.
type Limiter interface {
	ReserveDailyResponse(max int) (bool, error)
	ReserveRuleDaily(ruleID string, max int) (bool, error)
	AcquireRuleCooldown(ruleID string, cooldown time.Duration) (bool, error)
}

// SettingsSource yields the current bot settings.
type SettingsSource interface {
	GetSettings() (*models.BotSettings, error)
}

// Recorder receives activity log entries.
type Recorder interface {
	Record(entry *models.LogEntry)
}

// MediaStore resolves media ids referenced by actions.
type MediaStore interface {
	GetMedia(id string) (*models.MediaFile, error)
	IncrementMediaUsage(id string) error
}

// Alerter is notified of operationally interesting events. Implementations
// must tolerate being called from multiple goroutines.
type Alerter interface {
	DailyCapReached(max int)
}

// SendOptions carries the optional decorations of an outgoing message.
type SendOptions struct {
	ReplyTo int
	Buttons [][]models.Button
}

// Sender is the per-account outbound transport. Send methods return the id
// of the sent message so it can be deleted later.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, opts SendOptions) (int, error)
	SendPhoto(ctx context.Context, chatID int64, path, caption string, opts SendOptions) (int, error)
	SendReaction(ctx context.Context, chatID int64, messageID int, emoticon string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Engine evaluates inbound messages and dispatches rule actions. Trigger
// acceptance (cooldown, per-rule cap, global cap) happens synchronously in
// HandleMessage so concurrent workers contend on Redis, then the actions run
// on their own goroutine so the account's update loop is never blocked by
// response delays.
type Engine struct {
	rules      Rules
	limiter    Limiter
	settings   SettingsSource
	recorder   Recorder
	media      MediaStore
	alerter    Alerter
	uploadsDir string

	wg sync.WaitGroup

	// Injection points for deterministic tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewEngine wires the dispatch engine. alerter may be nil.
func NewEngine(r Rules, l Limiter, s SettingsSource, rec Recorder, m MediaStore, a Alerter, uploadsDir string) *Engine {
	return &Engine{
		rules:      r,
		limiter:    l,
		settings:   s,
		recorder:   rec,
		media:      m,
		alerter:    a,
		uploadsDir: uploadsDir,
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

// Wait blocks until all in-flight action goroutines have finished. Called
// during shutdown after the account workers have stopped.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// HandleMessage classifies one inbound message and, when a rule fires,
// schedules its actions. The method returns as soon as the trigger decision
// is made.
func (e *Engine) HandleMessage(ctx context.Context, account *models.Account, msg models.IncomingMessage, sender Sender) {
	settings, err := e.settings.GetSettings()
	if err != nil {
		log.Error().Err(err).Msg("failed to load settings, message dropped")
		return
	}

	if ok, reason := rules.Gate(msg, settings); !ok {
		if settings.LogMessages {
			e.recordOutcome(msg, nil, "gated: "+reason)
		}
		return
	}

	candidates := e.rules.ActiveRulesFor(msg.AccountID)
	rule := rules.Match(msg, candidates, e.now())
	if rule == nil {
		if settings.LogMessages {
			e.recordOutcome(msg, nil, "no_match")
		}
		return
	}

	if !e.reserve(rule, settings, msg) {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runActions(ctx, msg, rule, settings, sender)
	}()
}

// reserve claims the cooldown, per-rule and global daily slots for one
// trigger. Refusals are logged as skips; a reservation that succeeded before
// a later one refused is intentionally not rolled back, the earlier slot is
// simply consumed. The cooldown arms here, at acceptance, so it holds for
// the full window even when every send of the trigger later fails.
func (e *Engine) reserve(rule *models.Rule, settings *models.BotSettings, msg models.IncomingMessage) bool {
	if rule.CooldownSeconds > 0 {
		ok, err := e.limiter.AcquireRuleCooldown(rule.ID, time.Duration(rule.CooldownSeconds)*time.Second)
		if err != nil {
			log.Error().Err(err).Str("rule_id", rule.ID).Msg("cooldown check failed")
			return false
		}
		if !ok {
			e.recordOutcome(msg, rule, "skipped: cooldown active")
			return false
		}
	}

	if rule.MaxTriggersPerDay > 0 {
		ok, err := e.limiter.ReserveRuleDaily(rule.ID, rule.MaxTriggersPerDay)
		if err != nil {
			log.Error().Err(err).Str("rule_id", rule.ID).Msg("rule cap check failed")
			return false
		}
		if !ok {
			e.recordOutcome(msg, rule, "skipped: rule daily cap reached")
			return false
		}
	}

	if settings.MaxDailyResponses > 0 {
		ok, err := e.limiter.ReserveDailyResponse(settings.MaxDailyResponses)
		if err != nil {
			log.Error().Err(err).Msg("daily cap check failed")
			return false
		}
		if !ok {
			e.recordOutcome(msg, rule, "skipped: daily response cap reached")
			if e.alerter != nil {
				e.alerter.DailyCapReached(settings.MaxDailyResponses)
			}
			return false
		}
	}
	return true
}

// runActions executes the rule's actions in order. Each action sleeps its
// delay, sends, and records its own log entry; one action failing does not
// stop the rest. Usage counters bump once per trigger with at least one
// successful action.
func (e *Engine) runActions(ctx context.Context, msg models.IncomingMessage, rule *models.Rule, settings *models.BotSettings, sender Sender) {
	succeeded := false
	for i := range rule.Actions {
		action := &rule.Actions[i]

		if err := e.sleep(ctx, e.actionDelay(action, settings)); err != nil {
			// Shutdown or account stop while waiting. Nothing was sent.
			log.Debug().Str("rule_id", rule.ID).Msg("dispatch cancelled during delay")
			return
		}

		sentIDs, err := e.execute(ctx, msg, action, sender)
		entry := &models.LogEntry{
			AccountID:   msg.AccountID,
			ChatID:      msg.ChatID,
			ChatType:    msg.ChatType,
			UserID:      msg.UserID,
			Username:    msg.Username,
			MessageText: msg.Text,
			RuleID:      &rule.ID,
			ActionTaken: string(action.Type),
			Success:     err == nil,
		}
		if err != nil {
			entry.ErrorMessage = err.Error()
			log.Warn().Err(err).
				Str("rule_id", rule.ID).
				Str("action", string(action.Type)).
				Msg("action failed")
		} else {
			succeeded = true
		}
		e.recorder.Record(entry)

		if err == nil && action.DeleteAfterSeconds != nil && len(sentIDs) > 0 {
			e.scheduleDelete(ctx, sender, msg.ChatID, sentIDs, *action.DeleteAfterSeconds)
		}
	}

	if succeeded {
		e.rules.IncrementUsage(rule.ID)
	}
}

// actionDelay resolves the pre-send delay: an explicit per-action value, or
// a randomized one from the settings window.
func (e *Engine) actionDelay(action *models.Action, settings *models.BotSettings) time.Duration {
	if action.DelaySeconds > 0 {
		return time.Duration(action.DelaySeconds) * time.Second
	}
	min, max := settings.ResponseDelayMin, settings.ResponseDelayMax
	if max < min {
		max = min
	}
	seconds := min
	if max > min {
		seconds = min + rand.Intn(max-min+1)
	}
	return time.Duration(seconds) * time.Second
}

// execute performs one action and returns the ids of the messages it sent.
func (e *Engine) execute(ctx context.Context, msg models.IncomingMessage, action *models.Action, sender Sender) ([]int, error) {
	opts := SendOptions{Buttons: action.InlineButtons}
	if action.ReplyToMessage {
		opts.ReplyTo = msg.MessageID
	}

	switch action.Type {
	case models.ActionSendText:
		id, err := sender.SendText(ctx, msg.ChatID, action.Text, opts)
		if err != nil {
			return nil, err
		}
		return []int{id}, nil

	case models.ActionSendImage, models.ActionSendBoth:
		return e.sendImages(ctx, msg.ChatID, action, opts, sender)

	case models.ActionSendContent:
		return e.sendContent(ctx, msg.ChatID, action.Content, opts, sender)

	case models.ActionAddReaction:
		if err := sender.SendReaction(ctx, msg.ChatID, msg.MessageID, action.Reaction); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown action type %q", action.Type)
	}
}

// sendImages sends the action's images; the first carries the text as its
// caption. A send_both action with no images degrades to plain text.
func (e *Engine) sendImages(ctx context.Context, chatID int64, action *models.Action, opts SendOptions, sender Sender) ([]int, error) {
	if len(action.ImageIDs) == 0 {
		if action.Type == models.ActionSendBoth && action.Text != "" {
			id, err := sender.SendText(ctx, chatID, action.Text, opts)
			if err != nil {
				return nil, err
			}
			return []int{id}, nil
		}
		return nil, fmt.Errorf("action has no images")
	}

	var sent []int
	for i, mediaID := range action.ImageIDs {
		path, err := e.mediaPath(mediaID)
		if err != nil {
			return sent, err
		}
		caption := ""
		if i == 0 {
			caption = action.Text
		}
		id, err := sender.SendPhoto(ctx, chatID, path, caption, opts)
		if err != nil {
			return sent, err
		}
		sent = append(sent, id)
	}
	return sent, nil
}

// sendContent walks a mixed content list in order.
func (e *Engine) sendContent(ctx context.Context, chatID int64, content []models.MediaContent, opts SendOptions, sender Sender) ([]int, error) {
	var sent []int
	for _, item := range content {
		switch item.Type {
		case models.ContentText:
			id, err := sender.SendText(ctx, chatID, item.Text, opts)
			if err != nil {
				return sent, err
			}
			sent = append(sent, id)
		case models.ContentEmoji:
			id, err := sender.SendText(ctx, chatID, item.Emoji, opts)
			if err != nil {
				return sent, err
			}
			sent = append(sent, id)
		case models.ContentImage, models.ContentSticker:
			path, err := e.mediaPath(item.MediaID)
			if err != nil {
				return sent, err
			}
			id, err := sender.SendPhoto(ctx, chatID, path, item.Text, opts)
			if err != nil {
				return sent, err
			}
			sent = append(sent, id)
		default:
			return sent, fmt.Errorf("unknown content type %q", item.Type)
		}
	}
	return sent, nil
}

// mediaPath resolves a media id to a file on disk and bumps its usage.
func (e *Engine) mediaPath(mediaID string) (string, error) {
	file, err := e.media.GetMedia(mediaID)
	if err != nil {
		return "", fmt.Errorf("media %s: %w", mediaID, err)
	}
	if err := e.media.IncrementMediaUsage(file.ID); err != nil {
		log.Warn().Err(err).Str("media_id", file.ID).Msg("failed to bump media usage")
	}
	return filepath.Join(e.uploadsDir, file.Filename), nil
}

// scheduleDelete removes the sent messages after the configured lifetime.
func (e *Engine) scheduleDelete(ctx context.Context, sender Sender, chatID int64, messageIDs []int, afterSeconds int) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.sleep(ctx, time.Duration(afterSeconds)*time.Second); err != nil {
			return
		}
		for _, id := range messageIDs {
			if err := sender.DeleteMessage(ctx, chatID, id); err != nil {
				log.Warn().Err(err).Int64("chat_id", chatID).Int("message_id", id).
					Msg("failed to delete message")
			}
		}
	}()
}

// recordOutcome logs a non-dispatch outcome (gated, unmatched, skipped).
// These carry Success=true: nothing failed, nothing was sent.
func (e *Engine) recordOutcome(msg models.IncomingMessage, rule *models.Rule, action string) {
	entry := &models.LogEntry{
		AccountID:   msg.AccountID,
		ChatID:      msg.ChatID,
		ChatType:    msg.ChatType,
		UserID:      msg.UserID,
		Username:    msg.Username,
		MessageText: msg.Text,
		ActionTaken: action,
		Success:     true,
	}
	if rule != nil {
		entry.RuleID = &rule.ID
	}
	e.recorder.Record(entry)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
