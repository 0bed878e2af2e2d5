package telegram

import (
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// AlertService pushes operator notifications through a regular bot account.
// It is optional; without ADMIN_BOT_TOKEN the service runs silently.
type AlertService struct {
	bot    *tgbotapi.BotAPI
	chatID int64

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// alertCooldown stops a flapping account from spamming the operator chat.
const alertCooldown = 10 * time.Minute

// NewAlertService Constructor. Returns nil when no token is configured.
func NewAlertService(token string, chatID int64) (*AlertService, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("alert bot: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("alert bot connected")
	return &AlertService{
		bot:      bot,
		chatID:   chatID,
		lastSent: make(map[string]time.Time),
	}, nil
}

// AccountError reports that an account exhausted its reconnect attempts.
func (a *AlertService) AccountError(phone, message string) {
	a.send("account_error:"+phone,
		fmt.Sprintf("⚠️ Account %s is down: %s", phone, message))
}

// DailyCapReached reports that the global response cap was hit.
func (a *AlertService) DailyCapReached(max int) {
	a.send("daily_cap",
		fmt.Sprintf("🛑 Daily response cap of %d reached, responses paused until midnight", max))
}

func (a *AlertService) send(key, text string) {
	a.mu.Lock()
	if last, ok := a.lastSent[key]; ok && time.Since(last) < alertCooldown {
		a.mu.Unlock()
		return
	}
	a.lastSent[key] = time.Now()
	a.mu.Unlock()

	msg := tgbotapi.NewMessage(a.chatID, text)
	if _, err := a.bot.Send(msg); err != nil {
		log.Warn().Err(err).Msg("failed to send alert")
	}
}
