package storage

import (
	"encoding/json"
	"time"

	"userbotgo/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// Daily counters live in Redis keyed by date, so advancing past midnight
// implicitly resets them. Keys expire after two days.
const (
	dailyKeyPrefix     = "daily_responses:"
	ruleDailyKeyPrefix = "rule_daily:"
	cooldownKeyPrefix  = "cooldown:"
	feedChannel        = "activity:feed"
	dailyKeyTTL        = 48 * 60 * 60 // seconds
)

// reserveScript increments a counter only while it is below the cap, making
// the check-and-increment linearizable across concurrent account workers.
var reserveScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
    return 0
end
redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

func dayKeySuffix(now time.Time) string {
	return now.Format("2006-01-02")
}

// startOfDay returns local midnight, so SQL date windows agree with the
// local dates the Redis daily keys are keyed by.
func startOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// ReserveDailyResponse reserves one slot of the global daily response cap.
// Returns false once the cap is reached; the counter never exceeds max.
func (s *Service) ReserveDailyResponse(max int) (bool, error) {
	key := dailyKeyPrefix + dayKeySuffix(time.Now())
	n, err := reserveScript.Run(s.Ctx, s.Redis, []string{key}, max, dailyKeyTTL).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReserveRuleDaily reserves one slot of a rule's per-day trigger cap.
func (s *Service) ReserveRuleDaily(ruleID string, max int) (bool, error) {
	key := ruleDailyKeyPrefix + ruleID + ":" + dayKeySuffix(time.Now())
	n, err := reserveScript.Run(s.Ctx, s.Redis, []string{key}, max, dailyKeyTTL).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AcquireRuleCooldown marks the rule as triggered for the cooldown window.
// Returns false while a previous trigger is still cooling down. The key's
// TTL is the cooldown itself, so expiry reopens the rule.
func (s *Service) AcquireRuleCooldown(ruleID string, cooldown time.Duration) (bool, error) {
	key := cooldownKeyPrefix + ruleID
	return s.Redis.SetNX(s.Ctx, key, 1, cooldown).Result()
}

// DailyResponseCount returns today's global response counter.
func (s *Service) DailyResponseCount() (int64, error) {
	key := dailyKeyPrefix + dayKeySuffix(time.Now())
	n, err := s.Redis.Get(s.Ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ResetDailyResponseCount clears today's counter (ops escape hatch).
func (s *Service) ResetDailyResponseCount() error {
	key := dailyKeyPrefix + dayKeySuffix(time.Now())
	return s.Redis.Del(s.Ctx, key).Err()
}

// PublishLogEntry broadcasts a new activity log entry on the feed channel
// for the websocket fan-out.
func (s *Service) PublishLogEntry(entry *models.LogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, feedChannel, payload).Err()
}

// SubscribeLogFeed subscribes to the activity feed channel.
func (s *Service) SubscribeLogFeed() *redis.PubSub {
	return s.Redis.Subscribe(s.Ctx, feedChannel)
}
