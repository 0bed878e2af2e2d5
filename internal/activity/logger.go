// Package activity records what the responder did and streams it to live
// subscribers.
package activity

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"userbotgo/backend/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Store is the persistence subset the logger needs.
type Store interface {
	AppendLog(entry *models.LogEntry) error
	PublishLogEntry(entry *models.LogEntry) error
	SubscribeLogFeed() *redis.PubSub
}

// Logger appends activity entries to the database and broadcasts them over
// the Redis feed channel. RunFeed fans the channel out to local subscribers
// (the websocket handlers), so every API instance sees entries written by
// any of them.
type Logger struct {
	store Store

	mu   sync.Mutex
	subs map[chan models.LogEntry]struct{}
}

// NewLogger Constructor
func NewLogger(store Store) *Logger {
	return &Logger{
		store: store,
		subs:  make(map[chan models.LogEntry]struct{}),
	}
}

// Record persists one entry and publishes it to the feed. Persistence
// failures are logged but never propagate; losing a log line must not break
// dispatch.
func (l *Logger) Record(entry *models.LogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if err := l.store.AppendLog(entry); err != nil {
		log.Error().Err(err).Str("account_id", entry.AccountID).Msg("failed to append activity log")
	}
	if err := l.store.PublishLogEntry(entry); err != nil {
		log.Warn().Err(err).Msg("failed to publish activity log entry")
	}
}

// Subscribe registers a live feed consumer. The returned channel is closed
// by the unsubscribe function. Slow consumers drop entries instead of
// blocking the feed.
func (l *Logger) Subscribe() (<-chan models.LogEntry, func()) {
	ch := make(chan models.LogEntry, 64)

	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	unsubscribe := func() {
		l.mu.Lock()
		if _, ok := l.subs[ch]; ok {
			delete(l.subs, ch)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, unsubscribe
}

// RunFeed consumes the Redis feed and fans entries out to subscribers until
// the context is cancelled.
func (l *Logger) RunFeed(ctx context.Context) {
	pubsub := l.store.SubscribeLogFeed()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var entry models.LogEntry
			if err := json.Unmarshal([]byte(msg.Payload), &entry); err != nil {
				log.Warn().Err(err).Msg("malformed activity feed payload")
				continue
			}
			l.broadcast(entry)
		}
	}
}

func (l *Logger) broadcast(entry models.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}
