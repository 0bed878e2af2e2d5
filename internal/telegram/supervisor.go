package telegram

import (
	"context"
	"sync"
	"time"

	"userbotgo/backend/internal/config"
	"userbotgo/backend/internal/dispatch"
	"userbotgo/backend/internal/models"

	"github.com/rs/zerolog/log"
)

// SupervisorStore is the account persistence subset the supervisor needs.
type SupervisorStore interface {
	GetAccountByID(id string) (*models.Account, error)
	SaveAccount(account *models.Account) error
	UpdateAccountStatus(id string, status models.AccountStatus, errorMessage string) error
	ListStartableAccounts() ([]models.Account, error)
	TouchAccount(id string) error
}

// SessionSource yields decrypted session blobs. Implemented by AuthService.
type SessionSource interface {
	SessionBytes(account *models.Account) ([]byte, error)
}

// MessageHandler consumes inbound messages. Implemented by the dispatch
// engine.
type MessageHandler interface {
	HandleMessage(ctx context.Context, account *models.Account, msg models.IncomingMessage, sender dispatch.Sender)
}

// ErrorAlerter is notified when an account gives up reconnecting.
type ErrorAlerter interface {
	AccountError(phone, message string)
}

// Supervisor runs one worker goroutine per started account. A worker dials,
// serves updates and reconnects with exponential backoff; after
// MaxReconnectAttempts consecutive failures it parks the account in the
// error state until an operator starts it again.
type Supervisor struct {
	store     SupervisorStore
	sessions  SessionSource
	transport Transport
	handler   MessageHandler
	alerter   ErrorAlerter

	mu      sync.Mutex
	workers map[string]*worker

	// backoff is swapped out in tests.
	backoff func(ctx context.Context, attempt int) bool
}

type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor wires the supervisor. alerter may be nil.
func NewSupervisor(store SupervisorStore, sessions SessionSource, transport Transport, handler MessageHandler, alerter ErrorAlerter) *Supervisor {
	return &Supervisor{
		store:     store,
		sessions:  sessions,
		transport: transport,
		handler:   handler,
		alerter:   alerter,
		workers:   make(map[string]*worker),
		backoff:   sleepBackoff,
	}
}

// Start launches the worker for an account. Starting a connected account is
// a no-op; starting one that is still connecting fails with
// ErrAlreadyRunning; an account without a session fails with
// ErrMissingSession.
func (s *Supervisor) Start(accountID string) error {
	account, err := s.store.GetAccountByID(accountID)
	if err != nil {
		return err
	}
	sess, err := s.sessions.SessionBytes(account)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.workers[accountID]; ok {
		s.mu.Unlock()
		if account.Status == models.AccountConnected {
			return nil
		}
		return models.ErrAlreadyRunning
	}

	// The worker outlives the HTTP request that started it.
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{cancel: cancel, done: make(chan struct{})}
	s.workers[accountID] = w
	s.mu.Unlock()

	go s.run(ctx, w, account, sess)
	return nil
}

// Stop cancels the account's worker and waits for it to exit. Stopping an
// account that is not running always succeeds.
func (s *Supervisor) Stop(accountID string) error {
	s.mu.Lock()
	w, ok := s.workers[accountID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	w.cancel()
	<-w.done
	return nil
}

// StartAll starts every startable account and returns how many workers were
// launched.
func (s *Supervisor) StartAll() (int, error) {
	accounts, err := s.store.ListStartableAccounts()
	if err != nil {
		return 0, err
	}
	started := 0
	for _, acc := range accounts {
		if err := s.Start(acc.ID); err != nil {
			log.Warn().Err(err).Str("account_id", acc.ID).Msg("account not started")
			continue
		}
		started++
	}
	return started, nil
}

// StopAll stops every running worker and waits for them.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		w.cancel()
	}
	for _, w := range workers {
		<-w.done
	}
}

// ActiveCount returns the number of running workers.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// IsRunning reports whether the account has a live worker.
func (s *Supervisor) IsRunning(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workers[accountID]
	return ok
}

func (s *Supervisor) run(ctx context.Context, w *worker, account *models.Account, sess []byte) {
	defer close(w.done)
	defer s.remove(account.ID, w)

	attempts := 0
	for {
		if ctx.Err() != nil {
			s.setStatus(account.ID, models.AccountDisconnected, "")
			return
		}

		s.setStatus(account.ID, models.AccountConnecting, "")
		conn, err := s.transport.Dial(ctx, account, sess, func(mctx context.Context, msg models.IncomingMessage, sender dispatch.Sender) {
			if err := s.store.TouchAccount(account.ID); err != nil {
				log.Warn().Err(err).Str("account_id", account.ID).Msg("failed to touch account")
			}
			s.handler.HandleMessage(ctx, account, msg, sender)
		})
		if err != nil {
			if ctx.Err() != nil {
				s.setStatus(account.ID, models.AccountDisconnected, "")
				return
			}
			attempts++
			log.Warn().Err(err).
				Str("account_id", account.ID).
				Int("attempt", attempts).
				Msg("connection attempt failed")

			if attempts >= config.MaxReconnectAttempts {
				s.setStatus(account.ID, models.AccountError, err.Error())
				if s.alerter != nil {
					s.alerter.AccountError(account.Phone, err.Error())
				}
				return
			}
			if !s.backoff(ctx, attempts) {
				s.setStatus(account.ID, models.AccountDisconnected, "")
				return
			}
			continue
		}

		attempts = 0
		s.captureProfile(account, conn)
		s.setStatus(account.ID, models.AccountConnected, "")

		select {
		case <-ctx.Done():
			conn.Close()
			<-conn.Done()
			s.setStatus(account.ID, models.AccountDisconnected, "")
			return
		case err := <-conn.Done():
			msg := ""
			if err != nil {
				msg = err.Error()
			}
			log.Warn().Err(err).Str("account_id", account.ID).Msg("connection dropped")
			s.setStatus(account.ID, models.AccountDisconnected, msg)
			if !s.backoff(ctx, 1) {
				return
			}
		}
	}
}

// captureProfile refreshes the account's display fields from the live
// session.
func (s *Supervisor) captureProfile(account *models.Account, conn Conn) {
	first, last, username := conn.Profile()
	if first == account.FirstName && last == account.LastName && username == account.Username {
		return
	}
	account.FirstName = first
	account.LastName = last
	account.Username = username
	if err := s.store.SaveAccount(account); err != nil {
		log.Warn().Err(err).Str("account_id", account.ID).Msg("failed to save account profile")
	}
}

func (s *Supervisor) setStatus(accountID string, status models.AccountStatus, errorMessage string) {
	if err := s.store.UpdateAccountStatus(accountID, status, errorMessage); err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("failed to update account status")
	}
}

func (s *Supervisor) remove(accountID string, w *worker) {
	s.mu.Lock()
	if s.workers[accountID] == w {
		delete(s.workers, accountID)
	}
	s.mu.Unlock()
}

// sleepBackoff waits for the exponential backoff of the given attempt.
// Returns false when the context was cancelled while waiting.
func sleepBackoff(ctx context.Context, attempt int) bool {
	d := config.ReconnectBackoffBase << (attempt - 1)
	if d > config.ReconnectBackoffMax {
		d = config.ReconnectBackoffMax
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
