package storage

import (
	"context"
	"errors"
	"time"

	"userbotgo/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Storage is the full persistence surface of the service. Components depend
// on narrow subsets of it; the interface exists so handlers and services can
// be exercised against fakes in tests.
type Storage interface {
	// Accounts
	CreateAccount(account *models.Account) error
	GetAccountByID(id string) (*models.Account, error)
	GetAccountByPhone(phone string) (*models.Account, error)
	ListAccounts() ([]models.Account, error)
	SaveAccount(account *models.Account) error
	UpdateAccountStatus(id string, status models.AccountStatus, errorMessage string) error
	DeleteAccount(id string) error
	ListStartableAccounts() ([]models.Account, error)
	TouchAccount(id string) error

	// Verification attempts
	SaveVerification(v *models.VerificationAttempt) error
	GetVerification(id string) (*models.VerificationAttempt, error)
	DeleteVerification(id string) error
	DeleteVerificationsForPhone(phone string) error

	// Rules
	ListRules() ([]models.Rule, error)
	CreateRule(rule *models.Rule) error
	SaveRule(rule *models.Rule) error
	DeleteRule(id string) error
	IncrementRuleUsage(id string) error

	// Media
	CreateMedia(file *models.MediaFile) error
	GetMedia(id string) (*models.MediaFile, error)
	ListMedia() ([]models.MediaFile, error)
	DeleteMedia(id string) error
	IncrementMediaUsage(id string) error

	// Activity log
	AppendLog(entry *models.LogEntry) error
	ListLogs(skip, limit int) ([]models.LogEntry, error)
	Stats() (*models.ActivityStats, error)

	// Settings
	GetSettings() (*models.BotSettings, error)
	SaveSettings(settings *models.BotSettings) error

	// Limits (Redis-backed, linearizable)
	ReserveDailyResponse(max int) (bool, error)
	ReserveRuleDaily(ruleID string, max int) (bool, error)
	AcquireRuleCooldown(ruleID string, cooldown time.Duration) (bool, error)
	DailyResponseCount() (int64, error)
	ResetDailyResponseCount() error

	// Activity feed
	PublishLogEntry(entry *models.LogEntry) error
}

// Service implements Storage over PostgreSQL (GORM) and Redis.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

var _ Storage = (*Service)(nil)

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// CreateAccount inserts a new account row.
func (s *Service) CreateAccount(account *models.Account) error {
	return s.DB.Create(account).Error
}

// GetAccountByID returns the account or models.ErrNotFound.
func (s *Service) GetAccountByID(id string) (*models.Account, error) {
	var account models.Account
	err := s.DB.First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByPhone returns the account holding the phone number or
// models.ErrNotFound. Phones are unique, so re-login replaces the session of
// the existing row instead of creating a duplicate.
func (s *Service) GetAccountByPhone(phone string) (*models.Account, error) {
	var account models.Account
	err := s.DB.First(&account, "phone = ?", phone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ListAccounts returns all accounts, newest first.
func (s *Service) ListAccounts() ([]models.Account, error) {
	var accounts []models.Account
	if err := s.DB.Order("created_at desc").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// SaveAccount persists the full account row.
func (s *Service) SaveAccount(account *models.Account) error {
	return s.DB.Save(account).Error
}

// UpdateAccountStatus transitions the account status and records the error
// message. The message is cleared on a successful connect.
func (s *Service) UpdateAccountStatus(id string, status models.AccountStatus, errorMessage string) error {
	updates := map[string]interface{}{
		"status":      status,
		"last_active": time.Now(),
	}
	if errorMessage != "" || status == models.AccountConnected {
		updates["error_message"] = errorMessage
	}
	return s.DB.Model(&models.Account{}).Where("id = ?", id).Updates(updates).Error
}

// DeleteAccount removes the account row together with its session token.
// Deleting a missing account is not an error.
func (s *Service) DeleteAccount(id string) error {
	return s.DB.Delete(&models.Account{}, "id = ?", id).Error
}

// ListStartableAccounts returns accounts that hold a session and are not in
// the error state, i.e. candidates for StartAll.
func (s *Service) ListStartableAccounts() ([]models.Account, error) {
	var accounts []models.Account
	err := s.DB.
		Where("session_token <> ''").
		Where("status <> ?", models.AccountError).
		Order("created_at asc").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// TouchAccount bumps last_active for the account.
func (s *Service) TouchAccount(id string) error {
	return s.DB.Model(&models.Account{}).Where("id = ?", id).
		Update("last_active", time.Now()).Error
}

// SaveVerification stores a verification attempt.
func (s *Service) SaveVerification(v *models.VerificationAttempt) error {
	return s.DB.Save(v).Error
}

// GetVerification returns the attempt or models.ErrNotFound.
func (s *Service) GetVerification(id string) (*models.VerificationAttempt, error) {
	var v models.VerificationAttempt
	err := s.DB.First(&v, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// DeleteVerification discards a consumed or expired attempt.
func (s *Service) DeleteVerification(id string) error {
	return s.DB.Delete(&models.VerificationAttempt{}, "id = ?", id).Error
}

// DeleteVerificationsForPhone enforces at most one active attempt per phone:
// a new send-code supersedes any previous attempt.
func (s *Service) DeleteVerificationsForPhone(phone string) error {
	err := s.DB.Delete(&models.VerificationAttempt{}, "phone = ?", phone).Error
	if err != nil {
		log.Error().Err(err).Str("phone", phone).Msg("failed to sweep verification attempts")
	}
	return err
}
