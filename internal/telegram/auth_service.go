// Package telegram holds everything that talks MTProto: the login gateway,
// the per-account connections and the supervisor that keeps them alive.
package telegram

import (
	"context"
	"errors"
	"time"

	"userbotgo/backend/internal/config"
	"userbotgo/backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AuthResult is what a successful sign-in yields: the session to persist and
// the profile of the authorized user.
type AuthResult struct {
	Session   []byte
	UserID    int64
	FirstName string
	LastName  string
	Username  string
}

// Gateway is the MTProto login surface. The production implementation dials
// Telegram; tests substitute a fake. Session arguments and results are
// plaintext blobs, encryption happens in AuthService.
type Gateway interface {
	SendCode(ctx context.Context, phone string, apiID int, apiHash string) (codeHash string, session []byte, err error)
	SignIn(ctx context.Context, session []byte, apiID int, apiHash, phone, codeHash, code string) (*AuthResult, error)
	CheckPassword(ctx context.Context, session []byte, apiID int, apiHash, password string) (*AuthResult, error)
	Revoke(ctx context.Context, session []byte, apiID int, apiHash string) error
}

// AuthStore is the persistence subset of the login flow.
type AuthStore interface {
	SaveVerification(v *models.VerificationAttempt) error
	GetVerification(id string) (*models.VerificationAttempt, error)
	DeleteVerification(id string) error
	DeleteVerificationsForPhone(phone string) error
	GetAccountByPhone(phone string) (*models.Account, error)
	CreateAccount(account *models.Account) error
	SaveAccount(account *models.Account) error
}

// AuthService is the credential store: it owns the phone → code → password
// login handshake and is the only component that sees session tokens in the
// clear.
type AuthService struct {
	store   AuthStore
	gateway Gateway
	cipher  *sessionCipher
	ttl     time.Duration
	now     func() time.Time
}

// NewAuthService Constructor
func NewAuthService(store AuthStore, gateway Gateway, key []byte) (*AuthService, error) {
	c, err := newSessionCipher(key)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		store:   store,
		gateway: gateway,
		cipher:  c,
		ttl:     config.VerificationTTL,
		now:     time.Now,
	}, nil
}

// BeginLogin requests a confirmation code for the phone and opens a
// verification attempt. Any previous attempt for the same phone is discarded
// first; at most one is ever active per phone.
func (a *AuthService) BeginLogin(ctx context.Context, phone string, apiID int, apiHash string) (string, error) {
	if err := a.store.DeleteVerificationsForPhone(phone); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, config.LoginTimeout)
	defer cancel()

	codeHash, session, err := a.gateway.SendCode(ctx, phone, apiID, apiHash)
	if err != nil {
		return "", err
	}

	interim, err := a.cipher.Encrypt(session)
	if err != nil {
		return "", err
	}

	now := a.now()
	v := &models.VerificationAttempt{
		ID:             uuid.New().String(),
		Phone:          phone,
		APIID:          apiID,
		APIHash:        apiHash,
		CodeHash:       codeHash,
		InterimSession: interim,
		CreatedAt:      now,
		ExpiresAt:      now.Add(a.ttl),
	}
	if err := a.store.SaveVerification(v); err != nil {
		return "", err
	}

	log.Info().Str("verification_id", v.ID).Msg("verification code sent")
	return v.ID, nil
}

// CompleteLogin submits the confirmation code. On success the account is
// persisted with an encrypted session and the attempt is consumed. A wrong
// code keeps the attempt alive for a retry; Err2FARequired means the caller
// must follow up with Submit2FA on the same attempt.
func (a *AuthService) CompleteLogin(ctx context.Context, verificationID, code string) (*models.Account, error) {
	v, session, err := a.loadAttempt(verificationID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, config.LoginTimeout)
	defer cancel()

	res, err := a.gateway.SignIn(ctx, session, v.APIID, v.APIHash, v.Phone, v.CodeHash, code)
	if errors.Is(err, models.Err2FARequired) {
		return nil, models.Err2FARequired
	}
	if errors.Is(err, models.ErrExpiredVerification) {
		a.discard(v.ID)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	return a.finishLogin(v, res)
}

// Submit2FA submits the two-factor password for an attempt that answered
// Err2FARequired.
func (a *AuthService) Submit2FA(ctx context.Context, verificationID, password string) (*models.Account, error) {
	v, session, err := a.loadAttempt(verificationID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, config.LoginTimeout)
	defer cancel()

	res, err := a.gateway.CheckPassword(ctx, session, v.APIID, v.APIHash, password)
	if err != nil {
		return nil, err
	}

	return a.finishLogin(v, res)
}

// Forget revokes the account's session with Telegram on a best-effort basis.
// Called before account deletion; a failed revoke only means the session
// dies by server-side expiry instead.
func (a *AuthService) Forget(ctx context.Context, account *models.Account) {
	if account.SessionToken == "" {
		return
	}
	session, err := a.cipher.Decrypt(account.SessionToken)
	if err != nil {
		log.Warn().Str("account_id", account.ID).Msg("cannot decrypt session for revoke")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, config.LoginTimeout)
	defer cancel()
	if err := a.gateway.Revoke(ctx, session, account.APIID, account.APIHash); err != nil {
		log.Warn().Err(err).Str("account_id", account.ID).Msg("session revoke failed")
	}
}

// SessionBytes decrypts the account's stored session for the connection
// supervisor.
func (a *AuthService) SessionBytes(account *models.Account) ([]byte, error) {
	if account.SessionToken == "" {
		return nil, models.ErrMissingSession
	}
	return a.cipher.Decrypt(account.SessionToken)
}

func (a *AuthService) loadAttempt(verificationID string) (*models.VerificationAttempt, []byte, error) {
	v, err := a.store.GetVerification(verificationID)
	if err != nil {
		return nil, nil, err
	}
	if v.Expired(a.now()) {
		a.discard(v.ID)
		return nil, nil, models.ErrExpiredVerification
	}
	session, err := a.cipher.Decrypt(v.InterimSession)
	if err != nil {
		return nil, nil, err
	}
	return v, session, nil
}

// finishLogin upserts the account by phone, seals the fresh session and
// consumes the verification attempt.
func (a *AuthService) finishLogin(v *models.VerificationAttempt, res *AuthResult) (*models.Account, error) {
	token, err := a.cipher.Encrypt(res.Session)
	if err != nil {
		return nil, err
	}

	account, err := a.store.GetAccountByPhone(v.Phone)
	switch {
	case errors.Is(err, models.ErrNotFound):
		account = &models.Account{Phone: v.Phone}
	case err != nil:
		return nil, err
	}

	account.APIID = v.APIID
	account.APIHash = v.APIHash
	account.SessionToken = token
	account.Status = models.AccountDisconnected
	account.FirstName = res.FirstName
	account.LastName = res.LastName
	account.Username = res.Username
	account.ErrorMessage = ""

	if account.ID == "" {
		err = a.store.CreateAccount(account)
	} else {
		err = a.store.SaveAccount(account)
	}
	if err != nil {
		return nil, err
	}

	a.discard(v.ID)
	log.Info().Str("account_id", account.ID).Msg("account authorized")
	return account, nil
}

func (a *AuthService) discard(id string) {
	if err := a.store.DeleteVerification(id); err != nil {
		log.Warn().Err(err).Str("verification_id", id).Msg("failed to delete verification attempt")
	}
}
