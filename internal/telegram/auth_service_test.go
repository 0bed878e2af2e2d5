package telegram

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"userbotgo/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeAuthStore struct {
	verifications map[string]models.VerificationAttempt
	accounts      map[string]models.Account // keyed by phone
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		verifications: make(map[string]models.VerificationAttempt),
		accounts:      make(map[string]models.Account),
	}
}

func (f *fakeAuthStore) SaveVerification(v *models.VerificationAttempt) error {
	f.verifications[v.ID] = *v
	return nil
}

func (f *fakeAuthStore) GetVerification(id string) (*models.VerificationAttempt, error) {
	v, ok := f.verifications[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &v, nil
}

func (f *fakeAuthStore) DeleteVerification(id string) error {
	delete(f.verifications, id)
	return nil
}

func (f *fakeAuthStore) DeleteVerificationsForPhone(phone string) error {
	for id, v := range f.verifications {
		if v.Phone == phone {
			delete(f.verifications, id)
		}
	}
	return nil
}

func (f *fakeAuthStore) GetAccountByPhone(phone string) (*models.Account, error) {
	a, ok := f.accounts[phone]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

func (f *fakeAuthStore) CreateAccount(account *models.Account) error {
	if account.ID == "" {
		account.ID = "acc-" + account.Phone
	}
	f.accounts[account.Phone] = *account
	return nil
}

func (f *fakeAuthStore) SaveAccount(account *models.Account) error {
	f.accounts[account.Phone] = *account
	return nil
}

type fakeGateway struct {
	codeHash    string
	session     []byte
	signInErr   error
	passwordErr error
	result      AuthResult
	revoked     int
}

func (f *fakeGateway) SendCode(ctx context.Context, phone string, apiID int, apiHash string) (string, []byte, error) {
	return f.codeHash, f.session, nil
}

func (f *fakeGateway) SignIn(ctx context.Context, session []byte, apiID int, apiHash, phone, codeHash, code string) (*AuthResult, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	res := f.result
	return &res, nil
}

func (f *fakeGateway) CheckPassword(ctx context.Context, session []byte, apiID int, apiHash, password string) (*AuthResult, error) {
	if f.passwordErr != nil {
		return nil, f.passwordErr
	}
	res := f.result
	return &res, nil
}

func (f *fakeGateway) Revoke(ctx context.Context, session []byte, apiID int, apiHash string) error {
	f.revoked++
	return nil
}

func newTestAuthService(t *testing.T, store *fakeAuthStore, gw *fakeGateway) *AuthService {
	t.Helper()
	svc, err := NewAuthService(store, gw, testKey)
	require.NoError(t, err)
	return svc
}

func defaultGateway() *fakeGateway {
	return &fakeGateway{
		codeHash: "hash-1",
		session:  []byte("raw-session-bytes"),
		result: AuthResult{
			Session:   []byte("authorized-session"),
			UserID:    42,
			FirstName: "Test",
			Username:  "testuser",
		},
	}
}

func TestBeginLoginStoresEncryptedAttempt(t *testing.T) {
	store := newFakeAuthStore()
	gw := defaultGateway()
	svc := newTestAuthService(t, store, gw)

	id, err := svc.BeginLogin(context.Background(), "+10000000001", 12345, "abc")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	v := store.verifications[id]
	assert.Equal(t, "+10000000001", v.Phone)
	assert.Equal(t, "hash-1", v.CodeHash)
	assert.True(t, v.ExpiresAt.After(time.Now()))

	// The interim session must never be stored in the clear.
	assert.NotContains(t, v.InterimSession, "raw-session-bytes")
	plain, err := svc.cipher.Decrypt(v.InterimSession)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw-session-bytes"), plain)
}

func TestBeginLoginSupersedesPreviousAttempt(t *testing.T) {
	store := newFakeAuthStore()
	svc := newTestAuthService(t, store, defaultGateway())

	first, err := svc.BeginLogin(context.Background(), "+10000000001", 12345, "abc")
	require.NoError(t, err)
	second, err := svc.BeginLogin(context.Background(), "+10000000001", 12345, "abc")
	require.NoError(t, err)

	assert.NotContains(t, store.verifications, first)
	assert.Contains(t, store.verifications, second)
}

func TestCompleteLoginSuccess(t *testing.T) {
	store := newFakeAuthStore()
	svc := newTestAuthService(t, store, defaultGateway())

	id, err := svc.BeginLogin(context.Background(), "+10000000001", 12345, "abc")
	require.NoError(t, err)

	account, err := svc.CompleteLogin(context.Background(), id, "54321")
	require.NoError(t, err)

	assert.Equal(t, "+10000000001", account.Phone)
	assert.Equal(t, models.AccountDisconnected, account.Status)
	assert.Equal(t, "Test", account.FirstName)
	assert.Equal(t, "testuser", account.Username)

	// Session encrypted at rest, decryptable by the service.
	assert.NotContains(t, account.SessionToken, "authorized-session")
	plain, err := svc.SessionBytes(account)
	require.NoError(t, err)
	assert.Equal(t, []byte("authorized-session"), plain)

	// Attempt consumed.
	assert.Empty(t, store.verifications)
}

func TestCompleteLoginWrongCodeKeepsAttempt(t *testing.T) {
	store := newFakeAuthStore()
	gw := defaultGateway()
	gw.signInErr = models.ErrInvalidCode
	svc := newTestAuthService(t, store, gw)

	id, err := svc.BeginLogin(context.Background(), "+10000000001", 12345, "abc")
	require.NoError(t, err)

	_, err = svc.CompleteLogin(context.Background(), id, "00000")
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	// No account was created and the attempt survives for a retry.
	assert.Empty(t, store.accounts)
	assert.Contains(t, store.verifications, id)

	gw.signInErr = nil
	account, err := svc.CompleteLogin(context.Background(), id, "54321")
	require.NoError(t, err)
	assert.Equal(t, models.AccountDisconnected, account.Status)
}

func TestCompleteLoginExpired(t *testing.T) {
	store := newFakeAuthStore()
	svc := newTestAuthService(t, store, defaultGateway())

	id, err := svc.BeginLogin(context.Background(), "+10000000001", 12345, "abc")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(6 * time.Minute) }

	_, err = svc.CompleteLogin(context.Background(), id, "54321")
	assert.ErrorIs(t, err, models.ErrExpiredVerification)
	assert.Empty(t, store.verifications)
}

func TestTwoFactorFlow(t *testing.T) {
	store := newFakeAuthStore()
	gw := defaultGateway()
	gw.signInErr = models.Err2FARequired
	svc := newTestAuthService(t, store, gw)

	id, err := svc.BeginLogin(context.Background(), "+10000000001", 12345, "abc")
	require.NoError(t, err)

	_, err = svc.CompleteLogin(context.Background(), id, "54321")
	assert.ErrorIs(t, err, models.Err2FARequired)
	assert.Contains(t, store.verifications, id)

	gw.passwordErr = models.ErrInvalidPassword
	_, err = svc.Submit2FA(context.Background(), id, "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidPassword)

	gw.passwordErr = nil
	account, err := svc.Submit2FA(context.Background(), id, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "+10000000001", account.Phone)
	assert.Empty(t, store.verifications)
}

func TestReloginUpdatesExistingAccount(t *testing.T) {
	store := newFakeAuthStore()
	svc := newTestAuthService(t, store, defaultGateway())

	id, err := svc.BeginLogin(context.Background(), "+10000000001", 12345, "abc")
	require.NoError(t, err)
	first, err := svc.CompleteLogin(context.Background(), id, "54321")
	require.NoError(t, err)

	id, err = svc.BeginLogin(context.Background(), "+10000000001", 12345, "abc")
	require.NoError(t, err)
	second, err := svc.CompleteLogin(context.Background(), id, "54321")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.accounts, 1)
}

func TestSessionBytesMissing(t *testing.T) {
	svc := newTestAuthService(t, newFakeAuthStore(), defaultGateway())

	_, err := svc.SessionBytes(&models.Account{})
	assert.ErrorIs(t, err, models.ErrMissingSession)
}

func TestForgetRevokesBestEffort(t *testing.T) {
	gw := defaultGateway()
	svc := newTestAuthService(t, newFakeAuthStore(), gw)

	token, err := svc.cipher.Encrypt([]byte("session"))
	require.NoError(t, err)

	svc.Forget(context.Background(), &models.Account{ID: "a", SessionToken: token})
	assert.Equal(t, 1, gw.revoked)

	// Corrupt token: revoke is skipped, no error surfaces.
	svc.Forget(context.Background(), &models.Account{ID: "b", SessionToken: "garbage"})
	assert.Equal(t, 1, gw.revoked)
}

func TestSessionCipherRejectsTampering(t *testing.T) {
	c, err := newSessionCipher(testKey)
	require.NoError(t, err)

	token, err := c.Encrypt([]byte("secret"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}
