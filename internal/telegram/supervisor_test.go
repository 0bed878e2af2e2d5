package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"userbotgo/backend/internal/dispatch"
	"userbotgo/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSupStore struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	statuses []models.AccountStatus
	lastErr  string
}

func newFakeSupStore(accounts ...models.Account) *fakeSupStore {
	s := &fakeSupStore{accounts: make(map[string]models.Account)}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (f *fakeSupStore) GetAccountByID(id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

func (f *fakeSupStore) SaveAccount(account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[account.ID] = *account
	return nil
}

func (f *fakeSupStore) UpdateAccountStatus(id string, status models.AccountStatus, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.accounts[id]
	a.Status = status
	f.accounts[id] = a
	f.statuses = append(f.statuses, status)
	f.lastErr = errorMessage
	return nil
}

func (f *fakeSupStore) ListStartableAccounts() ([]models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Account
	for _, a := range f.accounts {
		if a.SessionToken != "" && a.Status != models.AccountError {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeSupStore) TouchAccount(id string) error { return nil }

func (f *fakeSupStore) status(id string) models.AccountStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[id].Status
}

type fakeSessions struct{}

func (fakeSessions) SessionBytes(account *models.Account) ([]byte, error) {
	if account.SessionToken == "" {
		return nil, models.ErrMissingSession
	}
	return []byte("session"), nil
}

type fakeConn struct {
	done      chan error
	closeOnce sync.Once
}

func newFakeConn() *fakeConn { return &fakeConn{done: make(chan error, 1)} }

func (c *fakeConn) SendText(ctx context.Context, chatID int64, text string, opts dispatch.SendOptions) (int, error) {
	return 1, nil
}
func (c *fakeConn) SendPhoto(ctx context.Context, chatID int64, path, caption string, opts dispatch.SendOptions) (int, error) {
	return 1, nil
}
func (c *fakeConn) SendReaction(ctx context.Context, chatID int64, messageID int, emoticon string) error {
	return nil
}
func (c *fakeConn) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return nil
}
func (c *fakeConn) Profile() (string, string, string) { return "Live", "", "livename" }
func (c *fakeConn) Done() <-chan error                { return c.done }
func (c *fakeConn) Close() {
	c.closeOnce.Do(func() { c.done <- context.Canceled })
}

type fakeTransport struct {
	mu        sync.Mutex
	dials     int
	dialErr   error
	conns     []*fakeConn
	onMessage Inbound
	connected chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: make(chan *fakeConn, 16)}
}

func (t *fakeTransport) Dial(ctx context.Context, account *models.Account, sessionData []byte, onMessage Inbound) (Conn, error) {
	t.mu.Lock()
	t.dials++
	t.onMessage = onMessage
	err := t.dialErr
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	conn := newFakeConn()
	t.mu.Lock()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()
	t.connected <- conn
	return conn, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) inbound() Inbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onMessage
}

type recordingHandler struct {
	mu       sync.Mutex
	messages []models.IncomingMessage
}

func (h *recordingHandler) HandleMessage(ctx context.Context, account *models.Account, msg models.IncomingMessage, sender dispatch.Sender) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
}

type recordingAlerter struct {
	mu     sync.Mutex
	errors []string
}

func (a *recordingAlerter) AccountError(phone, message string) {
	a.mu.Lock()
	a.errors = append(a.errors, phone)
	a.mu.Unlock()
}

func testAccount() models.Account {
	return models.Account{
		ID:           "acc-1",
		Phone:        "+10000000001",
		APIID:        12345,
		SessionToken: "encrypted",
		Status:       models.AccountDisconnected,
	}
}

func newTestSupervisor(store *fakeSupStore, transport Transport, handler MessageHandler, alerter ErrorAlerter) *Supervisor {
	s := NewSupervisor(store, fakeSessions{}, transport, handler, alerter)
	s.backoff = func(ctx context.Context, attempt int) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Millisecond):
			return true
		}
	}
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStartConnectsAndCapturesProfile(t *testing.T) {
	store := newFakeSupStore(testAccount())
	transport := newFakeTransport()
	sup := newTestSupervisor(store, transport, &recordingHandler{}, nil)

	require.NoError(t, sup.Start("acc-1"))
	<-transport.connected

	waitFor(t, func() bool { return store.status("acc-1") == models.AccountConnected })
	assert.Equal(t, 1, sup.ActiveCount())
	assert.True(t, sup.IsRunning("acc-1"))

	waitFor(t, func() bool {
		a, _ := store.GetAccountByID("acc-1")
		return a.Username == "livename"
	})

	require.NoError(t, sup.Stop("acc-1"))
	assert.Equal(t, models.AccountDisconnected, store.status("acc-1"))
	assert.Equal(t, 0, sup.ActiveCount())
}

func TestStartWithoutSession(t *testing.T) {
	acc := testAccount()
	acc.SessionToken = ""
	store := newFakeSupStore(acc)
	sup := newTestSupervisor(store, newFakeTransport(), &recordingHandler{}, nil)

	err := sup.Start("acc-1")
	assert.ErrorIs(t, err, models.ErrMissingSession)
}

func TestStartUnknownAccount(t *testing.T) {
	sup := newTestSupervisor(newFakeSupStore(), newFakeTransport(), &recordingHandler{}, nil)
	assert.ErrorIs(t, sup.Start("nope"), models.ErrNotFound)
}

func TestDoubleStart(t *testing.T) {
	store := newFakeSupStore(testAccount())
	transport := newFakeTransport()
	sup := newTestSupervisor(store, transport, &recordingHandler{}, nil)

	require.NoError(t, sup.Start("acc-1"))
	<-transport.connected
	waitFor(t, func() bool { return store.status("acc-1") == models.AccountConnected })

	// Starting a connected account is a no-op.
	assert.NoError(t, sup.Start("acc-1"))
	assert.Equal(t, 1, sup.ActiveCount())

	require.NoError(t, sup.Stop("acc-1"))
}

func TestStopIsIdempotent(t *testing.T) {
	sup := newTestSupervisor(newFakeSupStore(), newFakeTransport(), &recordingHandler{}, nil)
	assert.NoError(t, sup.Stop("never-started"))
}

func TestReconnectGivesUpAndAlerts(t *testing.T) {
	store := newFakeSupStore(testAccount())
	transport := newFakeTransport()
	transport.dialErr = errors.New("dc unreachable")
	alerter := &recordingAlerter{}
	sup := newTestSupervisor(store, transport, &recordingHandler{}, alerter)

	require.NoError(t, sup.Start("acc-1"))

	waitFor(t, func() bool { return store.status("acc-1") == models.AccountError })
	assert.Equal(t, 5, transport.dialCount())
	assert.Equal(t, "dc unreachable", store.lastErr)

	waitFor(t, func() bool { return sup.ActiveCount() == 0 })

	alerter.mu.Lock()
	defer alerter.mu.Unlock()
	assert.Equal(t, []string{"+10000000001"}, alerter.errors)
}

func TestReconnectAfterDrop(t *testing.T) {
	store := newFakeSupStore(testAccount())
	transport := newFakeTransport()
	sup := newTestSupervisor(store, transport, &recordingHandler{}, nil)

	require.NoError(t, sup.Start("acc-1"))
	conn := <-transport.connected
	waitFor(t, func() bool { return store.status("acc-1") == models.AccountConnected })

	// Simulate the connection dropping.
	conn.done <- errors.New("read timeout")

	<-transport.connected
	waitFor(t, func() bool {
		return transport.dialCount() == 2 && store.status("acc-1") == models.AccountConnected
	})

	require.NoError(t, sup.Stop("acc-1"))
}

func TestInboundMessagesReachHandler(t *testing.T) {
	store := newFakeSupStore(testAccount())
	transport := newFakeTransport()
	handler := &recordingHandler{}
	sup := newTestSupervisor(store, transport, handler, nil)

	require.NoError(t, sup.Start("acc-1"))
	conn := <-transport.connected
	waitFor(t, func() bool { return store.status("acc-1") == models.AccountConnected })

	transport.inbound()(context.Background(), models.IncomingMessage{
		AccountID: "acc-1",
		ChatID:    7,
		Text:      "hello",
	}, conn)

	waitFor(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.messages) == 1
	})

	require.NoError(t, sup.Stop("acc-1"))
}

func TestStartAllAndStopAll(t *testing.T) {
	a1 := testAccount()
	a2 := testAccount()
	a2.ID = "acc-2"
	a2.Phone = "+10000000002"
	noSession := testAccount()
	noSession.ID = "acc-3"
	noSession.SessionToken = ""

	store := newFakeSupStore(a1, a2, noSession)
	transport := newFakeTransport()
	sup := newTestSupervisor(store, transport, &recordingHandler{}, nil)

	started, err := sup.StartAll()
	require.NoError(t, err)
	assert.Equal(t, 2, started)

	<-transport.connected
	<-transport.connected
	waitFor(t, func() bool {
		return store.status("acc-1") == models.AccountConnected &&
			store.status("acc-2") == models.AccountConnected
	})

	sup.StopAll()
	assert.Equal(t, 0, sup.ActiveCount())
}
