package accounts_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSigningKey = []byte("test-signing-key-with-enough-entropy")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, msg accounts.Notification) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// recordingNotifier keeps every message it is asked to send
type recordingNotifier struct {
	mu   sync.Mutex
	sent []accounts.Notification
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, msg accounts.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingNotifier) Sent() []accounts.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]accounts.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *recordingNotifier) ByKind(kind accounts.NotificationKind) []accounts.Notification {
	out := []accounts.Notification{}
	for _, n := range r.Sent() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

func newTokens(clock *testClock) *accounts.TokenService {
	return accounts.NewTokenService(testSigningKey, 24,
		accounts.WithTokenClock(clock.Now),
		accounts.WithTokenLogger(quietLogger{}),
	)
}

func fastPasswords() *accounts.BcryptAuthenticator {
	return accounts.NewBcryptAuthenticator(bcrypt.MinCost)
}

func seedAccount(t *testing.T, store accounts.CredentialStore, email string, role accounts.Role, active bool) *accounts.Account {
	t.Helper()
	hash, err := fastPasswords().HashPassword("password123")
	require.NoError(t, err)

	account := accounts.NewAccount("Test "+string(role), email, hash)
	account.Role = role
	account.IsActive = active

	created, err := store.Create(context.Background(), account)
	require.NoError(t, err)
	return created
}

func mustFind(t *testing.T, store accounts.AccountStore, id string) *accounts.Account {
	t.Helper()
	account, err := store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return account
}
