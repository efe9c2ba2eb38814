package accounts_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenServiceIssueAndValidate(t *testing.T) {
	clock := newTestClock()
	ts := newTokens(clock)
	accountID := uuid.NewString()

	token, err := ts.IssueSession(accountID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	got, err := ts.ValidateSession(token)
	require.NoError(t, err)
	assert.Equal(t, accountID, got)

	claims, err := ts.ParseSession(token)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), claims.Issued().UTC())
	assert.Equal(t, clock.Now().Add(24*time.Hour), claims.Expires().UTC())
	assert.NotEmpty(t, claims.ID)
}

func TestTokenServiceExpired(t *testing.T) {
	clock := newTestClock()
	ts := newTokens(clock)

	token, err := ts.IssueSession(uuid.NewString())
	require.NoError(t, err)

	clock.Advance(24*time.Hour + time.Second)

	_, err = ts.ValidateSession(token)
	assert.ErrorIs(t, err, accounts.ErrTokenExpired)
}

func TestTokenServiceSignatureMismatch(t *testing.T) {
	clock := newTestClock()
	other := accounts.NewTokenService([]byte("some-other-key"), 24,
		accounts.WithTokenClock(clock.Now),
		accounts.WithTokenLogger(quietLogger{}),
	)

	token, err := other.IssueSession(uuid.NewString())
	require.NoError(t, err)

	_, err = newTokens(clock).ValidateSession(token)
	assert.ErrorIs(t, err, accounts.ErrTokenSignatureMismatch)
}

func TestTokenServiceMalformed(t *testing.T) {
	ts := newTokens(newTestClock())

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, err := ts.ValidateSession(raw)
		assert.ErrorIs(t, err, accounts.ErrTokenMalformed, "token %q", raw)
	}
}

func TestTokenServiceIssuerAndAudience(t *testing.T) {
	clock := newTestClock()
	issuer := accounts.NewTokenService(testSigningKey, 1,
		accounts.WithTokenClock(clock.Now),
		accounts.WithTokenIssuer("accounts"),
		accounts.WithTokenAudience("web"),
		accounts.WithTokenLogger(quietLogger{}),
	)
	token, err := issuer.IssueSession(uuid.NewString())
	require.NoError(t, err)

	_, err = issuer.ValidateSession(token)
	assert.NoError(t, err)

	strict := accounts.NewTokenService(testSigningKey, 1,
		accounts.WithTokenClock(clock.Now),
		accounts.WithTokenIssuer("billing"),
		accounts.WithTokenLogger(quietLogger{}),
	)
	_, err = strict.ValidateSession(token)
	assert.ErrorIs(t, err, accounts.ErrTokenMalformed)
}

func TestTokenServiceMultipleAudiences(t *testing.T) {
	clock := newTestClock()
	svc := accounts.NewTokenService(testSigningKey, 1,
		accounts.WithTokenClock(clock.Now),
		accounts.WithTokenAudience("web", "mobile"),
		accounts.WithTokenLogger(quietLogger{}),
	)
	token, err := svc.IssueSession(uuid.NewString())
	require.NoError(t, err)

	_, err = svc.ValidateSession(token)
	assert.NoError(t, err)

	other := accounts.NewTokenService(testSigningKey, 1,
		accounts.WithTokenClock(clock.Now),
		accounts.WithTokenAudience("billing"),
		accounts.WithTokenLogger(quietLogger{}),
	)
	foreign, err := other.IssueSession(uuid.NewString())
	require.NoError(t, err)

	_, err = svc.ValidateSession(foreign)
	assert.ErrorIs(t, err, accounts.ErrTokenMalformed)
}

func TestTokenServiceRequiresSigningKey(t *testing.T) {
	ts := accounts.NewTokenService(nil, 24)

	_, err := ts.IssueSession(uuid.NewString())
	assert.ErrorIs(t, err, accounts.ErrConfig)

	_, err = ts.ValidateSession("whatever")
	assert.ErrorIs(t, err, accounts.ErrConfig)
}

func TestTokenServiceDefaultExpiration(t *testing.T) {
	ts := accounts.NewTokenService(testSigningKey, 0)
	assert.Equal(t, 7*24*time.Hour, ts.SessionTTL())
}

type staticConfig struct {
	key string
}

func (c staticConfig) GetSigningKey() string              { return c.key }
func (c staticConfig) GetIssuer() string                  { return "accounts" }
func (c staticConfig) GetAudience() []string              { return nil }
func (c staticConfig) GetSessionExpiration() int          { return 2 }
func (c staticConfig) GetResetTokenTTL() time.Duration    { return 15 * time.Minute }
func (c staticConfig) GetRecoveryTokenTTL() time.Duration { return 15 * time.Minute }
func (c staticConfig) GetContextKey() string              { return accounts.DefaultContextKey }
func (c staticConfig) GetTokenLookup() string             { return accounts.DefaultTokenLookup }
func (c staticConfig) GetAuthScheme() string              { return accounts.DefaultAuthScheme }
func (c staticConfig) GetCookieSecure() bool              { return false }
func (c staticConfig) GetFrontendURL() string             { return "http://localhost:5000" }
func (c staticConfig) GetDebug() bool                     { return false }

func TestNewTokenServiceFromConfig(t *testing.T) {
	ts := accounts.NewTokenServiceFromConfig(staticConfig{key: "from-config"}, accounts.WithTokenLogger(quietLogger{}))
	assert.Equal(t, 2*time.Hour, ts.SessionTTL())

	token, err := ts.IssueSession("acc-1")
	require.NoError(t, err)

	claims, err := ts.ParseSession(token)
	require.NoError(t, err)
	assert.Equal(t, "accounts", claims.Issuer)
	assert.Equal(t, "acc-1", claims.AccountID())
}
