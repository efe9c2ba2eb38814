package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
)

func TestMessageBuilderLinks(t *testing.T) {
	b := accounts.NewMessageBuilder("https://app.example.com/")
	assert.Equal(t, "https://app.example.com/recovery?token=a+b", b.RecoveryLink("a b"))
	assert.Equal(t, "https://app.example.com/reset-password.html?token=abc", b.ResetLink("abc"))
	assert.Equal(t, "https://app.example.com/admin", b.AdminLink())
}

func TestMessageBuilderBodies(t *testing.T) {
	b := accounts.NewMessageBuilder("https://app.example.com")
	account := &accounts.Account{Name: "Alice", Email: "alice@x.com", Role: accounts.RoleAdmin}
	token := accounts.OneShotToken{
		Plaintext: "tok",
		ExpiresAt: time.Date(2024, 6, 1, 12, 15, 0, 0, time.UTC),
	}

	reset := b.PasswordReset(account, token)
	assert.Equal(t, accounts.NotificationPasswordReset, reset.Kind)
	assert.Equal(t, "alice@x.com", reset.To)
	assert.Contains(t, reset.Body, "reset-password.html?token=tok")
	assert.Contains(t, reset.Body, "Sat, 01 Jun 2024 12:15:00 UTC")

	recovery := b.Recovery(account, token)
	assert.Contains(t, recovery.Body, "Recovery grants admin access only")

	approver := &accounts.Account{Name: "Root", Email: "root@x.com"}
	request := b.ApprovalRequest(approver, account)
	assert.Equal(t, "root@x.com", request.To)
	assert.Contains(t, request.Body, "Alice (alice@x.com)")
	assert.Contains(t, request.Body, "Current role: admin")

	confirmation := b.ApprovalConfirmation(account)
	assert.Equal(t, "Superadmin Access Restored", confirmation.Subject)
}

func TestNotifierFunc(t *testing.T) {
	var got accounts.Notification
	fn := accounts.NotifierFunc(func(_ context.Context, msg accounts.Notification) error {
		got = msg
		return nil
	})

	assert.NoError(t, fn.Send(context.Background(), accounts.Notification{To: "a@x.com"}))
	assert.Equal(t, "a@x.com", got.To)

	var nilFn accounts.NotifierFunc
	assert.NoError(t, nilFn.Send(context.Background(), accounts.Notification{}))
}
