package accounts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// NotificationKind identifies the message template
type NotificationKind string

const (
	NotificationRecovery             NotificationKind = "recovery"
	NotificationApprovalRequest      NotificationKind = "approval_request"
	NotificationApprovalConfirmation NotificationKind = "approval_confirmation"
	NotificationPasswordReset        NotificationKind = "password_reset"
)

// Notification is a message command emitted by a transition
type Notification struct {
	Kind    NotificationKind
	To      string
	Subject string
	Body    string
}

// MessageBuilder renders notifications with links to the frontend
type MessageBuilder struct {
	frontendURL string
}

// NewMessageBuilder returns a builder for frontendURL
func NewMessageBuilder(frontendURL string) MessageBuilder {
	return MessageBuilder{frontendURL: strings.TrimRight(frontendURL, "/")}
}

// RecoveryLink is the link sent to a disabled superadmin
func (b MessageBuilder) RecoveryLink(token string) string {
	return b.frontendURL + "/recovery?token=" + url.QueryEscape(token)
}

// ResetLink is the link sent on a password reset request
func (b MessageBuilder) ResetLink(token string) string {
	return b.frontendURL + "/reset-password.html?token=" + url.QueryEscape(token)
}

// AdminLink points approvers to the admin area
func (b MessageBuilder) AdminLink() string {
	return b.frontendURL + "/admin"
}

// Recovery tells a disabled superadmin how to regain access
func (b MessageBuilder) Recovery(account *Account, token OneShotToken) Notification {
	return Notification{
		Kind:    NotificationRecovery,
		To:      account.Email,
		Subject: "Account Recovery - Superadmin Access Disabled",
		Body: fmt.Sprintf(
			"Hello %s,\n\n"+
				"Your superadmin account has been disabled. If this was not expected you can recover it.\n\n"+
				"Recover your account: %s\n\n"+
				"Recovery grants admin access only. Full superadmin access requires approval from another superadmin.\n"+
				"This link expires at %s.\n",
			account.Name, b.RecoveryLink(token.Plaintext), token.ExpiresAt.UTC().Format(time.RFC1123),
		),
	}
}

// ApprovalRequest asks approver to restore requester's superadmin role
func (b MessageBuilder) ApprovalRequest(approver, requester *Account) Notification {
	return Notification{
		Kind:    NotificationApprovalRequest,
		To:      approver.Email,
		Subject: "Superadmin Approval Request",
		Body: fmt.Sprintf(
			"Hello %s,\n\n"+
				"%s (%s) is requesting superadmin access. Current role: %s.\n\n"+
				"Review the request in the admin area: %s\n",
			approver.Name, requester.Name, requester.Email, requester.Role, b.AdminLink(),
		),
	}
}

// ApprovalConfirmation tells target its superadmin role was restored
func (b MessageBuilder) ApprovalConfirmation(target *Account) Notification {
	return Notification{
		Kind:    NotificationApprovalConfirmation,
		To:      target.Email,
		Subject: "Superadmin Access Restored",
		Body: fmt.Sprintf(
			"Hello %s,\n\n"+
				"Your superadmin access has been approved and restored.\n\n"+
				"Go to the admin area: %s\n",
			target.Name, b.AdminLink(),
		),
	}
}

// PasswordReset carries the reset link
func (b MessageBuilder) PasswordReset(account *Account, token OneShotToken) Notification {
	return Notification{
		Kind:    NotificationPasswordReset,
		To:      account.Email,
		Subject: "Password Reset Request",
		Body: fmt.Sprintf(
			"Hello %s,\n\n"+
				"You requested a password reset. Use the link below to choose a new password:\n\n"+
				"%s\n\n"+
				"This link expires at %s. If you did not request a reset, ignore this email.\n",
			account.Name, b.ResetLink(token.Plaintext), token.ExpiresAt.UTC().Format(time.RFC1123),
		),
	}
}

type noopNotifier struct{}

func (noopNotifier) Send(_ context.Context, _ Notification) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
