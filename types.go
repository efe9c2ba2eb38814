package accounts

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the options shared by the token service, the state machine
// and the HTTP boundary
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	// GetSessionExpiration is expressed in hours
	GetSessionExpiration() int
	GetResetTokenTTL() time.Duration
	GetRecoveryTokenTTL() time.Duration
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
	GetCookieSecure() bool
	GetFrontendURL() string
	GetDebug() bool
}

// Notifier delivers messages produced by account transitions.
// A non nil error is a dispatch failure.
type Notifier interface {
	Send(ctx context.Context, msg Notification) error
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(ctx context.Context, msg Notification) error

// Send implements Notifier.
func (f NotifierFunc) Send(ctx context.Context, msg Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// PasswordAuthenticator hashes and compares credentials
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

// DefaultLogger returns the logger used when none is configured.
func DefaultLogger() Logger {
	return defLogger{}
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
