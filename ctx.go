package accounts

import (
	"context"

	"github.com/goliatone/go-router"
)

var accountCtxKey = &contextKey{"account"}

type contextKey struct {
	name string
}

// WithContext sets the Account in the given context
func WithContext(r context.Context, account *Account) context.Context {
	return context.WithValue(r, accountCtxKey, account)
}

// FromContext finds the account from the context.
func FromContext(ctx context.Context) (*Account, bool) {
	raw, ok := ctx.Value(accountCtxKey).(*Account)
	return raw, ok && raw != nil
}

// GetRouterAccount extracts the Account stored by the session middleware
func GetRouterAccount(ctx router.Context, key string) (*Account, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return FromContext(ctx.Context())
	}
	account, ok := raw.(*Account)
	return account, ok && account != nil
}
