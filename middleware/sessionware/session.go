package sessionware

import (
	"context"
	"errors"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-router"
)

// Resolver maps a raw session token to its active account.
// *accounts.AccountService satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*accounts.Account, error)
}

// ValidationListener is invoked after the account is resolved, before the
// capability check.
type ValidationListener func(ctx router.Context, account *accounts.Account) error

type Config struct {
	Filter       func(router.Context) bool
	ErrorHandler router.ErrorHandler
	Resolver     Resolver
	ContextKey   string
	TokenLookup  string
	AuthScheme   string
	// Capability, when set, must be satisfied by the resolved account
	Capability accounts.Capability
	// ContextEnricher propagates the account to the standard context,
	// accounts.WithContext is used when nil
	ContextEnricher     func(c context.Context, account *accounts.Account) context.Context
	ValidationListeners []ValidationListener
	Debug               bool
	Logger              accounts.Logger
}

// New returns a middleware that authenticates the request and stores the
// account under ContextKey
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	if cfg.Resolver == nil {
		panic("ACCOUNTS: session middleware configuration: Resolver is required.")
	}
	extractors := accounts.GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			account, err := Authenticate(ctx.Context(), ctx, cfg, extractors)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			for _, listener := range cfg.ValidationListeners {
				if listener == nil {
					continue
				}
				if err := listener(ctx, account); err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
			}

			if cfg.Capability != "" {
				if err := accounts.Check(account, cfg.Capability); err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
			}

			ctx.Locals(cfg.ContextKey, account)
			ctx.SetContext(cfg.ContextEnricher(ctx.Context(), account))

			return next(ctx)
		}
	}
}

// Authenticate extracts the token from src and resolves it
func Authenticate(ctx context.Context, src accounts.TokenSource, cfg Config, extractors []accounts.TokenExtractor) (*accounts.Account, error) {
	raw, err := accounts.ExtractRawToken(src, extractors)
	if err != nil {
		return nil, err
	}

	account, err := cfg.Resolver.Resolve(ctx, raw)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return nil, accounts.ErrUnauthenticated
		}
		return nil, err
	}
	return account, nil
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Logger == nil {
		cfg.Logger = accounts.DefaultLogger()
	}

	if cfg.ErrorHandler == nil {
		debug, logger := cfg.Debug, cfg.Logger
		cfg.ErrorHandler = func(c router.Context, err error) error {
			return accounts.WriteError(c, err, debug, logger)
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = accounts.DefaultContextKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = accounts.DefaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = accounts.DefaultAuthScheme
	}

	if cfg.ContextEnricher == nil {
		cfg.ContextEnricher = accounts.WithContext
	}

	return cfg
}
