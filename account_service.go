package accounts

import (
	"context"
	"errors"
	"sync"
	"time"
)

// AccountService covers signup, login and session resolution
type AccountService struct {
	store        CredentialStore
	tokens       *TokenService
	passwords    PasswordAuthenticator
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger

	dummyOnce sync.Once
	dummyHash string
}

// AccountServiceOption configures an AccountService
type AccountServiceOption func(*AccountService)

// WithAccountLogger sets the logger
func WithAccountLogger(logger Logger) AccountServiceOption {
	return func(s *AccountService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAccountActivitySink sets the activity sink
func WithAccountActivitySink(sink ActivitySink) AccountServiceOption {
	return func(s *AccountService) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithPasswordAuthenticator overrides how credentials are hashed
func WithPasswordAuthenticator(auth PasswordAuthenticator) AccountServiceOption {
	return func(s *AccountService) {
		if auth != nil {
			s.passwords = auth
		}
	}
}

// NewAccountService returns the service
func NewAccountService(store CredentialStore, tokens *TokenService, opts ...AccountServiceOption) *AccountService {
	s := &AccountService{
		store:        store,
		tokens:       tokens,
		passwords:    NewBcryptAuthenticator(0),
		now:          tokens.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Session is a logged in account with its token
type Session struct {
	Account   *Account
	Token     string
	ExpiresAt time.Time
}

// AccountList is one page of accounts
type AccountList struct {
	Accounts []AccountView `json:"users"`
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
	Total    int           `json:"total"`
	Pages    int           `json:"pages"`
}

// Signup creates an account with the default role and plan and opens a
// session for it
func (s *AccountService) Signup(ctx context.Context, payload SignupPayload) (*Session, error) {
	if err := payload.Validate(); err != nil {
		return nil, validationError(err)
	}

	hash, err := s.passwords.HashPassword(payload.Password)
	if err != nil {
		return nil, err
	}

	var created *Account
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx AccountStore) error {
		if _, err := tx.FindByEmail(ctx, payload.Email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, ErrAccountNotFound) {
			return err
		}

		record, err := tx.Create(ctx, NewAccount(payload.Name, payload.Email, hash))
		if err != nil {
			return err
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventSignup,
		ActorID:   created.ID.String(),
		AccountID: created.ID.String(),
		ToState:   created.State(),
	})

	return s.openSession(created)
}

// Login verifies the credential and opens a session. Unknown emails and
// wrong passwords fail alike, disabled accounts fail with
// ErrAccountDisabled.
func (s *AccountService) Login(ctx context.Context, payload LoginPayload) (*Session, error) {
	if err := payload.Validate(); err != nil {
		return nil, validationError(err)
	}

	account, err := s.store.FindByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// keep timing close to a real comparison
			_ = s.passwords.ComparePasswordAndHash(payload.Password, s.placeholderHash())
			s.loginFailed(ctx, "", "unknown email")
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, err
	}

	if err := s.passwords.ComparePasswordAndHash(payload.Password, account.PasswordHash); err != nil {
		s.loginFailed(ctx, account.ID.String(), "password mismatch")
		return nil, ErrMismatchedHashAndPassword
	}

	if !account.IsActive {
		s.loginFailed(ctx, account.ID.String(), "account disabled")
		return nil, ErrAccountDisabled
	}

	// the comparison ran outside the transaction, re-read before writing
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx AccountStore) error {
		current, err := tx.FindByID(ctx, account.ID.String())
		if err != nil {
			return err
		}
		if current.PasswordHash != account.PasswordHash {
			return ErrMismatchedHashAndPassword
		}
		if !current.IsActive {
			return ErrAccountDisabled
		}

		now := s.now()
		current.LastLoginAt = &now
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		account = current
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountDisabled):
			s.loginFailed(ctx, account.ID.String(), "account disabled")
		case errors.Is(err, ErrMismatchedHashAndPassword), errors.Is(err, ErrAccountNotFound):
			s.loginFailed(ctx, account.ID.String(), "credential changed")
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		ActorID:   account.ID.String(),
		AccountID: account.ID.String(),
	})

	return s.openSession(account)
}

// Resolve maps a session token to its active account. Sessions of
// disabled accounts fail with ErrUnauthenticated.
func (s *AccountService) Resolve(ctx context.Context, token string) (*Account, error) {
	accountID, err := s.tokens.ValidateSession(token)
	if err != nil {
		return nil, err
	}

	account, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	// a disabled account keeps no identity, its sessions are unauthenticated
	if !account.IsActive {
		return nil, ErrUnauthenticated
	}

	return account, nil
}

// ListAccounts returns active accounts, newest first
func (s *AccountService) ListAccounts(ctx context.Context, actor *Account, page Page) (*AccountList, error) {
	if err := Check(actor, CapabilityAdminArea); err != nil {
		return nil, err
	}
	return s.list(ctx, ActiveAccounts(), page)
}

// ListDisabled returns soft deleted accounts, superadmins only
func (s *AccountService) ListDisabled(ctx context.Context, actor *Account, page Page) (*AccountList, error) {
	if err := Check(actor, CapabilitySuperadminOnly); err != nil {
		return nil, err
	}
	return s.list(ctx, DisabledAccounts(), page)
}

func (s *AccountService) list(ctx context.Context, filter AccountFilter, page Page) (*AccountList, error) {
	page = page.Normalize()

	total, err := s.store.CountWhere(ctx, filter)
	if err != nil {
		return nil, err
	}

	records, err := s.store.ListWhere(ctx, filter, page)
	if err != nil {
		return nil, err
	}

	views := make([]AccountView, 0, len(records))
	for _, rec := range records {
		views = append(views, rec.View())
	}

	pages := 0
	if total > 0 {
		pages = (total + page.Limit - 1) / page.Limit
	}

	return &AccountList{
		Accounts: views,
		Page:     page.Number,
		Limit:    page.Limit,
		Total:    total,
		Pages:    pages,
	}, nil
}

func (s *AccountService) openSession(account *Account) (*Session, error) {
	token, err := s.tokens.IssueSession(account.ID.String())
	if err != nil {
		return nil, err
	}
	return &Session{
		Account:   account,
		Token:     token,
		ExpiresAt: s.now().Add(s.tokens.SessionTTL()),
	}, nil
}

func (s *AccountService) loginFailed(ctx context.Context, accountID, reason string) {
	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		AccountID: accountID,
		Metadata:  map[string]any{"reason": reason},
	})
}

func (s *AccountService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.passwords.HashPassword("placeholder-credential")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}
