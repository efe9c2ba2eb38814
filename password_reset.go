package accounts

import (
	"context"
	"errors"
	"time"
)

// ResetRequestedMessage is returned whether or not the email exists
const ResetRequestedMessage = "If an account exists with this email, a reset link has been sent."

// PasswordResetService issues and consumes password reset tokens
type PasswordResetService struct {
	store         CredentialStore
	tokens        *TokenService
	notifier      Notifier
	passwords     PasswordAuthenticator
	messages      MessageBuilder
	ttl           time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
	activitySink  ActivitySink
	logger        Logger
}

// PasswordResetOption configures a PasswordResetService
type PasswordResetOption func(*PasswordResetService)

// WithResetTokenTTL sets how long a reset link stays valid
func WithResetTokenTTL(ttl time.Duration) PasswordResetOption {
	return func(s *PasswordResetService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithResetClock injects a custom clock
func WithResetClock(clock func() time.Time) PasswordResetOption {
	return func(s *PasswordResetService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithResetLogger sets the logger
func WithResetLogger(logger Logger) PasswordResetOption {
	return func(s *PasswordResetService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResetActivitySink sets the activity sink
func WithResetActivitySink(sink ActivitySink) PasswordResetOption {
	return func(s *PasswordResetService) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithResetMessageBuilder sets the notification renderer
func WithResetMessageBuilder(builder MessageBuilder) PasswordResetOption {
	return func(s *PasswordResetService) {
		s.messages = builder
	}
}

// WithResetNotifyTimeout bounds the reset email dispatch
func WithResetNotifyTimeout(timeout time.Duration) PasswordResetOption {
	return func(s *PasswordResetService) {
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
	}
}

// WithResetPasswordAuthenticator overrides how new passwords are hashed
func WithResetPasswordAuthenticator(auth PasswordAuthenticator) PasswordResetOption {
	return func(s *PasswordResetService) {
		if auth != nil {
			s.passwords = auth
		}
	}
}

// NewPasswordResetService returns the reset flow over store
func NewPasswordResetService(store CredentialStore, tokens *TokenService, notifier Notifier, opts ...PasswordResetOption) *PasswordResetService {
	s := &PasswordResetService{
		store:         store,
		tokens:        tokens,
		notifier:      normalizeNotifier(notifier),
		passwords:     NewBcryptAuthenticator(0),
		ttl:           DefaultOneShotTTL,
		notifyTimeout: defaultNotifyTimeout,
		now:           tokens.Now,
		activitySink:  noopActivitySink{},
		logger:        defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RequestReset stores a reset token for email and mails the link. The
// returned message is the same for known and unknown emails. If the email
// cannot be sent the stored token is rolled back and ErrDispatchFailure
// is returned.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (string, error) {
	if err := (ForgotPasswordPayload{Email: email}).Validate(); err != nil {
		return "", validationError(err)
	}

	token, err := s.tokens.IssueOneShot(PurposeReset, s.ttl)
	if err != nil {
		return "", err
	}

	var (
		next           *Account
		previousToken  *string
		previousExpiry *time.Time
	)

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx AccountStore) error {
		account, err := tx.FindByEmail(ctx, email)
		if err != nil {
			return err
		}

		previousToken = cloneString(account.PasswordResetToken)
		previousExpiry = cloneTime(account.PasswordResetExpires)

		account.PasswordResetToken = &token.Stored
		account.PasswordResetExpires = &token.ExpiresAt
		if err := tx.Save(ctx, account); err != nil {
			return err
		}
		next = account
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.logger.Debug("password reset requested for unknown email")
			return ResetRequestedMessage, nil
		}
		return "", err
	}

	msg := s.messages.PasswordReset(next, token)
	if err := s.send(ctx, msg); err != nil {
		s.logger.Error("password reset email to %s failed: %v", next.Email, err)
		if rbErr := s.rollback(context.WithoutCancel(ctx), next.ID.String(), token.Stored, previousToken, previousExpiry); rbErr != nil {
			s.logger.Error("password reset rollback for %s failed: %v", next.Email, rbErr)
		}
		return "", err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventPasswordResetIssued,
		AccountID: next.ID.String(),
	})

	return ResetRequestedMessage, nil
}

// rollback restores the previous pair unless a newer request replaced ours
func (s *PasswordResetService) rollback(ctx context.Context, accountID, stored string, prevToken *string, prevExpiry *time.Time) error {
	return s.store.RunInTx(ctx, func(ctx context.Context, tx AccountStore) error {
		current, err := tx.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if current.PasswordResetToken == nil || *current.PasswordResetToken != stored {
			return nil
		}
		current.PasswordResetToken = prevToken
		current.PasswordResetExpires = prevExpiry
		return tx.Save(ctx, current)
	})
}

// ConsumeReset sets newPassword on the account holding token and clears
// the token. The credential is untouched unless the token is valid.
func (s *PasswordResetService) ConsumeReset(ctx context.Context, token, newPassword string) (*Account, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	if err := validatePassword(newPassword); err != nil {
		return nil, err
	}

	var updated *Account
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx AccountStore) error {
		stored := s.tokens.StorageRepresentation(PurposeReset, token)
		account, err := tx.FindByResetToken(ctx, stored)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}

		if account.PasswordResetToken == nil ||
			!s.tokens.ConsumeOneShot(PurposeReset, token, *account.PasswordResetToken, account.PasswordResetExpires, s.now()) {
			return ErrInvalidOrExpiredToken
		}

		hash, err := s.passwords.HashPassword(newPassword)
		if err != nil {
			return err
		}

		account.PasswordHash = hash
		account.ClearResetToken()
		if err := tx.Save(ctx, account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventPasswordResetDone,
		ActorID:   updated.ID.String(),
		AccountID: updated.ID.String(),
	})

	return updated, nil
}

func (s *PasswordResetService) send(ctx context.Context, msg Notification) error {
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	if err := s.notifier.Send(ctx, msg); err != nil {
		return wrapDispatchError(err, msg)
	}
	return nil
}
