package accounts

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const defaultSessionExpiration = 7 * 24

// TokenService issues and validates session tokens and one shot tokens
type TokenService struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
	clock           func() time.Time
}

// TokenServiceOption configures a TokenService
type TokenServiceOption func(*TokenService)

// WithTokenClock overrides the time source
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.clock = clock
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// WithTokenIssuer sets the iss claim and requires it on validation
func WithTokenIssuer(issuer string) TokenServiceOption {
	return func(ts *TokenService) {
		ts.issuer = issuer
	}
}

// WithTokenAudience sets the aud claim and requires it on validation
func WithTokenAudience(audience ...string) TokenServiceOption {
	return func(ts *TokenService) {
		ts.audience = jwt.ClaimStrings(audience)
	}
}

// NewTokenService creates a new TokenService. tokenExpiration is expressed
// in hours, 0 means seven days.
func NewTokenService(signingKey []byte, tokenExpiration int, opts ...TokenServiceOption) *TokenService {
	if tokenExpiration <= 0 {
		tokenExpiration = defaultSessionExpiration
	}
	ts := &TokenService{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		logger:          defLogger{},
		clock:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// NewTokenServiceFromConfig builds the service from a Config
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) *TokenService {
	base := []TokenServiceOption{
		WithTokenIssuer(cfg.GetIssuer()),
		WithTokenAudience(cfg.GetAudience()...),
	}
	return NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetSessionExpiration(), append(base, opts...)...)
}

// Now returns the service clock
func (ts *TokenService) Now() time.Time {
	return ts.clock()
}

// SessionTTL returns the lifetime of a session token
func (ts *TokenService) SessionTTL() time.Duration {
	return time.Duration(ts.tokenExpiration) * time.Hour
}

// IssueSession creates a signed session token for accountID
func (ts *TokenService) IssueSession(accountID string) (string, error) {
	if len(ts.signingKey) == 0 {
		return "", ErrConfig
	}
	if accountID == "" {
		return "", goerrors.New("account id is required", goerrors.CategoryBadInput)
	}

	now := ts.clock()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   accountID,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.SessionTTL())),
		},
		UID: accountID,
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signedString, nil
}

// ValidateSession parses tokenString and returns the account id it carries
func (ts *TokenService) ValidateSession(tokenString string) (string, error) {
	claims, err := ts.ParseSession(tokenString)
	if err != nil {
		return "", err
	}
	return claims.AccountID(), nil
}

// ParseSession parses and validates tokenString returning its claims
func (ts *TokenService) ParseSession(tokenString string) (*SessionClaims, error) {
	if len(ts.signingKey) == 0 {
		return nil, ErrConfig
	}
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.clock),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		// issued tokens carry every configured audience
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("token service: unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenSignatureMismatch
		default:
			ts.logger.Debug("token service: rejected session token: %v", err)
			return nil, ErrTokenMalformed
		}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.AccountID() == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
