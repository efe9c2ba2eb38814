package accounts

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// TokenPurpose selects how a one shot token is stored
type TokenPurpose string

const (
	// PurposeReset tokens are stored as hex(sha256(plaintext))
	PurposeReset TokenPurpose = "reset"
	// PurposeRecovery tokens are stored as the plaintext
	PurposeRecovery TokenPurpose = "recovery"
)

const oneShotTokenBytes = 32

// DefaultOneShotTTL applies to reset and recovery tokens
const DefaultOneShotTTL = 15 * time.Minute

// OneShotToken is a freshly minted single use token. Plaintext goes to the
// user, Stored goes to the credential store.
type OneShotToken struct {
	Purpose   TokenPurpose
	Plaintext string
	Stored    string
	ExpiresAt time.Time
}

// IssueOneShot mints a random token valid for ttl
func (ts *TokenService) IssueOneShot(purpose TokenPurpose, ttl time.Duration) (OneShotToken, error) {
	if purpose != PurposeReset && purpose != PurposeRecovery {
		return OneShotToken{}, goerrors.New("unknown token purpose", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"purpose": string(purpose)})
	}
	if ttl <= 0 {
		ttl = DefaultOneShotTTL
	}

	buf := make([]byte, oneShotTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return OneShotToken{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token")
	}

	plaintext := hex.EncodeToString(buf)
	return OneShotToken{
		Purpose:   purpose,
		Plaintext: plaintext,
		Stored:    StorageRepresentation(purpose, plaintext),
		ExpiresAt: ts.clock().Add(ttl),
	}, nil
}

// StorageRepresentation returns the value persisted for a presented token
func (ts *TokenService) StorageRepresentation(purpose TokenPurpose, presented string) string {
	return StorageRepresentation(purpose, presented)
}

// ConsumeOneShot reports whether presented matches stored and has not
// expired at now. The caller clears both stored fields on success.
func (ts *TokenService) ConsumeOneShot(purpose TokenPurpose, presented, stored string, storedExpiry *time.Time, now time.Time) bool {
	return ConsumeOneShot(purpose, presented, stored, storedExpiry, now)
}

// StorageRepresentation is the stateless form of TokenService.StorageRepresentation
func StorageRepresentation(purpose TokenPurpose, presented string) string {
	if purpose == PurposeReset {
		sum := sha256.Sum256([]byte(presented))
		return hex.EncodeToString(sum[:])
	}
	return presented
}

// ConsumeOneShot is the stateless form of TokenService.ConsumeOneShot
func ConsumeOneShot(purpose TokenPurpose, presented, stored string, storedExpiry *time.Time, now time.Time) bool {
	if presented == "" || stored == "" || storedExpiry == nil {
		return false
	}
	candidate := StorageRepresentation(purpose, presented)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) != 1 {
		return false
	}
	return now.Before(*storedExpiry)
}
