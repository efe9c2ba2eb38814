package accounts

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	return hashPasswordWithCost(password, passwordHashCost())
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// RandomPasswordHash is a placeholder credential for accounts created
// without a password
func RandomPasswordHash() string {
	pwd := uuid.New()

	h, err := HashPassword(pwd.String())
	if err != nil {
		return RandomPasswordHash()
	}

	return h
}

func hashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// BcryptAuthenticator implements PasswordAuthenticator with a fixed cost
type BcryptAuthenticator struct {
	cost int
}

// NewBcryptAuthenticator returns an authenticator, cost 0 uses the
// build default
func NewBcryptAuthenticator(cost int) *BcryptAuthenticator {
	if cost == 0 {
		cost = passwordHashCost()
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptAuthenticator{cost: cost}
}

// HashPassword implements PasswordAuthenticator
func (b *BcryptAuthenticator) HashPassword(password string) (string, error) {
	return hashPasswordWithCost(password, b.cost)
}

// ComparePasswordAndHash implements PasswordAuthenticator
func (b *BcryptAuthenticator) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}
