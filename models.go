package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountState is derived from the active flag and the recovery token
type AccountState = string

const (
	// StateActive accounts can authenticate
	StateActive AccountState = "active"
	// StateDisabled accounts are soft deleted
	StateDisabled AccountState = "disabled"
	// StateRecovering is a disabled account holding a pending recovery token
	StateRecovering AccountState = "recovering"
)

// Account is the account model
type Account struct {
	bun.BaseModel        `bun:"table:accounts,alias:acc"`
	ID                   uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name                 string     `bun:"name,notnull" json:"name"`
	Email                string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash         string     `bun:"password_hash,notnull" json:"-"`
	Role                 Role       `bun:"role,notnull" json:"role"`
	Plan                 Plan       `bun:"plan,notnull" json:"plan"`
	IsActive             bool       `bun:"is_active,notnull" json:"is_active"`
	PasswordResetToken   *string    `bun:"password_reset_token" json:"-"`
	PasswordResetExpires *time.Time `bun:"password_reset_expires" json:"-"`
	RecoveryToken        *string    `bun:"recovery_token" json:"-"`
	RecoveryTokenExpiry  *time.Time `bun:"recovery_token_expiry" json:"-"`
	LastLoginAt          *time.Time `bun:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt            *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt            *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NewAccount returns an account with signup defaults
func NewAccount(name, email, passwordHash string) *Account {
	return &Account{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(name),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         RoleUser,
		Plan:         PlanFree,
		IsActive:     true,
	}
}

// State reports the lifecycle state of the account
func (a *Account) State() AccountState {
	if a == nil {
		return ""
	}
	if a.IsActive {
		return StateActive
	}
	if a.RecoveryToken != nil {
		return StateRecovering
	}
	return StateDisabled
}

// IsActiveSuperadmin is the predicate behind the last superadmin invariant
func (a *Account) IsActiveSuperadmin() bool {
	return a != nil && a.Role == RoleSuperadmin && a.IsActive
}

// Clone returns a deep copy so planners never mutate stored records
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.PasswordResetToken = cloneString(a.PasswordResetToken)
	c.PasswordResetExpires = cloneTime(a.PasswordResetExpires)
	c.RecoveryToken = cloneString(a.RecoveryToken)
	c.RecoveryTokenExpiry = cloneTime(a.RecoveryTokenExpiry)
	c.LastLoginAt = cloneTime(a.LastLoginAt)
	c.CreatedAt = cloneTime(a.CreatedAt)
	c.UpdatedAt = cloneTime(a.UpdatedAt)
	return &c
}

// ClearResetToken drops the password reset pair
func (a *Account) ClearResetToken() {
	a.PasswordResetToken = nil
	a.PasswordResetExpires = nil
}

// ClearRecoveryToken drops the recovery pair
func (a *Account) ClearRecoveryToken() {
	a.RecoveryToken = nil
	a.RecoveryTokenExpiry = nil
}

// AccountView is the public representation of an account
type AccountView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	Plan        Plan       `json:"plan"`
	IsActive    bool       `json:"is_active"`
	State       string     `json:"state"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// View strips credentials and tokens
func (a *Account) View() AccountView {
	return AccountView{
		ID:          a.ID.String(),
		Name:        a.Name,
		Email:       a.Email,
		Role:        a.Role,
		Plan:        a.Plan,
		IsActive:    a.IsActive,
		State:       a.State(),
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}

// NormalizeEmail lower cases and trims so lookups are case insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
