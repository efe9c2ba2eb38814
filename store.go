package accounts

import (
	"context"
)

// AccountFilter narrows CountWhere and ListWhere. Zero fields match any.
type AccountFilter struct {
	Role   Role
	Active *bool
}

// ActiveSuperadmins matches accounts guarded by the last superadmin rule
func ActiveSuperadmins() AccountFilter {
	active := true
	return AccountFilter{Role: RoleSuperadmin, Active: &active}
}

// ActiveAccounts matches every active account
func ActiveAccounts() AccountFilter {
	active := true
	return AccountFilter{Active: &active}
}

// DisabledAccounts matches every soft deleted account
func DisabledAccounts() AccountFilter {
	active := false
	return AccountFilter{Active: &active}
}

// Matches evaluates the filter in memory
func (f AccountFilter) Matches(a *Account) bool {
	if a == nil {
		return false
	}
	if f.Role != "" && a.Role != f.Role {
		return false
	}
	if f.Active != nil && a.IsActive != *f.Active {
		return false
	}
	return true
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Page is a 1 based page request
type Page struct {
	Number int
	Limit  int
}

// Normalize applies defaults and bounds
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	return p
}

// Offset returns the number of records to skip
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Limit
}

// AccountStore is the persistence contract used inside and outside
// transactions. Lookups return ErrAccountNotFound when nothing matches.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	// FindByResetToken looks up by the stored (hashed) representation
	FindByResetToken(ctx context.Context, stored string) (*Account, error)
	FindByRecoveryToken(ctx context.Context, stored string) (*Account, error)
	Create(ctx context.Context, account *Account) (*Account, error)
	// Save persists every mutable column of account, nil columns included
	Save(ctx context.Context, account *Account) error
	// DisableSuperadmin writes account, which must carry is_active false
	// and its recovery pair, only if another active superadmin remains.
	// It fails with ErrLastSuperadmin otherwise.
	DisableSuperadmin(ctx context.Context, account *Account) error
	CountWhere(ctx context.Context, filter AccountFilter) (int, error)
	ListWhere(ctx context.Context, filter AccountFilter, page Page) ([]*Account, error)
}

// CredentialStore is an AccountStore that can scope a sequence of calls
// in one atomic unit. Returning an error from fn discards its writes.
type CredentialStore interface {
	AccountStore
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx AccountStore) error) error
}
