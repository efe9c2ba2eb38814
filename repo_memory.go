package accounts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a CredentialStore kept in process memory. RunInTx holds
// the store lock for the whole callback and works on a copy that is only
// swapped in when the callback succeeds.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
	clock    func() time.Time
}

var _ CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: map[uuid.UUID]*Account{},
		clock:    time.Now,
	}
}

// RunInTx implements CredentialStore
func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx AccountStore) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[uuid.UUID]*Account, len(m.accounts))
	for id, acc := range m.accounts {
		snapshot[id] = acc.Clone()
	}

	view := &memoryView{accounts: snapshot, clock: m.clock}
	if err := fn(ctx, view); err != nil {
		return err
	}

	m.accounts = snapshot
	return nil
}

func (m *MemoryStore) view() *memoryView {
	return &memoryView{accounts: m.accounts, clock: m.clock}
}

func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindByEmail(ctx, email)
}

func (m *MemoryStore) FindByID(ctx context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindByID(ctx, id)
}

func (m *MemoryStore) FindByResetToken(ctx context.Context, stored string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindByResetToken(ctx, stored)
}

func (m *MemoryStore) FindByRecoveryToken(ctx context.Context, stored string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindByRecoveryToken(ctx, stored)
}

func (m *MemoryStore) Create(ctx context.Context, account *Account) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Create(ctx, account)
}

func (m *MemoryStore) Save(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Save(ctx, account)
}

func (m *MemoryStore) DisableSuperadmin(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DisableSuperadmin(ctx, account)
}

func (m *MemoryStore) CountWhere(ctx context.Context, filter AccountFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CountWhere(ctx, filter)
}

func (m *MemoryStore) ListWhere(ctx context.Context, filter AccountFilter, page Page) ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListWhere(ctx, filter, page)
}

// memoryView operates on a map without locking, the caller owns the lock
type memoryView struct {
	accounts map[uuid.UUID]*Account
	clock    func() time.Time
}

func (v *memoryView) findFirst(match func(*Account) bool) (*Account, error) {
	for _, acc := range v.accounts {
		if match(acc) {
			return acc.Clone(), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (v *memoryView) FindByEmail(_ context.Context, email string) (*Account, error) {
	email = NormalizeEmail(email)
	return v.findFirst(func(a *Account) bool { return a.Email == email })
}

func (v *memoryView) FindByID(_ context.Context, id string) (*Account, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, ErrAccountNotFound
	}
	acc, ok := v.accounts[uid]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (v *memoryView) FindByResetToken(_ context.Context, stored string) (*Account, error) {
	if stored == "" {
		return nil, ErrAccountNotFound
	}
	return v.findFirst(func(a *Account) bool {
		return a.PasswordResetToken != nil && *a.PasswordResetToken == stored
	})
}

func (v *memoryView) FindByRecoveryToken(_ context.Context, stored string) (*Account, error) {
	if stored == "" {
		return nil, ErrAccountNotFound
	}
	return v.findFirst(func(a *Account) bool {
		return a.RecoveryToken != nil && *a.RecoveryToken == stored
	})
}

func (v *memoryView) Create(_ context.Context, account *Account) (*Account, error) {
	if account == nil {
		return nil, ErrInvalidInput
	}
	record := account.Clone()
	record.Email = NormalizeEmail(record.Email)
	for _, acc := range v.accounts {
		if acc.Email == record.Email {
			return nil, ErrEmailTaken
		}
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := v.clock()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	record.UpdatedAt = &now
	v.accounts[record.ID] = record
	return record.Clone(), nil
}

func (v *memoryView) Save(_ context.Context, account *Account) error {
	if account == nil {
		return ErrInvalidInput
	}
	if _, ok := v.accounts[account.ID]; !ok {
		return ErrAccountNotFound
	}
	record := account.Clone()
	now := v.clock()
	record.UpdatedAt = &now
	v.accounts[record.ID] = record
	return nil
}

func (v *memoryView) DisableSuperadmin(ctx context.Context, account *Account) error {
	current, ok := v.accounts[account.ID]
	if !ok {
		return ErrAccountNotFound
	}
	if !current.IsActiveSuperadmin() {
		return ErrLastSuperadmin
	}
	count, _ := v.CountWhere(ctx, ActiveSuperadmins())
	if count <= 1 {
		return ErrLastSuperadmin
	}
	return v.Save(ctx, account)
}

func (v *memoryView) CountWhere(_ context.Context, filter AccountFilter) (int, error) {
	count := 0
	for _, acc := range v.accounts {
		if filter.Matches(acc) {
			count++
		}
	}
	return count, nil
}

func (v *memoryView) ListWhere(_ context.Context, filter AccountFilter, page Page) ([]*Account, error) {
	matched := make([]*Account, 0)
	for _, acc := range v.accounts {
		if filter.Matches(acc) {
			matched = append(matched, acc)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.CreatedAt != nil && b.CreatedAt != nil && !a.CreatedAt.Equal(*b.CreatedAt) {
			return a.CreatedAt.After(*b.CreatedAt)
		}
		return a.Email < b.Email
	})

	page = page.Normalize()
	start := page.Offset()
	if start >= len(matched) {
		return []*Account{}, nil
	}
	end := start + page.Limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*Account, 0, end-start)
	for _, acc := range matched[start:end] {
		out = append(out, acc.Clone())
	}
	return out, nil
}
