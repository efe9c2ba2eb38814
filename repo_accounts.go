package accounts

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunStore is the CredentialStore backed by bun
type BunStore struct {
	db      *bun.DB
	repo    repository.Repository[*Account]
	txOpts  *sql.TxOptions
	retries int
	logger  Logger
	clock   func() time.Time
}

// DefaultSerializationRetries is how many times RunInTx reruns a
// transaction that lost a serialization race
const DefaultSerializationRetries = 2

var _ CredentialStore = (*BunStore)(nil)

// BunStoreOption configures a BunStore
type BunStoreOption func(*BunStore)

// WithTxOptions sets the options used by RunInTx, for instance
// sql.LevelSerializable on postgres
func WithTxOptions(opts *sql.TxOptions) BunStoreOption {
	return func(s *BunStore) {
		s.txOpts = opts
	}
}

// WithSerializationRetries sets how many times a transaction that fails
// with a serialization error is rerun. Zero disables retries.
func WithSerializationRetries(retries int) BunStoreOption {
	return func(s *BunStore) {
		if retries >= 0 {
			s.retries = retries
		}
	}
}

// WithStoreLogger sets the logger
func WithStoreLogger(logger Logger) BunStoreOption {
	return func(s *BunStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewAccountsRepository wraps the generic repository for Account
func NewAccountsRepository(db *bun.DB) repository.Repository[*Account] {
	return repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})
}

// NewBunStore returns a store over db
func NewBunStore(db *bun.DB, opts ...BunStoreOption) *BunStore {
	s := &BunStore{
		db:      db,
		repo:    NewAccountsRepository(db),
		retries: DefaultSerializationRetries,
		logger:  defLogger{},
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RunInTx implements CredentialStore
func (s *BunStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx AccountStore) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = s.db.RunInTx(ctx, s.txOpts, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, s.view(tx))
		})
		if !isSerializationFailure(err) {
			return err
		}
		if attempt >= s.retries || ctx.Err() != nil {
			break
		}
		s.logger.Warn("transaction lost a serialization race, retrying (attempt %d)", attempt+1)
	}

	return goerrors.Wrap(err, ErrConcurrentUpdate.Category, ErrConcurrentUpdate.Message).
		WithTextCode(ErrConcurrentUpdate.TextCode).
		WithCode(ErrConcurrentUpdate.Code)
}

func (s *BunStore) view(idb bun.IDB) *bunView {
	return &bunView{idb: idb, repo: s.repo, clock: s.clock}
}

func (s *BunStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.view(s.db).FindByEmail(ctx, email)
}

func (s *BunStore) FindByID(ctx context.Context, id string) (*Account, error) {
	return s.view(s.db).FindByID(ctx, id)
}

func (s *BunStore) FindByResetToken(ctx context.Context, stored string) (*Account, error) {
	return s.view(s.db).FindByResetToken(ctx, stored)
}

func (s *BunStore) FindByRecoveryToken(ctx context.Context, stored string) (*Account, error) {
	return s.view(s.db).FindByRecoveryToken(ctx, stored)
}

func (s *BunStore) Create(ctx context.Context, account *Account) (*Account, error) {
	return s.view(s.db).Create(ctx, account)
}

func (s *BunStore) Save(ctx context.Context, account *Account) error {
	return s.view(s.db).Save(ctx, account)
}

func (s *BunStore) DisableSuperadmin(ctx context.Context, account *Account) error {
	return s.view(s.db).DisableSuperadmin(ctx, account)
}

func (s *BunStore) CountWhere(ctx context.Context, filter AccountFilter) (int, error) {
	return s.view(s.db).CountWhere(ctx, filter)
}

func (s *BunStore) ListWhere(ctx context.Context, filter AccountFilter, page Page) ([]*Account, error) {
	return s.view(s.db).ListWhere(ctx, filter, page)
}

type bunView struct {
	idb   bun.IDB
	repo  repository.Repository[*Account]
	clock func() time.Time
}

func (v *bunView) findOne(ctx context.Context, column string, value any) (*Account, error) {
	record := &Account{}
	err := v.idb.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err, "failed to load account")
	}
	return record, nil
}

func (v *bunView) FindByEmail(ctx context.Context, email string) (*Account, error) {
	record, err := v.repo.GetByIdentifierTx(ctx, v.idb, NormalizeEmail(email))
	if err != nil {
		return nil, mapStoreError(err, "failed to load account by email")
	}
	return record, nil
}

func (v *bunView) FindByID(ctx context.Context, id string) (*Account, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, ErrAccountNotFound
	}
	return v.findOne(ctx, "id", uid)
}

func (v *bunView) FindByResetToken(ctx context.Context, stored string) (*Account, error) {
	if stored == "" {
		return nil, ErrAccountNotFound
	}
	return v.findOne(ctx, "password_reset_token", stored)
}

func (v *bunView) FindByRecoveryToken(ctx context.Context, stored string) (*Account, error) {
	if stored == "" {
		return nil, ErrAccountNotFound
	}
	return v.findOne(ctx, "recovery_token", stored)
}

func (v *bunView) Create(ctx context.Context, account *Account) (*Account, error) {
	if account == nil {
		return nil, ErrInvalidInput
	}
	account.Email = NormalizeEmail(account.Email)
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := v.clock()
	if account.CreatedAt == nil {
		account.CreatedAt = &now
	}
	account.UpdatedAt = &now

	record, err := v.repo.CreateTx(ctx, v.idb, account)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create account")
	}
	return record, nil
}

func (v *bunView) Save(ctx context.Context, account *Account) error {
	if account == nil {
		return ErrInvalidInput
	}
	now := v.clock()
	account.UpdatedAt = &now

	res, err := v.idb.NewUpdate().
		Model(account).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save account")
	}
	if affected(res) == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (v *bunView) DisableSuperadmin(ctx context.Context, account *Account) error {
	if account == nil {
		return ErrInvalidInput
	}
	now := v.clock()
	account.UpdatedAt = &now

	others := v.idb.NewSelect().
		TableExpr("accounts AS sa").
		ColumnExpr("COUNT(*)").
		Where("sa.role = ?", RoleSuperadmin).
		Where("sa.is_active = ?", true)

	res, err := v.idb.NewUpdate().
		Model(account).
		Column("is_active", "recovery_token", "recovery_token_expiry", "updated_at").
		WherePK().
		Where("?TableAlias.role = ?", RoleSuperadmin).
		Where("?TableAlias.is_active = ?", true).
		Where("(?) > 1", others).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to disable superadmin")
	}
	if affected(res) == 0 {
		return ErrLastSuperadmin
	}
	return nil
}

func (v *bunView) applyFilter(q *bun.SelectQuery, filter AccountFilter) *bun.SelectQuery {
	if filter.Role != "" {
		q = q.Where("?TableAlias.role = ?", filter.Role)
	}
	if filter.Active != nil {
		q = q.Where("?TableAlias.is_active = ?", *filter.Active)
	}
	return q
}

func (v *bunView) CountWhere(ctx context.Context, filter AccountFilter) (int, error) {
	q := v.applyFilter(v.idb.NewSelect().Model((*Account)(nil)), filter)
	count, err := q.Count(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count accounts")
	}
	return count, nil
}

func (v *bunView) ListWhere(ctx context.Context, filter AccountFilter, page Page) ([]*Account, error) {
	page = page.Normalize()
	records := make([]*Account, 0)
	q := v.applyFilter(v.idb.NewSelect().Model(&records), filter).
		OrderExpr("?TableAlias.created_at DESC").
		OrderExpr("?TableAlias.email ASC").
		Limit(page.Limit).
		Offset(page.Offset())
	if err := q.Scan(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list accounts")
	}
	return records, nil
}

func mapStoreError(err error, msg string) error {
	if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
		return ErrAccountNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}

func affected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

type sqlStateError interface {
	SQLState() string
}

// isSerializationFailure reports SQLSTATE 40001
func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	var stateErr sqlStateError
	if errors.As(err, &stateErr) && stateErr.SQLState() == "40001" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "sqlstate 40001")
}
