package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// EnsureSchema creates the accounts table and its token indexes
func EnsureSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().
		Model((*Account)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create accounts table")
	}

	indexes := map[string]string{
		"accounts_role_active_idx":    "role, is_active",
		"accounts_reset_token_idx":    "password_reset_token",
		"accounts_recovery_token_idx": "recovery_token",
	}
	for name, columns := range indexes {
		if _, err := db.NewCreateIndex().
			Model((*Account)(nil)).
			Index(name).
			IfNotExists().
			ColumnExpr(columns).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create index "+name)
		}
	}
	return nil
}
