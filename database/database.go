package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects the driver and connection string
type Options struct {
	Driver       string
	DSN          string
	Serializable bool
	// Debug logs every query through the logger at debug level
	Debug bool
}

// Open connects to the database and pings it. SQLite connections are
// limited to one so writers are serialized.
func Open(ctx context.Context, opts Options, logger accounts.Logger) (*bun.DB, error) {
	if logger == nil {
		logger = accounts.DefaultLogger()
	}

	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch opts.Driver {
	case DriverSQLite, "":
		sqldb, err = sql.Open(sqliteshim.ShimName, opts.DSN)
		if err != nil {
			return nil, wrapOpen(err, opts.Driver)
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		sqldb, err = sql.Open("postgres", opts.DSN)
		if err != nil {
			return nil, wrapOpen(err, opts.Driver)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, goerrors.New("unsupported database driver", goerrors.CategoryBadInput).
			WithTextCode(accounts.TextCodeConfigError).
			WithMetadata(map[string]any{"driver": opts.Driver})
	}

	if opts.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.WithWriter(queryWriter{logger: logger}),
		))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, wrapOpen(err, opts.Driver)
	}

	logger.Info("database connected: driver=%s serializable=%t", db.Dialect().Name(), opts.Serializable)
	return db, nil
}

// TxOptions returns the isolation level transitions run with. Postgres
// needs serializable transactions for the last superadmin guard to hold
// under concurrent disables.
func TxOptions(opts Options) *sql.TxOptions {
	if opts.Serializable && opts.Driver == DriverPostgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// Setup opens the database and creates the schema
func Setup(ctx context.Context, opts Options, logger accounts.Logger) (*bun.DB, error) {
	db, err := Open(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	if err := accounts.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func wrapOpen(err error, driver string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open database").
		WithTextCode(accounts.TextCodeConfigError).
		WithMetadata(map[string]any{"driver": driver})
}

// queryWriter forwards bundebug output to the logger
type queryWriter struct {
	logger accounts.Logger
}

func (w queryWriter) Write(p []byte) (int, error) {
	w.logger.Debug("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
