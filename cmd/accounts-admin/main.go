package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/database"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const usage = `usage: accounts-admin [-config path] <command> [flags]

commands:
  create-superadmin -email <email> -name <name> -password <password>
  status -email <email>
`

func main() {
	global := flag.NewFlagSet("accounts-admin", flag.ExitOnError)
	configPath := global.String("config", "config.yaml", "path to the YAML config file")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		os.Exit(2)
	}

	logger := accounts.DefaultLogger()
	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		fail(err)
	}

	ctx := context.Background()
	db, err := database.Setup(ctx, database.Options{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	}, logger)
	if err != nil {
		fail(err)
	}
	defer db.Close()

	store := accounts.NewBunStore(db, accounts.WithStoreLogger(logger))

	switch args[0] {
	case "create-superadmin":
		err = createSuperadmin(ctx, store, args[1:])
	case "status":
		err = status(ctx, store, args[1:])
	default:
		global.Usage()
		os.Exit(2)
	}

	if err != nil {
		fail(err)
	}
}

func createSuperadmin(ctx context.Context, store accounts.CredentialStore, args []string) error {
	fs := flag.NewFlagSet("create-superadmin", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	name := fs.String("name", "Super Admin", "display name, used when creating")
	password := fs.String("password", "", "password, used when creating")
	_ = fs.Parse(args)

	account, created, err := promote(ctx, store, accounts.NewBcryptAuthenticator(0), *email, *name, *password)
	if err != nil {
		return err
	}

	if created {
		fmt.Printf("created superadmin %s\n", account.Email)
	} else {
		fmt.Printf("promoted %s to superadmin\n", account.Email)
	}
	fmt.Println(print.MaybePrettyJSON(account.View()))
	return nil
}

// promote creates a superadmin for email, or upgrades the existing account
// and reactivates it
func promote(ctx context.Context, store accounts.CredentialStore, auth accounts.PasswordAuthenticator, email, name, password string) (*accounts.Account, bool, error) {
	email = accounts.NormalizeEmail(email)
	if email == "" {
		return nil, false, goerrors.New("email is required", goerrors.CategoryBadInput).
			WithTextCode(accounts.TextCodeInvalidInput)
	}

	var (
		result  *accounts.Account
		created bool
	)

	err := store.RunInTx(ctx, func(ctx context.Context, tx accounts.AccountStore) error {
		existing, err := tx.FindByEmail(ctx, email)
		if err != nil && !goerrors.IsNotFound(err) {
			return err
		}

		if existing != nil {
			existing.Role = accounts.RoleSuperadmin
			existing.IsActive = true
			existing.ClearRecoveryToken()
			if err := tx.Save(ctx, existing); err != nil {
				return err
			}
			result = existing
			return nil
		}

		if password == "" {
			return goerrors.New("password is required to create an account", goerrors.CategoryBadInput).
				WithTextCode(accounts.TextCodeInvalidInput)
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}

		account := accounts.NewAccount(name, email, hash)
		account.Role = accounts.RoleSuperadmin
		account.Plan = accounts.PlanPremium

		result, err = tx.Create(ctx, account)
		if err != nil {
			return err
		}
		created = true
		return nil
	})

	return result, created, err
}

func status(ctx context.Context, store accounts.AccountStore, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	_ = fs.Parse(args)

	account, err := store.FindByEmail(ctx, *email)
	if err != nil {
		return err
	}

	superadmins, err := store.CountWhere(ctx, accounts.ActiveSuperadmins())
	if err != nil {
		return err
	}

	fmt.Println(print.MaybePrettyJSON(map[string]any{
		"account":             account.View(),
		"capabilities":        accounts.Capabilities(account),
		"active_superadmins":  superadmins,
		"recovery_pending":    account.RecoveryToken != nil,
		"reset_token_pending": account.PasswordResetToken != nil,
	}))
	return nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, print.MaybePrettyJSON(err))
	os.Exit(1)
}
