package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/database"
	"github.com/goliatone/go-accounts/middleware/sessionware"
	"github.com/goliatone/go-accounts/middleware/throttle"
	"github.com/goliatone/go-accounts/notify"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
)

type App struct {
	config   *config.Config
	logger   accounts.Logger
	db       *bun.DB
	machine  *accounts.AccountStateMachine
	srv      router.Server[*fiber.App]
	notifier accounts.Notifier
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	logger := accounts.DefaultLogger()

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, print.MaybePrettyJSON(err))
		os.Exit(1)
	}

	if cfg.Debug {
		redacted := *cfg
		redacted.SigningKey = "***"
		redacted.Mail.Password = "***"
		fmt.Println(print.MaybePrettyJSON(redacted))
	}

	ctx := context.Background()
	app := &App{config: cfg, logger: logger}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithNotifier(app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(app); err != nil {
		panic(err)
	}

	go func() {
		if err := app.srv.Serve(cfg.HTTP.Address); err != nil {
			logger.Error("server stopped: %v", err)
		}
	}()

	sig := WaitExitSignal()
	logger.Info("received %s, shutting down", sig)

	if err := app.srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown: %v", err)
	}
	app.machine.Wait()
	if err := app.db.Close(); err != nil {
		logger.Error("closing database: %v", err)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := database.Setup(ctx, dbOptions(app.config), app.logger)
	if err != nil {
		return err
	}
	app.db = db
	return nil
}

func WithNotifier(app *App) error {
	var notifier accounts.Notifier
	switch app.config.Mail.Driver {
	case "smtp":
		smtp, err := notify.NewSMTP(notify.SMTPConfig{
			Host:     app.config.Mail.Host,
			Port:     app.config.Mail.Port,
			Username: app.config.Mail.Username,
			Password: app.config.Mail.Password,
			From:     app.config.Mail.From,
			Timeout:  app.config.Mail.Timeout,
		}, notify.WithSMTPLogger(app.logger))
		if err != nil {
			return err
		}
		notifier = smtp
	default:
		notifier = notify.NewLog(app.logger, 0)
	}

	app.notifier = notify.WithTimeout(notifier, app.config.Mail.Timeout)
	return nil
}

func WithHTTPServer(app *App) error {
	cfg := app.config

	store := accounts.NewBunStore(app.db,
		accounts.WithTxOptions(database.TxOptions(dbOptions(cfg))),
		accounts.WithStoreLogger(app.logger),
	)

	tokens := accounts.NewTokenServiceFromConfig(cfg, accounts.WithTokenLogger(app.logger))
	messages := accounts.NewMessageBuilder(cfg.GetFrontendURL())
	activity := accounts.ActivitySinkFunc(func(_ context.Context, event accounts.ActivityEvent) error {
		app.logger.Info("activity %s actor=%s account=%s %s->%s",
			event.EventType, event.ActorID, event.AccountID, event.FromState, event.ToState)
		return nil
	})

	app.machine = accounts.NewAccountStateMachine(store, tokens, app.notifier,
		accounts.WithRecoveryTokenTTL(cfg.GetRecoveryTokenTTL()),
		accounts.WithNotifyTimeout(cfg.Mail.Timeout),
		accounts.WithMessageBuilder(messages),
		accounts.WithStateMachineActivitySink(activity),
		accounts.WithStateMachineLogger(app.logger),
	)

	resets := accounts.NewPasswordResetService(store, tokens, app.notifier,
		accounts.WithResetTokenTTL(cfg.GetResetTokenTTL()),
		accounts.WithResetNotifyTimeout(cfg.Mail.Timeout),
		accounts.WithResetMessageBuilder(messages),
		accounts.WithResetActivitySink(activity),
		accounts.WithResetLogger(app.logger),
	)

	service := accounts.NewAccountService(store, tokens,
		accounts.WithAccountActivitySink(activity),
		accounts.WithAccountLogger(app.logger),
	)

	controller := accounts.NewAccountsController(service, resets, app.machine,
		accounts.WithControllerConfig(cfg),
		accounts.WithControllerLogger(app.logger),
	)

	protect := sessionware.New(sessionware.Config{
		Resolver:    service,
		ContextKey:  cfg.GetContextKey(),
		TokenLookup: cfg.GetTokenLookup(),
		AuthScheme:  cfg.GetAuthScheme(),
		Debug:       cfg.GetDebug(),
		Logger:      app.logger,
	})

	limit := throttle.New(throttle.Config{
		Requests: cfg.Throttle.Requests,
		Window:   cfg.Throttle.Window,
		Logger:   app.logger,
	})

	app.srv = router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: cfg.GetDebug(),
			StrictRouting:     false,
		}))
	})

	accounts.RegisterRoutes(app.srv.Router(), controller, protect, limit)
	return nil
}

func dbOptions(cfg *config.Config) database.Options {
	return database.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		Serializable: cfg.Database.Serializable,
		Debug:        cfg.Debug,
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
