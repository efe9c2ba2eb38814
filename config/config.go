package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, ACCOUNTS_MAIL_HOST
// overrides mail.host
const EnvPrefix = "ACCOUNTS"

type Database struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	Serializable bool   `mapstructure:"serializable"`
}

type Mail struct {
	Driver   string        `mapstructure:"driver"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type HTTP struct {
	Address string `mapstructure:"address"`
}

type Throttle struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// Config is the application configuration. It implements accounts.Config.
type Config struct {
	SigningKey        string        `mapstructure:"signing_key"`
	Issuer            string        `mapstructure:"issuer"`
	Audience          []string      `mapstructure:"audience"`
	SessionExpiration int           `mapstructure:"session_expiration"`
	ResetTokenTTL     time.Duration `mapstructure:"reset_token_ttl"`
	RecoveryTokenTTL  time.Duration `mapstructure:"recovery_token_ttl"`
	TokenLookup       string        `mapstructure:"token_lookup"`
	AuthScheme        string        `mapstructure:"auth_scheme"`
	ContextKey        string        `mapstructure:"context_key"`
	CookieSecure      bool          `mapstructure:"cookie_secure"`
	Debug             bool          `mapstructure:"debug"`
	FrontendURL       string        `mapstructure:"frontend_url"`

	Database Database `mapstructure:"database"`
	Mail     Mail     `mapstructure:"mail"`
	HTTP     HTTP     `mapstructure:"http"`
	Throttle Throttle `mapstructure:"throttle"`
}

var _ accounts.Config = (*Config)(nil)

var defaults = map[string]any{
	"issuer":             "go-accounts",
	"audience":           []string{},
	"session_expiration": 168,
	"reset_token_ttl":    accounts.DefaultOneShotTTL,
	"recovery_token_ttl": accounts.DefaultOneShotTTL,
	"token_lookup":       accounts.DefaultTokenLookup,
	"auth_scheme":        accounts.DefaultAuthScheme,
	"context_key":        accounts.DefaultContextKey,
	"cookie_secure":      false,
	"debug":              false,
	"frontend_url":       "http://localhost:5000",
	"signing_key":        "",

	"database.driver":       "sqlite",
	"database.dsn":          "file:accounts.db?cache=shared",
	"database.serializable": true,

	"mail.driver":   "log",
	"mail.host":     "",
	"mail.port":     587,
	"mail.username": "",
	"mail.password": "",
	"mail.from":     "",
	"mail.timeout":  10 * time.Second,

	"http.address": ":5000",

	"throttle.requests": 100,
	"throttle.window":   15 * time.Minute,
}

// Load reads path, when given, and applies ACCOUNTS_* environment
// overrides on top of the defaults. A missing file is not an error.
func Load(path string, logger accounts.Logger) (*Config, error) {
	if logger == nil {
		logger = accounts.DefaultLogger()
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file").
					WithTextCode(accounts.TextCodeConfigError).
					WithMetadata(map[string]any{"path": path})
			}
			logger.Warn("config file %s not found, using defaults and environment", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode config").
			WithTextCode(accounts.TextCodeConfigError)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("config loaded: database=%s mail=%s address=%s", cfg.Database.Driver, cfg.Mail.Driver, cfg.HTTP.Address)
	return &cfg, nil
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	fields := map[string]string{}

	if c.SigningKey == "" {
		fields["signing_key"] = "is required"
	}
	if c.SessionExpiration <= 0 {
		fields["session_expiration"] = "must be positive"
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		fields["database.driver"] = "must be sqlite or postgres"
	}
	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.Host == "" {
			fields["mail.host"] = "is required for the smtp driver"
		}
		if c.Mail.From == "" {
			fields["mail.from"] = "is required for the smtp driver"
		}
	default:
		fields["mail.driver"] = "must be smtp or log"
	}

	if len(fields) == 0 {
		return nil
	}

	return goerrors.New("invalid configuration", goerrors.CategoryBadInput).
		WithTextCode(accounts.TextCodeConfigError).
		WithMetadata(map[string]any{"fields": fields})
}

func (c *Config) GetSigningKey() string { return c.SigningKey }

func (c *Config) GetIssuer() string { return c.Issuer }

func (c *Config) GetAudience() []string { return c.Audience }

func (c *Config) GetSessionExpiration() int { return c.SessionExpiration }

func (c *Config) GetResetTokenTTL() time.Duration { return c.ResetTokenTTL }

func (c *Config) GetRecoveryTokenTTL() time.Duration { return c.RecoveryTokenTTL }

func (c *Config) GetContextKey() string { return c.ContextKey }

func (c *Config) GetTokenLookup() string { return c.TokenLookup }

func (c *Config) GetAuthScheme() string { return c.AuthScheme }

func (c *Config) GetCookieSecure() bool { return c.CookieSecure }

func (c *Config) GetFrontendURL() string { return c.FrontendURL }

func (c *Config) GetDebug() bool { return c.Debug }
