package notify

import (
	"context"
	"time"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/wneessen/go-mail"
)

// SMTPConfig holds the mail server settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Sender delivers built messages, *mail.Client satisfies it
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTP is a Notifier that sends plain text email
type SMTP struct {
	from   string
	sender Sender
	logger accounts.Logger
}

var _ accounts.Notifier = (*SMTP)(nil)

// SMTPOption configures an SMTP notifier
type SMTPOption func(*SMTP)

// WithSender replaces the mail client
func WithSender(sender Sender) SMTPOption {
	return func(s *SMTP) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// WithSMTPLogger sets the logger
func WithSMTPLogger(logger accounts.Logger) SMTPOption {
	return func(s *SMTP) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSMTP returns a notifier for cfg. The client uses opportunistic TLS
// and plain auth when a username is configured.
func NewSMTP(cfg SMTPConfig, opts ...SMTPOption) (*SMTP, error) {
	if cfg.From == "" {
		return nil, goerrors.New("mail sender address is required", goerrors.CategoryBadInput).
			WithTextCode(accounts.TextCodeConfigError)
	}

	s := &SMTP{
		from:   cfg.From,
		logger: accounts.DefaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.sender == nil {
		client, err := newClient(cfg)
		if err != nil {
			return nil, err
		}
		s.sender = client
	}

	return s, nil
}

func newClient(cfg SMTPConfig) (*mail.Client, error) {
	if cfg.Host == "" {
		return nil, goerrors.New("mail host is required", goerrors.CategoryBadInput).
			WithTextCode(accounts.TextCodeConfigError)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	options := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, options...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create mail client").
			WithTextCode(accounts.TextCodeConfigError)
	}
	return client, nil
}

// BuildMessage renders n as a plain text email
func (s *SMTP) BuildMessage(n accounts.Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid sender address")
	}
	if err := msg.To(n.To); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid recipient address").
			WithMetadata(map[string]any{"kind": string(n.Kind)})
	}
	msg.Subject(n.Subject)
	msg.SetBodyString(mail.TypeTextPlain, n.Body)
	return msg, nil
}

// Send implements accounts.Notifier
func (s *SMTP) Send(ctx context.Context, n accounts.Notification) error {
	msg, err := s.BuildMessage(n)
	if err != nil {
		return err
	}

	if err := s.sender.DialAndSendWithContext(ctx, msg); err != nil {
		s.logger.Error("smtp delivery of %s failed: %v", n.Kind, err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver email")
	}

	s.logger.Debug("smtp delivered %s", n.Kind)
	return nil
}
