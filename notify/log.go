package notify

import (
	"context"
	"sync"

	"github.com/goliatone/go-accounts"
)

// Log prints notifications instead of sending them. It keeps the last
// messages so development tooling can show recovery and reset links.
type Log struct {
	logger accounts.Logger
	keep   int

	mu   sync.Mutex
	sent []accounts.Notification
}

var _ accounts.Notifier = (*Log)(nil)

// NewLog returns a logging notifier keeping up to keep messages
func NewLog(logger accounts.Logger, keep int) *Log {
	if logger == nil {
		logger = accounts.DefaultLogger()
	}
	if keep <= 0 {
		keep = 50
	}
	return &Log{logger: logger, keep: keep}
}

// Send implements accounts.Notifier
func (l *Log) Send(ctx context.Context, n accounts.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.logger.Info("notification kind=%s to=%s subject=%q\n%s", n.Kind, n.To, n.Subject, n.Body)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, n)
	if len(l.sent) > l.keep {
		l.sent = l.sent[len(l.sent)-l.keep:]
	}
	return nil
}

// Sent returns a copy of the retained notifications, oldest first
func (l *Log) Sent() []accounts.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]accounts.Notification, len(l.sent))
	copy(out, l.sent)
	return out
}
