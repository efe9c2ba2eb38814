package notify

import (
	"context"
	"time"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
)

type timeoutNotifier struct {
	next    accounts.Notifier
	timeout time.Duration
}

// WithTimeout bounds every Send of next. A notifier that does not return
// in time is reported as failed even if it ignores its context.
func WithTimeout(next accounts.Notifier, timeout time.Duration) accounts.Notifier {
	if timeout <= 0 {
		return next
	}
	return &timeoutNotifier{next: next, timeout: timeout}
}

func (t *timeoutNotifier) Send(ctx context.Context, n accounts.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- t.next.Send(ctx, n)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "notification timed out").
			WithMetadata(map[string]any{
				"kind":    string(n.Kind),
				"timeout": t.timeout.String(),
			})
	}
}
