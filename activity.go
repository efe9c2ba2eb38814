package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountDisabled     ActivityEventType = "account.disabled"
	ActivityEventAccountRestored     ActivityEventType = "account.restored"
	ActivityEventAccountRecovered    ActivityEventType = "account.recovered"
	ActivityEventApprovalRequested   ActivityEventType = "account.approval.requested"
	ActivityEventSuperadminApproved  ActivityEventType = "account.superadmin.approved"
	ActivityEventPlanChanged         ActivityEventType = "account.plan.changed"
	ActivityEventSignup              ActivityEventType = "auth.signup"
	ActivityEventLoginSuccess        ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure        ActivityEventType = "auth.login.failure"
	ActivityEventPasswordResetIssued ActivityEventType = "auth.password.reset.requested"
	ActivityEventPasswordResetDone   ActivityEventType = "auth.password.reset"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	ActorID    string
	AccountID  string
	FromState  AccountState
	ToState    AccountState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now func() time.Time, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		logger.Warn("activity sink failed to record %s: %v", event.EventType, err)
	}
}
