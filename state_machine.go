package accounts

import (
	"context"
	"errors"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const defaultNotifyTimeout = 10 * time.Second

// AccountStateMachine runs the privileged lifecycle transitions. Each
// transition is planned by a pure function, persisted in one store
// transaction and its notifications are dispatched after commit.
type AccountStateMachine struct {
	store         CredentialStore
	tokens        *TokenService
	notifier      Notifier
	messages      MessageBuilder
	recoveryTTL   time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
	activitySink  ActivitySink
	logger        Logger
	pending       sync.WaitGroup
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*AccountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *AccountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *AccountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *AccountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithRecoveryTokenTTL sets how long a recovery link stays valid.
func WithRecoveryTokenTTL(ttl time.Duration) StateMachineOption {
	return func(sm *AccountStateMachine) {
		if ttl > 0 {
			sm.recoveryTTL = ttl
		}
	}
}

// WithNotifyTimeout bounds each post commit dispatch.
func WithNotifyTimeout(timeout time.Duration) StateMachineOption {
	return func(sm *AccountStateMachine) {
		if timeout > 0 {
			sm.notifyTimeout = timeout
		}
	}
}

// WithMessageBuilder sets the notification renderer.
func WithMessageBuilder(builder MessageBuilder) StateMachineOption {
	return func(sm *AccountStateMachine) {
		sm.messages = builder
	}
}

// NewAccountStateMachine returns a machine over store
func NewAccountStateMachine(store CredentialStore, tokens *TokenService, notifier Notifier, opts ...StateMachineOption) *AccountStateMachine {
	sm := &AccountStateMachine{
		store:         store,
		tokens:        tokens,
		notifier:      normalizeNotifier(notifier),
		recoveryTTL:   DefaultOneShotTTL,
		notifyTimeout: defaultNotifyTimeout,
		now:           tokens.Now,
		activitySink:  noopActivitySink{},
		logger:        defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// Wait blocks until every background dispatch has finished
func (sm *AccountStateMachine) Wait() {
	sm.pending.Wait()
}

// Disable soft deletes the target. Disabling a superadmin mints a recovery
// token and fails with ErrLastSuperadmin if no other active superadmin
// would remain.
func (sm *AccountStateMachine) Disable(ctx context.Context, actor *Account, targetID string) (*Account, error) {
	if err := Check(actor, CapabilityAdminArea); err != nil {
		return nil, err
	}

	var plan TransitionPlan
	err := sm.store.RunInTx(ctx, func(ctx context.Context, tx AccountStore) error {
		target, err := tx.FindByID(ctx, targetID)
		if err != nil {
			return err
		}

		var recovery *OneShotToken
		if target.IsActiveSuperadmin() {
			count, err := tx.CountWhere(ctx, ActiveSuperadmins())
			if err != nil {
				return err
			}
			if count <= 1 {
				return ErrLastSuperadmin
			}
			token, err := sm.tokens.IssueOneShot(PurposeRecovery, sm.recoveryTTL)
			if err != nil {
				return err
			}
			recovery = &token
		}

		plan, err = PlanDisable(actor, target, recovery, sm.messages)
		if err != nil {
			return err
		}
		return sm.persist(ctx, tx, plan)
	})
	if err != nil {
		sm.logTransitionError("disable", actor, targetID, err)
		return nil, err
	}

	sm.afterCommit(ctx, actor, plan)
	return plan.Account, nil
}

// Restore reactivates a disabled account, only a superadmin may do so
func (sm *AccountStateMachine) Restore(ctx context.Context, actor *Account, targetID string) (*Account, error) {
	if err := Check(actor, CapabilitySuperadminOnly); err != nil {
		return nil, err
	}

	var plan TransitionPlan
	err := sm.store.RunInTx(ctx, func(ctx context.Context, tx AccountStore) error {
		target, err := tx.FindByID(ctx, targetID)
		if err != nil {
			return err
		}
		plan, err = PlanRestore(actor, target)
		if err != nil {
			return err
		}
		return sm.persist(ctx, tx, plan)
	})
	if err != nil {
		sm.logTransitionError("restore", actor, targetID, err)
		return nil, err
	}

	sm.afterCommit(ctx, actor, plan)
	return plan.Account, nil
}

// RecoverViaToken reactivates the account holding token as admin. Unknown,
// consumed and expired tokens are indistinguishable to the caller.
func (sm *AccountStateMachine) RecoverViaToken(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	var plan TransitionPlan
	err := sm.store.RunInTx(ctx, func(ctx context.Context, tx AccountStore) error {
		stored := sm.tokens.StorageRepresentation(PurposeRecovery, token)
		target, err := tx.FindByRecoveryToken(ctx, stored)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}
		if target.RecoveryToken == nil ||
			!sm.tokens.ConsumeOneShot(PurposeRecovery, token, *target.RecoveryToken, target.RecoveryTokenExpiry, sm.now()) {
			return ErrInvalidOrExpiredToken
		}

		plan, err = PlanRecover(target)
		if err != nil {
			return err
		}
		return sm.persist(ctx, tx, plan)
	})
	if err != nil {
		if !errors.Is(err, ErrInvalidOrExpiredToken) {
			sm.logger.Error("recover via token failed: %v", err)
		}
		return nil, err
	}

	sm.afterCommit(ctx, plan.Account, plan)
	return plan.Account, nil
}

// RequestApproval asks every active superadmin to restore the requester's
// superadmin role. Nothing is persisted, so the dispatch happens inline and
// its failure is reported.
func (sm *AccountStateMachine) RequestApproval(ctx context.Context, actor *Account, requesterID string) error {
	if actor == nil || !actor.IsActive {
		return ErrUnauthenticated
	}

	requester, err := sm.store.FindByID(ctx, requesterID)
	if err != nil {
		return err
	}

	approvers, err := sm.store.ListWhere(ctx, ActiveSuperadmins(), Page{Number: 1, Limit: maxPageLimit})
	if err != nil {
		return err
	}

	plan, err := PlanApprovalRequest(actor, requester, approvers, sm.messages)
	if err != nil {
		sm.logTransitionError("request approval", actor, requesterID, err)
		return err
	}

	for _, msg := range plan.Notifications {
		if err := sm.dispatch(ctx, msg); err != nil {
			return err
		}
	}

	sm.record(ctx, actor, plan)
	return nil
}

// ApproveSuperadmin grants the superadmin role to target
func (sm *AccountStateMachine) ApproveSuperadmin(ctx context.Context, actor *Account, targetID string) (*Account, error) {
	if err := Check(actor, CapabilitySuperadminOnly); err != nil {
		return nil, err
	}

	var plan TransitionPlan
	err := sm.store.RunInTx(ctx, func(ctx context.Context, tx AccountStore) error {
		target, err := tx.FindByID(ctx, targetID)
		if err != nil {
			return err
		}
		plan, err = PlanApproveSuperadmin(actor, target, sm.messages)
		if err != nil {
			return err
		}
		return sm.persist(ctx, tx, plan)
	})
	if err != nil {
		sm.logTransitionError("approve superadmin", actor, targetID, err)
		return nil, err
	}

	sm.afterCommit(ctx, actor, plan)
	return plan.Account, nil
}

// UpdatePlan changes the subscription plan of target
func (sm *AccountStateMachine) UpdatePlan(ctx context.Context, actor *Account, targetID string, plan Plan) (*Account, error) {
	if err := Check(actor, CapabilityAdminArea); err != nil {
		return nil, err
	}

	var out TransitionPlan
	err := sm.store.RunInTx(ctx, func(ctx context.Context, tx AccountStore) error {
		target, err := tx.FindByID(ctx, targetID)
		if err != nil {
			return err
		}
		out, err = PlanUpdatePlan(actor, target, plan)
		if err != nil {
			return err
		}
		return sm.persist(ctx, tx, out)
	})
	if err != nil {
		sm.logTransitionError("update plan", actor, targetID, err)
		return nil, err
	}

	sm.afterCommit(ctx, actor, out)
	return out.Account, nil
}

func (sm *AccountStateMachine) persist(ctx context.Context, tx AccountStore, plan TransitionPlan) error {
	switch {
	case plan.NoOp:
		return nil
	case plan.Guarded:
		return tx.DisableSuperadmin(ctx, plan.Account)
	default:
		return tx.Save(ctx, plan.Account)
	}
}

// afterCommit dispatches in the background, the request context may be
// gone by then so only its values are kept
func (sm *AccountStateMachine) afterCommit(ctx context.Context, actor *Account, plan TransitionPlan) {
	if !plan.NoOp {
		sm.record(ctx, actor, plan)
	}
	if len(plan.Notifications) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	sm.pending.Add(1)
	go func() {
		defer sm.pending.Done()
		for _, msg := range plan.Notifications {
			if err := sm.dispatch(detached, msg); err != nil {
				sm.logger.Error("notification %s to %s failed after commit: %v", msg.Kind, msg.To, err)
			}
		}
	}()
}

func (sm *AccountStateMachine) dispatch(ctx context.Context, msg Notification) error {
	ctx, cancel := context.WithTimeout(ctx, sm.notifyTimeout)
	defer cancel()

	if err := sm.notifier.Send(ctx, msg); err != nil {
		return wrapDispatchError(err, msg)
	}
	return nil
}

func wrapDispatchError(err error, msg Notification) error {
	return goerrors.Wrap(err, ErrDispatchFailure.Category, ErrDispatchFailure.Message).
		WithTextCode(ErrDispatchFailure.TextCode).
		WithCode(ErrDispatchFailure.Code).
		WithMetadata(map[string]any{
			"kind": string(msg.Kind),
		})
}

func (sm *AccountStateMachine) record(ctx context.Context, actor *Account, plan TransitionPlan) {
	actorID := ""
	if actor != nil {
		actorID = actor.ID.String()
	}
	recordActivity(ctx, sm.activitySink, sm.logger, sm.now, ActivityEvent{
		EventType: plan.Event,
		ActorID:   actorID,
		AccountID: plan.Account.ID.String(),
		FromState: plan.From,
		ToState:   plan.To,
		Metadata: map[string]any{
			"role": string(plan.Account.Role),
			"plan": string(plan.Account.Plan),
		},
	})
}

func (sm *AccountStateMachine) logTransitionError(op string, actor *Account, targetID string, err error) {
	actorID := ""
	if actor != nil {
		actorID = actor.ID.String()
	}
	if HTTPStatus(err) >= 500 {
		sm.logger.Error("%s failed actor=%s target=%s: %v", op, actorID, targetID, err)
		return
	}
	sm.logger.Info("%s rejected actor=%s target=%s: %v", op, actorID, targetID, err)
}
