package accounts_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type machineFixture struct {
	clock    *testClock
	store    *accounts.MemoryStore
	notifier *recordingNotifier
	events   *eventLog
	sm       *accounts.AccountStateMachine
}

type eventLog struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (l *eventLog) Record(_ context.Context, event accounts.ActivityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) Types() []accounts.ActivityEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.EventType)
	}
	return out
}

func newMachineFixture(t *testing.T) *machineFixture {
	t.Helper()
	f := &machineFixture{
		clock:    newTestClock(),
		store:    accounts.NewMemoryStore(),
		notifier: &recordingNotifier{},
		events:   &eventLog{},
	}
	f.sm = accounts.NewAccountStateMachine(f.store, newTokens(f.clock), f.notifier,
		accounts.WithMessageBuilder(testMessages),
		accounts.WithStateMachineActivitySink(f.events),
		accounts.WithStateMachineLogger(quietLogger{}),
	)
	return f
}

func TestStateMachineLastSuperadminScenario(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	a := seedAccount(t, f.store, "a@x.com", accounts.RoleSuperadmin, true)

	_, err := f.sm.Disable(ctx, a, a.ID.String())
	assert.ErrorIs(t, err, accounts.ErrLastSuperadmin)

	unchanged := mustFind(t, f.store, a.ID.String())
	assert.True(t, unchanged.IsActive)
	assert.Nil(t, unchanged.RecoveryToken)

	b := seedAccount(t, f.store, "b@x.com", accounts.RoleSuperadmin, true)

	disabled, err := f.sm.Disable(ctx, b, a.ID.String())
	require.NoError(t, err)
	assert.False(t, disabled.IsActive)
	require.NotNil(t, disabled.RecoveryToken)
	require.NotNil(t, disabled.RecoveryTokenExpiry)
	assert.Equal(t, f.clock.Now().Add(accounts.DefaultOneShotTTL), *disabled.RecoveryTokenExpiry)

	stored := mustFind(t, f.store, a.ID.String())
	assert.False(t, stored.IsActive)
	assert.Equal(t, accounts.StateRecovering, stored.State())

	f.sm.Wait()
	recoveries := f.notifier.ByKind(accounts.NotificationRecovery)
	require.Len(t, recoveries, 1)
	assert.Equal(t, "a@x.com", recoveries[0].To)
	assert.Contains(t, recoveries[0].Body, *disabled.RecoveryToken)

	assert.Contains(t, f.events.Types(), accounts.ActivityEventAccountDisabled)
}

func TestStateMachineDisableRegularAccountSendsNothing(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	admin := seedAccount(t, f.store, "admin@x.com", accounts.RoleAdmin, true)
	user := seedAccount(t, f.store, "user@x.com", accounts.RoleUser, true)

	disabled, err := f.sm.Disable(ctx, admin, user.ID.String())
	require.NoError(t, err)
	assert.False(t, disabled.IsActive)
	assert.Nil(t, disabled.RecoveryToken)

	f.sm.Wait()
	assert.Empty(t, f.notifier.Sent())
}

func TestStateMachineDisableRequiresStaff(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	user := seedAccount(t, f.store, "user@x.com", accounts.RoleUser, true)
	other := seedAccount(t, f.store, "other@x.com", accounts.RoleUser, true)

	_, err := f.sm.Disable(ctx, user, other.ID.String())
	assert.ErrorIs(t, err, accounts.ErrForbidden)

	_, err = f.sm.Disable(ctx, nil, other.ID.String())
	assert.ErrorIs(t, err, accounts.ErrUnauthenticated)
	assert.True(t, mustFind(t, f.store, other.ID.String()).IsActive)
}

func TestStateMachineDisableUnknownTarget(t *testing.T) {
	f := newMachineFixture(t)
	admin := seedAccount(t, f.store, "admin@x.com", accounts.RoleAdmin, true)

	_, err := f.sm.Disable(context.Background(), admin, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
}

func TestStateMachineConcurrentDisablesLeaveOneSuperadmin(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	a := seedAccount(t, f.store, "a@x.com", accounts.RoleSuperadmin, true)
	b := seedAccount(t, f.store, "b@x.com", accounts.RoleSuperadmin, true)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pair := range [][2]*accounts.Account{{a, b}, {b, a}} {
		wg.Add(1)
		go func(i int, actor, target *accounts.Account) {
			defer wg.Done()
			_, errs[i] = f.sm.Disable(ctx, actor, target.ID.String())
		}(i, pair[0], pair[1])
	}
	wg.Wait()
	f.sm.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, accounts.ErrLastSuperadmin)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	count, err := f.store.CountWhere(ctx, accounts.ActiveSuperadmins())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStateMachineRecoverViaToken(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	a := seedAccount(t, f.store, "a@x.com", accounts.RoleSuperadmin, true)
	b := seedAccount(t, f.store, "b@x.com", accounts.RoleSuperadmin, true)

	disabled, err := f.sm.Disable(ctx, b, a.ID.String())
	require.NoError(t, err)
	token := *disabled.RecoveryToken

	recovered, err := f.sm.RecoverViaToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleAdmin, recovered.Role)
	assert.True(t, recovered.IsActive)
	assert.Nil(t, recovered.RecoveryToken)

	stored := mustFind(t, f.store, a.ID.String())
	assert.Equal(t, accounts.RoleAdmin, stored.Role)
	assert.Equal(t, accounts.StateActive, stored.State())

	_, err = f.sm.RecoverViaToken(ctx, token)
	assert.ErrorIs(t, err, accounts.ErrInvalidOrExpiredToken)

	_, err = f.sm.RecoverViaToken(ctx, "unknown")
	assert.ErrorIs(t, err, accounts.ErrInvalidOrExpiredToken)

	_, err = f.sm.RecoverViaToken(ctx, "")
	assert.ErrorIs(t, err, accounts.ErrInvalidOrExpiredToken)
}

func TestStateMachineRecoverExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		ok      bool
	}{
		{"just before expiry", accounts.DefaultOneShotTTL - time.Millisecond, true},
		{"just after expiry", accounts.DefaultOneShotTTL + time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newMachineFixture(t)

			a := seedAccount(t, f.store, "a@x.com", accounts.RoleSuperadmin, true)
			b := seedAccount(t, f.store, "b@x.com", accounts.RoleSuperadmin, true)

			disabled, err := f.sm.Disable(ctx, b, a.ID.String())
			require.NoError(t, err)

			f.clock.Advance(tt.advance)

			recovered, err := f.sm.RecoverViaToken(ctx, *disabled.RecoveryToken)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, accounts.RoleAdmin, recovered.Role)
				return
			}
			assert.ErrorIs(t, err, accounts.ErrInvalidOrExpiredToken)
			assert.False(t, mustFind(t, f.store, a.ID.String()).IsActive)
		})
	}
}

func TestStateMachineRestore(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	sa := seedAccount(t, f.store, "sa@x.com", accounts.RoleSuperadmin, true)
	admin := seedAccount(t, f.store, "admin@x.com", accounts.RoleAdmin, true)
	target := seedAccount(t, f.store, "mod@x.com", accounts.RoleModerator, false)

	_, err := f.sm.Restore(ctx, admin, target.ID.String())
	assert.ErrorIs(t, err, accounts.ErrForbidden)

	restored, err := f.sm.Restore(ctx, sa, target.ID.String())
	require.NoError(t, err)
	assert.True(t, restored.IsActive)
	assert.Equal(t, accounts.RoleModerator, restored.Role)
	assert.True(t, mustFind(t, f.store, target.ID.String()).IsActive)
}

func TestStateMachineApproveSuperadmin(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	sa := seedAccount(t, f.store, "sa@x.com", accounts.RoleSuperadmin, true)
	admin := seedAccount(t, f.store, "admin@x.com", accounts.RoleAdmin, true)
	other := seedAccount(t, f.store, "other@x.com", accounts.RoleAdmin, true)

	_, err := f.sm.ApproveSuperadmin(ctx, other, admin.ID.String())
	assert.ErrorIs(t, err, accounts.ErrForbidden)
	assert.Equal(t, accounts.RoleAdmin, mustFind(t, f.store, admin.ID.String()).Role)

	approved, err := f.sm.ApproveSuperadmin(ctx, sa, admin.ID.String())
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleSuperadmin, approved.Role)

	f.sm.Wait()
	confirmations := f.notifier.ByKind(accounts.NotificationApprovalConfirmation)
	require.Len(t, confirmations, 1)
	assert.Equal(t, "admin@x.com", confirmations[0].To)
}

func TestStateMachineRequestApproval(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	seedAccount(t, f.store, "sa1@x.com", accounts.RoleSuperadmin, true)
	seedAccount(t, f.store, "sa2@x.com", accounts.RoleSuperadmin, true)
	seedAccount(t, f.store, "sa3@x.com", accounts.RoleSuperadmin, false)
	requester := seedAccount(t, f.store, "admin@x.com", accounts.RoleAdmin, true)

	require.NoError(t, f.sm.RequestApproval(ctx, requester, requester.ID.String()))

	requests := f.notifier.ByKind(accounts.NotificationApprovalRequest)
	require.Len(t, requests, 2)
	recipients := []string{requests[0].To, requests[1].To}
	assert.ElementsMatch(t, []string{"sa1@x.com", "sa2@x.com"}, recipients)
	assert.Equal(t, accounts.RoleAdmin, mustFind(t, f.store, requester.ID.String()).Role)
}

func TestStateMachineRequestApprovalWithoutApprovers(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	requester := seedAccount(t, f.store, "admin@x.com", accounts.RoleAdmin, true)

	err := f.sm.RequestApproval(ctx, requester, requester.ID.String())
	assert.ErrorIs(t, err, accounts.ErrNoApproversAvailable)
	assert.Empty(t, f.notifier.Sent())
}

func TestStateMachineRequestApprovalDispatchFailure(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := accounts.NewMemoryStore()
	notifier := &MockNotifier{}
	notifier.On("Send", mock.Anything, mock.AnythingOfType("accounts.Notification")).
		Return(errors.New("smtp down")).Once()

	sm := accounts.NewAccountStateMachine(store, newTokens(clock), notifier,
		accounts.WithStateMachineLogger(quietLogger{}),
	)

	seedAccount(t, store, "sa@x.com", accounts.RoleSuperadmin, true)
	requester := seedAccount(t, store, "admin@x.com", accounts.RoleAdmin, true)

	err := sm.RequestApproval(ctx, requester, requester.ID.String())
	require.Error(t, err)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeDispatchFailure))
	assert.Equal(t, 502, accounts.HTTPStatus(err))
	notifier.AssertExpectations(t)
}

func TestStateMachineNotificationFailureKeepsTransition(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)
	f.notifier.err = errors.New("smtp down")

	a := seedAccount(t, f.store, "a@x.com", accounts.RoleSuperadmin, true)
	b := seedAccount(t, f.store, "b@x.com", accounts.RoleSuperadmin, true)

	_, err := f.sm.Disable(ctx, b, a.ID.String())
	require.NoError(t, err)
	f.sm.Wait()

	assert.Len(t, f.notifier.Sent(), 1)
	assert.False(t, mustFind(t, f.store, a.ID.String()).IsActive)
}

func TestStateMachineUpdatePlan(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	admin := seedAccount(t, f.store, "admin@x.com", accounts.RoleAdmin, true)
	user := seedAccount(t, f.store, "user@x.com", accounts.RoleUser, true)

	updated, err := f.sm.UpdatePlan(ctx, admin, user.ID.String(), accounts.PlanPremium)
	require.NoError(t, err)
	assert.Equal(t, accounts.PlanPremium, updated.Plan)
	assert.Equal(t, accounts.PlanPremium, mustFind(t, f.store, user.ID.String()).Plan)
	assert.True(t, accounts.Authorize(updated, accounts.CapabilityPremiumFeature))

	_, err = f.sm.UpdatePlan(ctx, user, admin.ID.String(), accounts.PlanPremium)
	assert.ErrorIs(t, err, accounts.ErrForbidden)
}
