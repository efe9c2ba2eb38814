package accounts

// TransitionPlan is the outcome of a pure planner: the account as it must
// be persisted and the notifications to dispatch once it is.
type TransitionPlan struct {
	Event         ActivityEventType
	Account       *Account
	From          AccountState
	To            AccountState
	Notifications []Notification
	// Guarded writes must go through DisableSuperadmin
	Guarded bool
	// NoOp plans persist nothing
	NoOp bool
}

func newPlan(event ActivityEventType, target *Account) TransitionPlan {
	return TransitionPlan{
		Event:   event,
		Account: target.Clone(),
		From:    target.State(),
	}
}

func (p TransitionPlan) finish() TransitionPlan {
	p.To = p.Account.State()
	return p
}

// PlanDisable soft deletes target. A superadmin target needs recovery, the
// token minted for it, and the resulting plan is guarded.
func PlanDisable(actor, target *Account, recovery *OneShotToken, msgs MessageBuilder) (TransitionPlan, error) {
	if err := Check(actor, CapabilityAdminArea); err != nil {
		return TransitionPlan{}, err
	}
	if target == nil {
		return TransitionPlan{}, ErrAccountNotFound
	}

	plan := newPlan(ActivityEventAccountDisabled, target)
	if !target.IsActive {
		plan.NoOp = true
		return plan.finish(), nil
	}

	plan.Account.IsActive = false

	if target.Role == RoleSuperadmin {
		if recovery == nil || recovery.Purpose != PurposeRecovery {
			return TransitionPlan{}, ErrInvalidAccountOperation
		}
		stored := recovery.Stored
		expires := recovery.ExpiresAt
		plan.Account.RecoveryToken = &stored
		plan.Account.RecoveryTokenExpiry = &expires
		plan.Guarded = true
		plan.Notifications = append(plan.Notifications, msgs.Recovery(plan.Account, *recovery))
	}

	return plan.finish(), nil
}

// PlanRestore reactivates target keeping its role
func PlanRestore(actor, target *Account) (TransitionPlan, error) {
	if err := Check(actor, CapabilitySuperadminOnly); err != nil {
		return TransitionPlan{}, err
	}
	if target == nil {
		return TransitionPlan{}, ErrAccountNotFound
	}

	plan := newPlan(ActivityEventAccountRestored, target)
	plan.Account.IsActive = true
	plan.Account.ClearRecoveryToken()
	return plan.finish(), nil
}

// PlanRecover applies a verified recovery token. The account comes back
// as admin whatever role it held before.
func PlanRecover(target *Account) (TransitionPlan, error) {
	if target == nil {
		return TransitionPlan{}, ErrInvalidOrExpiredToken
	}

	plan := newPlan(ActivityEventAccountRecovered, target)
	plan.Account.Role = RoleAdmin
	plan.Account.IsActive = true
	plan.Account.ClearRecoveryToken()
	return plan.finish(), nil
}

// PlanApprovalRequest fans out one request per approver, it mutates nothing
func PlanApprovalRequest(actor, requester *Account, approvers []*Account, msgs MessageBuilder) (TransitionPlan, error) {
	if actor == nil {
		return TransitionPlan{}, ErrUnauthenticated
	}
	if requester == nil {
		return TransitionPlan{}, ErrAccountNotFound
	}
	if actor.ID != requester.ID {
		return TransitionPlan{}, ErrForbidden
	}
	if len(approvers) == 0 {
		return TransitionPlan{}, ErrNoApproversAvailable
	}

	plan := newPlan(ActivityEventApprovalRequested, requester)
	plan.NoOp = true
	for _, approver := range approvers {
		if !approver.IsActiveSuperadmin() {
			continue
		}
		plan.Notifications = append(plan.Notifications, msgs.ApprovalRequest(approver, requester))
	}
	if len(plan.Notifications) == 0 {
		return TransitionPlan{}, ErrNoApproversAvailable
	}
	return plan.finish(), nil
}

// PlanApproveSuperadmin grants target the superadmin role
func PlanApproveSuperadmin(actor, target *Account, msgs MessageBuilder) (TransitionPlan, error) {
	if err := Check(actor, CapabilitySuperadminOnly); err != nil {
		return TransitionPlan{}, err
	}
	if target == nil {
		return TransitionPlan{}, ErrAccountNotFound
	}

	plan := newPlan(ActivityEventSuperadminApproved, target)
	plan.Account.Role = RoleSuperadmin
	plan.Account.IsActive = true
	plan.Account.ClearRecoveryToken()
	plan.Notifications = append(plan.Notifications, msgs.ApprovalConfirmation(plan.Account))
	return plan.finish(), nil
}

// PlanUpdatePlan changes the subscription plan of target
func PlanUpdatePlan(actor, target *Account, plan Plan) (TransitionPlan, error) {
	if err := Check(actor, CapabilityAdminArea); err != nil {
		return TransitionPlan{}, err
	}
	if !plan.IsValid() {
		return TransitionPlan{}, ErrInvalidInput
	}
	if target == nil {
		return TransitionPlan{}, ErrAccountNotFound
	}

	out := newPlan(ActivityEventPlanChanged, target)
	out.Account.Plan = plan
	out.NoOp = target.Plan == plan
	return out.finish(), nil
}
