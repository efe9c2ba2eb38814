package accounts

// Capability names a permission a route or transition requires
type Capability string

const (
	CapabilityAdminArea        Capability = "admin_area"
	CapabilitySuperadminOnly   Capability = "superadmin_only"
	CapabilityModeratorOrAbove Capability = "moderator_or_above"
	CapabilityPremiumFeature   Capability = "premium_feature"
)

type capabilityRule func(role Role, plan Plan, active bool) bool

var capabilityTable = map[Capability]capabilityRule{
	CapabilityAdminArea: func(role Role, _ Plan, _ bool) bool {
		return role.IsStaff()
	},
	CapabilitySuperadminOnly: func(role Role, _ Plan, active bool) bool {
		return role == RoleSuperadmin && active
	},
	CapabilityModeratorOrAbove: func(role Role, _ Plan, _ bool) bool {
		return role.IsStaff()
	},
	CapabilityPremiumFeature: func(role Role, plan Plan, _ bool) bool {
		return plan == PlanPremium || role.IsStaff()
	},
}

// Authorize evaluates capability against the account's role, plan and
// active flag. Unknown capabilities are denied.
func Authorize(account *Account, capability Capability) bool {
	if account == nil {
		return false
	}
	rule, ok := capabilityTable[capability]
	if !ok {
		return false
	}
	return rule(account.Role, account.Plan, account.IsActive)
}

// Check applies the authentication precondition before Authorize.
// A missing or inactive account is ErrUnauthenticated, a valid identity
// without the capability is ErrForbidden.
func Check(account *Account, capability Capability) error {
	if account == nil || !account.IsActive {
		return ErrUnauthenticated
	}
	if !Authorize(account, capability) {
		return ErrForbidden
	}
	return nil
}

// Capabilities lists every capability the account satisfies
func Capabilities(account *Account) []Capability {
	out := make([]Capability, 0, len(capabilityTable))
	for _, c := range AllCapabilities() {
		if Authorize(account, c) {
			out = append(out, c)
		}
	}
	return out
}

// AllCapabilities returns the known capabilities in a stable order
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityAdminArea,
		CapabilitySuperadminOnly,
		CapabilityModeratorOrAbove,
		CapabilityPremiumFeature,
	}
}
