package accounts

// Role is the account's role
type Role string

const (
	// RoleUser is the default role
	RoleUser Role = "user"
	// RoleModerator shares mutation rights with admin
	RoleModerator Role = "moderator"
	// RoleAdmin can list, disable and change plans but cannot restore,
	// approve superadmins or list disabled accounts
	RoleAdmin Role = "admin"
	// RoleSuperadmin can restore and approve, the last active one cannot
	// be disabled
	RoleSuperadmin Role = "superadmin"
)

// admin and moderator sit on the same level
var roleHierarchy = map[Role]int{
	RoleUser:       0,
	RoleModerator:  1,
	RoleAdmin:      1,
	RoleSuperadmin: 2,
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// Level returns the privilege level, -1 for unknown roles
func (r Role) Level() int {
	if lvl, ok := roleHierarchy[r]; ok {
		return lvl
	}
	return -1
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	if !r.IsValid() || !minRole.IsValid() {
		return false
	}
	return r.Level() >= minRole.Level()
}

// IsStaff reports roles that can enter the admin area
func (r Role) IsStaff() bool {
	return r.IsAtLeast(RoleModerator)
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleUser,
		RoleModerator,
		RoleAdmin,
		RoleSuperadmin,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}

// Plan is the subscription axis, independent from Role
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// IsValid checks if the plan is known
func (p Plan) IsValid() bool {
	switch p {
	case PlanFree, PlanPremium:
		return true
	default:
		return false
	}
}

// ParsePlan safely parses a string into a Plan
func ParsePlan(planStr string) (Plan, bool) {
	plan := Plan(planStr)
	return plan, plan.IsValid()
}
