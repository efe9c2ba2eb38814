package accounts_test

import (
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
)

func TestAuthorizeTable(t *testing.T) {
	type row struct {
		role   accounts.Role
		plan   accounts.Plan
		active bool
		want   []accounts.Capability
	}

	rows := []row{
		{accounts.RoleUser, accounts.PlanFree, true, nil},
		{accounts.RoleUser, accounts.PlanPremium, true, []accounts.Capability{accounts.CapabilityPremiumFeature}},
		{accounts.RoleModerator, accounts.PlanFree, true, []accounts.Capability{
			accounts.CapabilityAdminArea, accounts.CapabilityModeratorOrAbove, accounts.CapabilityPremiumFeature,
		}},
		{accounts.RoleAdmin, accounts.PlanFree, true, []accounts.Capability{
			accounts.CapabilityAdminArea, accounts.CapabilityModeratorOrAbove, accounts.CapabilityPremiumFeature,
		}},
		{accounts.RoleSuperadmin, accounts.PlanFree, true, []accounts.Capability{
			accounts.CapabilityAdminArea, accounts.CapabilitySuperadminOnly,
			accounts.CapabilityModeratorOrAbove, accounts.CapabilityPremiumFeature,
		}},
		{accounts.RoleSuperadmin, accounts.PlanFree, false, []accounts.Capability{
			accounts.CapabilityAdminArea, accounts.CapabilityModeratorOrAbove, accounts.CapabilityPremiumFeature,
		}},
	}

	for _, r := range rows {
		account := &accounts.Account{Role: r.role, Plan: r.plan, IsActive: r.active}
		for _, capability := range accounts.AllCapabilities() {
			want := false
			for _, c := range r.want {
				if c == capability {
					want = true
				}
			}
			assert.Equal(t, want, accounts.Authorize(account, capability),
				"role=%s plan=%s active=%t capability=%s", r.role, r.plan, r.active, capability)
		}
	}
}

func TestAuthorizeIsPure(t *testing.T) {
	a := &accounts.Account{Name: "a", Email: "a@x.com", Role: accounts.RoleAdmin, Plan: accounts.PlanFree, IsActive: true}
	b := &accounts.Account{Name: "b", Email: "b@x.com", Role: accounts.RoleAdmin, Plan: accounts.PlanFree, IsActive: true}

	for _, capability := range accounts.AllCapabilities() {
		first := accounts.Authorize(a, capability)
		assert.Equal(t, first, accounts.Authorize(a, capability))
		assert.Equal(t, first, accounts.Authorize(b, capability))
	}
	assert.Equal(t, accounts.RoleAdmin, a.Role)
}

func TestAuthorizeUnknownCapabilityAndNilAccount(t *testing.T) {
	superadmin := &accounts.Account{Role: accounts.RoleSuperadmin, Plan: accounts.PlanPremium, IsActive: true}
	assert.False(t, accounts.Authorize(superadmin, accounts.Capability("delete_everything")))
	assert.False(t, accounts.Authorize(nil, accounts.CapabilityPremiumFeature))
}

func TestCheck(t *testing.T) {
	assert.ErrorIs(t, accounts.Check(nil, accounts.CapabilityAdminArea), accounts.ErrUnauthenticated)

	disabled := &accounts.Account{Role: accounts.RoleAdmin, IsActive: false}
	assert.ErrorIs(t, accounts.Check(disabled, accounts.CapabilityAdminArea), accounts.ErrUnauthenticated)

	user := &accounts.Account{Role: accounts.RoleUser, Plan: accounts.PlanFree, IsActive: true}
	assert.ErrorIs(t, accounts.Check(user, accounts.CapabilityAdminArea), accounts.ErrForbidden)

	admin := &accounts.Account{Role: accounts.RoleAdmin, IsActive: true}
	assert.NoError(t, accounts.Check(admin, accounts.CapabilityAdminArea))
	assert.ErrorIs(t, accounts.Check(admin, accounts.CapabilitySuperadminOnly), accounts.ErrForbidden)
}

func TestCapabilitiesList(t *testing.T) {
	premium := &accounts.Account{Role: accounts.RoleUser, Plan: accounts.PlanPremium, IsActive: true}
	assert.Equal(t, []accounts.Capability{accounts.CapabilityPremiumFeature}, accounts.Capabilities(premium))
	assert.Empty(t, accounts.Capabilities(nil))
}
