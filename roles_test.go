package accounts_test

import (
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
)

func TestRoleHierarchy(t *testing.T) {
	tests := []struct {
		role    accounts.Role
		min     accounts.Role
		atLeast bool
	}{
		{accounts.RoleUser, accounts.RoleUser, true},
		{accounts.RoleUser, accounts.RoleModerator, false},
		{accounts.RoleModerator, accounts.RoleAdmin, true},
		{accounts.RoleAdmin, accounts.RoleModerator, true},
		{accounts.RoleAdmin, accounts.RoleSuperadmin, false},
		{accounts.RoleSuperadmin, accounts.RoleAdmin, true},
		{accounts.Role("owner"), accounts.RoleUser, false},
		{accounts.RoleSuperadmin, accounts.Role("owner"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+">="+string(tt.min), func(t *testing.T) {
			assert.Equal(t, tt.atLeast, tt.role.IsAtLeast(tt.min))
		})
	}
}

func TestRoleLevels(t *testing.T) {
	assert.Equal(t, 0, accounts.RoleUser.Level())
	assert.Equal(t, accounts.RoleAdmin.Level(), accounts.RoleModerator.Level())
	assert.Greater(t, accounts.RoleSuperadmin.Level(), accounts.RoleAdmin.Level())
	assert.Equal(t, -1, accounts.Role("").Level())
}

func TestRoleIsStaff(t *testing.T) {
	assert.False(t, accounts.RoleUser.IsStaff())
	assert.True(t, accounts.RoleModerator.IsStaff())
	assert.True(t, accounts.RoleAdmin.IsStaff())
	assert.True(t, accounts.RoleSuperadmin.IsStaff())
}

func TestParseRoleAndPlan(t *testing.T) {
	role, ok := accounts.ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, accounts.RoleAdmin, role)

	_, ok = accounts.ParseRole("root")
	assert.False(t, ok)

	plan, ok := accounts.ParsePlan("premium")
	assert.True(t, ok)
	assert.Equal(t, accounts.PlanPremium, plan)

	_, ok = accounts.ParsePlan("gold")
	assert.False(t, ok)

	assert.Len(t, accounts.GetAllRoles(), 4)
}
