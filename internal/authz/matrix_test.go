package authz

import (
	"testing"

	"crm-service/internal/model"

	"github.com/stretchr/testify/assert"
)

func principal(role model.Role) model.Principal {
	return model.Principal{ID: "user-1", TenantID: "tenant-a", Role: role}
}

func TestCan_RoleGrants(t *testing.T) {
	tests := []struct {
		name     string
		role     model.Role
		action   Action
		resource Resource
		allowed  bool
	}{
		{"admin manages users", model.RoleAdmin, ManageUsers, Resource{}, true},
		{"admin views billing", model.RoleAdmin, ViewBilling, Resource{}, true},
		{"manager cannot manage users", model.RoleManager, ManageUsers, Resource{}, false},
		{"manager cannot view billing", model.RoleManager, ViewBilling, Resource{}, false},
		{"manager deletes leads", model.RoleManager, DeleteLead, Resource{TenantID: "tenant-a"}, true},
		{"outreach creates leads", model.RoleOutreach, CreateLead, Resource{}, true},
		{"outreach cannot delete leads", model.RoleOutreach, DeleteLead, Resource{TenantID: "tenant-a", AssignedTo: "user-1"}, false},
		{"csr cannot create events", model.RoleCSR, CreateEvent, Resource{}, false},
		{"telecaller views events", model.RoleTelecaller, ViewEvents, Resource{}, true},
		{"volunteer views events only", model.RoleVolunteer, ViewEvents, Resource{}, true},
		{"volunteer cannot view leads", model.RoleVolunteer, ViewLeads, Resource{}, false},
		{"volunteer cannot create leads", model.RoleVolunteer, CreateLead, Resource{}, false},
		{"unknown role denied everything", model.Role("superuser"), ViewEvents, Resource{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, Can(principal(tt.role), tt.action, tt.resource))
		})
	}
}

func TestCan_OwnershipGate(t *testing.T) {
	p := principal(model.RoleOutreach)

	owned := Resource{TenantID: "tenant-a", AssignedTo: "user-1"}
	created := Resource{TenantID: "tenant-a", CreatedBy: "user-1"}
	foreign := Resource{TenantID: "tenant-a", AssignedTo: "user-2", CreatedBy: "user-3"}

	assert.True(t, Can(p, ReassignLead, owned))
	assert.True(t, Can(p, ReassignLead, created))
	assert.False(t, Can(p, ReassignLead, foreign))

	// Ownership never widens a Denied entry
	assert.False(t, Can(principal(model.RoleVolunteer), ReassignLead, owned))
}

func TestCan_TenantMismatchAlwaysDenies(t *testing.T) {
	// Tenant mismatch wins over every grant, admin included
	other := Resource{TenantID: "tenant-b", AssignedTo: "user-1", CreatedBy: "user-1"}

	for _, role := range []model.Role{
		model.RoleAdmin, model.RoleManager, model.RoleOutreach,
		model.RoleCSR, model.RoleTelecaller, model.RoleVolunteer,
	} {
		assert.False(t, Can(principal(role), ViewLeads, other), "role %s", role)
		assert.False(t, Can(principal(role), ReassignLead, other), "role %s", role)
	}
}

func TestCan_Deterministic(t *testing.T) {
	p := principal(model.RoleCSR)
	r := Resource{TenantID: "tenant-a", CreatedBy: "user-1"}

	first := Can(p, ReassignLead, r)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Can(p, ReassignLead, r))
	}
}
