package model

// Role is a staff role within a tenant
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleOutreach   Role = "outreach"
	RoleCSR        Role = "csr"
	RoleTelecaller Role = "telecaller"
	RoleVolunteer  Role = "volunteer"
)

// KnownRole reports whether r is one of the defined staff roles
func KnownRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleOutreach, RoleCSR, RoleTelecaller, RoleVolunteer:
		return true
	}
	return false
}

// Principal is the authenticated actor performing an operation. It is derived
// from verified identity-provider claims on every request and never persisted.
type Principal struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Role     Role   `json:"role"`
}
