package authz

import "crm-service/internal/model"

// Action is a capability an operation requires
type Action string

const (
	CreateLead            Action = "create_lead"
	ReassignLead          Action = "reassign_lead"
	ReopenLead            Action = "reopen_lead"
	DeleteLead            Action = "delete_lead"
	ViewLeads             Action = "view_leads"
	CreateEvent           Action = "create_event"
	AssignVolunteer       Action = "assign_volunteer"
	TransitionEventStatus Action = "transition_event_status"
	ViewEvents            Action = "view_events"
	ManageUsers           Action = "manage_users"
	ViewBilling           Action = "view_billing"
)

// Grant is the outcome a matrix entry encodes for a role/action pair
type Grant int

const (
	// Denied rejects the action outright.
	Denied Grant = iota
	// Allowed permits the action for any resource of the principal's tenant.
	Allowed
	// AllowedIfOwner permits the action only when the principal is the
	// resource's assignee or creator.
	AllowedIfOwner
)

// Resource is the reference an authorization decision is evaluated against.
// A zero TenantID means the action is not resource-scoped (e.g. create/list).
type Resource struct {
	TenantID   string
	AssignedTo string
	CreatedBy  string
}

// matrix is the static role x action capability table. It is consulted by
// every core operation; per-handler role conditionals are not permitted.
var matrix = map[model.Role]map[Action]Grant{
	model.RoleAdmin: {
		CreateLead:            Allowed,
		ReassignLead:          Allowed,
		ReopenLead:            Allowed,
		DeleteLead:            Allowed,
		ViewLeads:             Allowed,
		CreateEvent:           Allowed,
		AssignVolunteer:       Allowed,
		TransitionEventStatus: Allowed,
		ViewEvents:            Allowed,
		ManageUsers:           Allowed,
		ViewBilling:           Allowed,
	},
	model.RoleManager: {
		CreateLead:            Allowed,
		ReassignLead:          Allowed,
		ReopenLead:            Allowed,
		DeleteLead:            Allowed,
		ViewLeads:             Allowed,
		CreateEvent:           Allowed,
		AssignVolunteer:       Allowed,
		TransitionEventStatus: Allowed,
		ViewEvents:            Allowed,
	},
	model.RoleOutreach: {
		CreateLead:            Allowed,
		ReassignLead:          AllowedIfOwner,
		ViewLeads:             Allowed,
		CreateEvent:           Allowed,
		AssignVolunteer:       AllowedIfOwner,
		TransitionEventStatus: AllowedIfOwner,
		ViewEvents:            Allowed,
	},
	model.RoleCSR: {
		CreateLead:   Allowed,
		ReassignLead: AllowedIfOwner,
		ViewLeads:    Allowed,
		ViewEvents:   Allowed,
	},
	model.RoleTelecaller: {
		CreateLead:   Allowed,
		ReassignLead: AllowedIfOwner,
		ViewLeads:    Allowed,
		ViewEvents:   Allowed,
	},
	model.RoleVolunteer: {
		ViewEvents: Allowed,
	},
}

// Can decides whether principal may perform action on resource. Pure and
// deterministic: identical inputs always yield identical outputs.
//
// Evaluation order: tenant mismatch always denies regardless of role, then the
// role grant, then the ownership check for AllowedIfOwner entries.
func Can(p model.Principal, action Action, resource Resource) bool {
	if resource.TenantID != "" && resource.TenantID != p.TenantID {
		return false
	}
	grants, ok := matrix[p.Role]
	if !ok {
		return false
	}
	switch grants[action] {
	case Allowed:
		return true
	case AllowedIfOwner:
		return resource.AssignedTo == p.ID || resource.CreatedBy == p.ID
	default:
		return false
	}
}
