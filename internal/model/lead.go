package model

import "time"

// LeadStatus is the lifecycle state of a Lead
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadQualified LeadStatus = "qualified"
	LeadConverted LeadStatus = "converted"
	LeadLost      LeadStatus = "lost"
)

// KnownLeadStatus reports whether s is a defined lead status
func KnownLeadStatus(s LeadStatus) bool {
	switch s {
	case LeadNew, LeadContacted, LeadQualified, LeadConverted, LeadLost:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s
func (s LeadStatus) Terminal() bool {
	return s == LeadConverted || s == LeadLost
}

// Lead is a sales/outreach prospect owned by a tenant. AssignedTo, when set,
// must be a user of the same tenant.
type Lead struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Name       string     `json:"name"`
	Contact    string     `json:"contact"`
	Interest   string     `json:"interest,omitempty"`
	Status     LeadStatus `json:"status"`
	AssignedTo string     `json:"assigned_to,omitempty"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
