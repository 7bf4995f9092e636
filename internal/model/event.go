package model

import "time"

// EventStatus is the lifecycle state of an Event
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventCompleted EventStatus = "completed"
	EventCanceled  EventStatus = "canceled"
)

// Terminal reports whether no further transition is permitted from s
func (s EventStatus) Terminal() bool {
	return s == EventCompleted || s == EventCanceled
}

// EventType distinguishes in-person events (which require a location) from
// remote ones
type EventType string

const (
	EventInPerson EventType = "in-person"
	EventRemote   EventType = "remote"
)

// Event is a volunteer activity owned by a tenant. AssignedVolunteers is
// bounded by MaxVolunteers at all times, including under concurrent writers.
type Event struct {
	ID                 string      `json:"id"`
	TenantID           string      `json:"tenant_id"`
	Title              string      `json:"title"`
	Date               time.Time   `json:"date"`
	Location           string      `json:"location,omitempty"`
	EventType          EventType   `json:"event_type"`
	Status             EventStatus `json:"status"`
	MaxVolunteers      int         `json:"max_volunteers"`
	AssignedOfficer    string      `json:"assigned_officer,omitempty"`
	AssignedVolunteers []string    `json:"assigned_volunteers"`
	CreatedBy          string      `json:"created_by"`
	CreatedAt          time.Time   `json:"created_at"`
}

// HasVolunteer reports whether userID is already assigned to the event
func (e *Event) HasVolunteer(userID string) bool {
	for _, id := range e.AssignedVolunteers {
		if id == userID {
			return true
		}
	}
	return false
}
