package event

import (
	"context"
	"errors"
	"strings"
	"time"

	"crm-service/internal/authz"
	"crm-service/internal/model"
	"crm-service/internal/notify"
	"crm-service/internal/repository"
	"crm-service/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// casAttempts bounds the guard-and-write loop on conditional writes. Capacity
// and terminal-state guards are re-evaluated against fresh state after every
// conflict, so two concurrent assignments can never both pass a guard only
// one should.
const casAttempts = 8

// Manager owns the event state machine and capacity-constrained volunteer
// assignment.
type Manager struct {
	repo     *repository.Repository
	notifier notify.Notifier
	log      *zap.Logger
}

// NewManager creates an event lifecycle manager
func NewManager(repo *repository.Repository, notifier notify.Notifier, log *zap.Logger) *Manager {
	return &Manager{repo: repo, notifier: notifier, log: log}
}

// CreateInput is the caller-supplied draft for a new event
type CreateInput struct {
	Title         string          `json:"title"`
	Date          time.Time       `json:"date"`
	Location      string          `json:"location,omitempty"`
	EventType     model.EventType `json:"event_type"`
	MaxVolunteers int             `json:"max_volunteers"`
}

// Create validates the draft and persists a new event with status Scheduled
func (m *Manager) Create(ctx context.Context, p model.Principal, in CreateInput) (*model.Event, error) {
	if !authz.Can(p, authz.CreateEvent, authz.Resource{}) {
		return nil, model.ErrForbidden
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, model.Validation("title", "is required")
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if in.Date.Before(today) {
		return nil, model.Validation("date", "must not be in the past")
	}
	if in.MaxVolunteers < 0 {
		return nil, model.Validation("max_volunteers", "must not be negative")
	}
	if in.EventType == "" {
		in.EventType = model.EventInPerson
	}
	if in.EventType == model.EventInPerson && strings.TrimSpace(in.Location) == "" {
		return nil, model.Validation("location", "is required for in-person events")
	}

	event := model.Event{
		ID:                 uuid.New().String(),
		TenantID:           p.TenantID,
		Title:              strings.TrimSpace(in.Title),
		Date:               in.Date,
		Location:           strings.TrimSpace(in.Location),
		EventType:          in.EventType,
		Status:             model.EventScheduled,
		MaxVolunteers:      in.MaxVolunteers,
		AssignedVolunteers: []string{},
		CreatedBy:          p.ID,
		CreatedAt:          time.Now().UTC(),
	}
	created, err := m.repo.Events(p.TenantID).Insert(ctx, event)
	if err != nil {
		return nil, err
	}
	m.log.Info("Event created",
		zap.String("tenant_id", p.TenantID),
		zap.String("event_id", created.ID),
		zap.String("created_by", p.ID))
	return &created, nil
}

// AssignVolunteer attaches a volunteer while the event is Scheduled and has
// capacity. The capacity check and the insertion commit as one conditional
// write against the event's revision.
func (m *Manager) AssignVolunteer(ctx context.Context, p model.Principal, eventID, userID string) (*model.Event, error) {
	events := m.repo.Events(p.TenantID)

	for attempt := 0; attempt < casAttempts; attempt++ {
		event, revision, err := events.Get(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if !authz.Can(p, authz.AssignVolunteer, authz.Resource{
			TenantID:   event.TenantID,
			AssignedTo: event.AssignedOfficer,
			CreatedBy:  event.CreatedBy,
		}) {
			return nil, model.ErrForbidden
		}
		if event.Status.Terminal() {
			return nil, model.ErrAlreadyTerminal
		}
		if event.HasVolunteer(userID) {
			return &event, nil
		}
		if len(event.AssignedVolunteers) >= event.MaxVolunteers {
			return nil, model.ErrCapacityExceeded
		}

		// Foreign-tenant users are invisible through the scoped repository;
		// unknown and cross-tenant ids are rejected alike.
		if _, _, err := m.repo.Users(event.TenantID).Get(ctx, userID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, model.ErrCrossTenantUser
			}
			return nil, err
		}

		event.AssignedVolunteers = append(event.AssignedVolunteers, userID)
		updated, _, err := events.Update(ctx, event, revision)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}

		m.notifier.Notify(ctx, notify.EventVolunteersAdded, map[string]any{
			"event_id": eventID,
			"user_ids": []string{userID},
		})
		m.log.Info("Volunteer assigned",
			zap.String("tenant_id", p.TenantID),
			zap.String("event_id", eventID),
			zap.String("user_id", userID),
			zap.Int("assigned", len(updated.AssignedVolunteers)),
			zap.Int("capacity", updated.MaxVolunteers))
		return &updated, nil
	}
	return nil, model.ErrStoreUnavailable
}

// UnassignVolunteer removes a volunteer from the event's set
func (m *Manager) UnassignVolunteer(ctx context.Context, p model.Principal, eventID, userID string) (*model.Event, error) {
	events := m.repo.Events(p.TenantID)

	for attempt := 0; attempt < casAttempts; attempt++ {
		event, revision, err := events.Get(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if !authz.Can(p, authz.AssignVolunteer, authz.Resource{
			TenantID:   event.TenantID,
			AssignedTo: event.AssignedOfficer,
			CreatedBy:  event.CreatedBy,
		}) {
			return nil, model.ErrForbidden
		}
		if event.Status.Terminal() {
			return nil, model.ErrAlreadyTerminal
		}
		if !event.HasVolunteer(userID) {
			return &event, nil
		}

		kept := event.AssignedVolunteers[:0:0]
		for _, id := range event.AssignedVolunteers {
			if id != userID {
				kept = append(kept, id)
			}
		}
		event.AssignedVolunteers = kept
		updated, _, err := events.Update(ctx, event, revision)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}

		m.notifier.Notify(ctx, notify.EventVolunteersRemoved, map[string]any{
			"event_id": eventID,
			"user_ids": []string{userID},
		})
		m.log.Info("Volunteer unassigned",
			zap.String("tenant_id", p.TenantID),
			zap.String("event_id", eventID),
			zap.String("user_id", userID))
		return &updated, nil
	}
	return nil, model.ErrStoreUnavailable
}

// MarkCompleted transitions a Scheduled event to Completed
func (m *Manager) MarkCompleted(ctx context.Context, p model.Principal, eventID string) (*model.Event, error) {
	return m.transition(ctx, p, eventID, model.EventCompleted)
}

// Cancel transitions a Scheduled event to Canceled
func (m *Manager) Cancel(ctx context.Context, p model.Principal, eventID string) (*model.Event, error) {
	return m.transition(ctx, p, eventID, model.EventCanceled)
}

// transition moves the event into a terminal state. Terminal states are
// mutually exclusive and final; attempting to transition an already terminal
// event fails with ErrAlreadyTerminal so callers can tell stale client state
// from "nothing to do".
func (m *Manager) transition(ctx context.Context, p model.Principal, eventID string, next model.EventStatus) (*model.Event, error) {
	events := m.repo.Events(p.TenantID)

	for attempt := 0; attempt < casAttempts; attempt++ {
		event, revision, err := events.Get(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if !authz.Can(p, authz.TransitionEventStatus, authz.Resource{
			TenantID:   event.TenantID,
			AssignedTo: event.AssignedOfficer,
			CreatedBy:  event.CreatedBy,
		}) {
			return nil, model.ErrForbidden
		}
		if event.Status.Terminal() {
			return nil, model.ErrAlreadyTerminal
		}

		oldStatus := event.Status
		event.Status = next
		updated, _, err := events.Update(ctx, event, revision)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}

		m.notifier.Notify(ctx, notify.EventEventStatusChanged, map[string]any{
			"event_id":   eventID,
			"old_status": string(oldStatus),
			"new_status": string(next),
		})
		m.log.Info("Event transitioned",
			zap.String("tenant_id", p.TenantID),
			zap.String("event_id", eventID),
			zap.String("from", string(oldStatus)),
			zap.String("to", string(next)))
		return &updated, nil
	}
	return nil, model.ErrStoreUnavailable
}

// AssignOfficer sets the event's responsible officer while Scheduled
func (m *Manager) AssignOfficer(ctx context.Context, p model.Principal, eventID, userID string) (*model.Event, error) {
	events := m.repo.Events(p.TenantID)

	for attempt := 0; attempt < casAttempts; attempt++ {
		event, revision, err := events.Get(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if !authz.Can(p, authz.AssignVolunteer, authz.Resource{
			TenantID:   event.TenantID,
			AssignedTo: event.AssignedOfficer,
			CreatedBy:  event.CreatedBy,
		}) {
			return nil, model.ErrForbidden
		}
		if event.Status.Terminal() {
			return nil, model.ErrAlreadyTerminal
		}
		if _, _, err := m.repo.Users(event.TenantID).Get(ctx, userID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, model.ErrCrossTenantUser
			}
			return nil, err
		}

		event.AssignedOfficer = userID
		updated, _, err := events.Update(ctx, event, revision)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}
		m.log.Info("Officer assigned",
			zap.String("tenant_id", p.TenantID),
			zap.String("event_id", eventID),
			zap.String("officer_id", userID))
		return &updated, nil
	}
	return nil, model.ErrStoreUnavailable
}

// List returns one page of the tenant's events
func (m *Manager) List(ctx context.Context, p model.Principal, q store.Query) ([]model.Event, string, error) {
	if !authz.Can(p, authz.ViewEvents, authz.Resource{}) {
		return nil, "", model.ErrForbidden
	}
	return m.repo.Events(p.TenantID).Page(ctx, q)
}
