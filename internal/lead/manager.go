package lead

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

// casAttempts bounds the guard-and-write loop. A conflict means another
// writer landed between our read and write; the guard is re-evaluated against
// the fresh state each time.
const casAttempts = 3

// transitions is the lead state machine. Absent entries are terminal states;
// the only way out of one is the explicit role-gated Reopen.
var transitions = map[model.LeadStatus][]model.LeadStatus{
	model.LeadNew:       {model.LeadContacted},
	model.LeadContacted: {model.LeadQualified, model.LeadLost},
	model.LeadQualified: {model.LeadConverted, model.LeadLost},
}

func transitionAllowed(from, to model.LeadStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Manager owns the lead state machine, assignment rules and validation
// invariants. All persistence goes through the tenant-scoped repository; all
// permission decisions go through the authorization matrix.
type Manager struct {
	repo     *repository.Repository
	notifier notify.Notifier
	log      *zap.Logger
}

// NewManager creates a lead lifecycle manager
func NewManager(repo *repository.Repository, notifier notify.Notifier, log *zap.Logger) *Manager {
	return &Manager{repo: repo, notifier: notifier, log: log}
}

// CreateInput is the caller-supplied draft for a new lead
type CreateInput struct {
	Name     string `json:"name"`
	Contact  string `json:"contact"`
	Interest string `json:"interest,omitempty"`
}

// Create validates the draft and persists a new lead in the principal's
// tenant with status New.
func (m *Manager) Create(ctx context.Context, p model.Principal, in CreateInput) (*model.Lead, error) {
	if !authz.Can(p, authz.CreateLead, authz.Resource{}) {
		return nil, model.ErrForbidden
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, model.Validation("name", "is required")
	}
	if strings.TrimSpace(in.Contact) == "" {
		return nil, model.Validation("contact", "is required")
	}

	now := time.Now().UTC()
	lead := model.Lead{
		ID:        uuid.New().String(),
		TenantID:  p.TenantID,
		Name:      strings.TrimSpace(in.Name),
		Contact:   strings.TrimSpace(in.Contact),
		Interest:  strings.TrimSpace(in.Interest),
		Status:    model.LeadNew,
		CreatedBy: p.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := m.repo.Leads(p.TenantID).Insert(ctx, lead)
	if err != nil {
		return nil, err
	}
	m.log.Info("Lead created",
		zap.String("tenant_id", p.TenantID),
		zap.String("lead_id", created.ID),
		zap.String("created_by", p.ID))
	return &created, nil
}

// Assign sets the lead's assignee. Reassignment is independent of status
// transitions but rejected once the lead is terminal. The assignee must be a
// user of the lead's tenant.
func (m *Manager) Assign(ctx context.Context, p model.Principal, leadID, userID string) (*model.Lead, error) {
	leads := m.repo.Leads(p.TenantID)

	for attempt := 0; attempt < casAttempts; attempt++ {
		lead, revision, err := leads.Get(ctx, leadID)
		if err != nil {
			return nil, err
		}
		if !authz.Can(p, authz.ReassignLead, authz.Resource{
			TenantID:   lead.TenantID,
			AssignedTo: lead.AssignedTo,
			CreatedBy:  lead.CreatedBy,
		}) {
			return nil, model.ErrForbidden
		}
		if lead.Status.Terminal() {
			return nil, model.ErrAlreadyTerminal
		}

		// A user outside the lead's tenant is invisible through the scoped
		// repository, so an unknown id and a foreign-tenant id are rejected
		// alike.
		if _, _, err := m.repo.Users(lead.TenantID).Get(ctx, userID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, model.ErrCrossTenantUser
			}
			return nil, err
		}

		lead.AssignedTo = userID
		lead.UpdatedAt = time.Now().UTC()
		updated, _, err := leads.Update(ctx, lead, revision)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}
		m.log.Info("Lead assigned",
			zap.String("tenant_id", p.TenantID),
			zap.String("lead_id", leadID),
			zap.String("assigned_to", userID))
		return &updated, nil
	}
	return nil, model.ErrStoreUnavailable
}

// Transition advances the lead state machine. Transitions absent from the
// table are rejected, including any transition out of a terminal state.
func (m *Manager) Transition(ctx context.Context, p model.Principal, leadID string, next model.LeadStatus) (*model.Lead, error) {
	if !model.KnownLeadStatus(next) {
		return nil, model.Validation("status", "is not a valid lead status")
	}
	leads := m.repo.Leads(p.TenantID)

	for attempt := 0; attempt < casAttempts; attempt++ {
		lead, revision, err := leads.Get(ctx, leadID)
		if err != nil {
			return nil, err
		}
		if !authz.Can(p, authz.ReassignLead, authz.Resource{
			TenantID:   lead.TenantID,
			AssignedTo: lead.AssignedTo,
			CreatedBy:  lead.CreatedBy,
		}) {
			return nil, model.ErrForbidden
		}
		if !transitionAllowed(lead.Status, next) {
			return nil, &model.InvalidTransitionError{From: string(lead.Status), To: string(next)}
		}
		// Qualification and loss both presume somebody worked the lead
		if lead.Status == model.LeadContacted && lead.AssignedTo == "" {
			return nil, model.Validation("assigned_to", "must be set before leaving contacted")
		}

		oldStatus := lead.Status
		lead.Status = next
		lead.UpdatedAt = time.Now().UTC()
		updated, _, err := leads.Update(ctx, lead, revision)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}

		if next.Terminal() {
			m.notifier.Notify(ctx, notify.EventLeadStatusChanged, map[string]any{
				"lead_id":    leadID,
				"old_status": string(oldStatus),
				"new_status": string(next),
			})
		}
		m.log.Info("Lead transitioned",
			zap.String("tenant_id", p.TenantID),
			zap.String("lead_id", leadID),
			zap.String("from", string(oldStatus)),
			zap.String("to", string(next)))
		return &updated, nil
	}
	return nil, model.ErrStoreUnavailable
}

// Reopen resets a terminal lead back to Contacted. This is the only
// transition out of a terminal state and is gated by its own capability.
func (m *Manager) Reopen(ctx context.Context, p model.Principal, leadID string) (*model.Lead, error) {
	leads := m.repo.Leads(p.TenantID)

	for attempt := 0; attempt < casAttempts; attempt++ {
		lead, revision, err := leads.Get(ctx, leadID)
		if err != nil {
			return nil, err
		}
		if !authz.Can(p, authz.ReopenLead, authz.Resource{
			TenantID:   lead.TenantID,
			AssignedTo: lead.AssignedTo,
			CreatedBy:  lead.CreatedBy,
		}) {
			return nil, model.ErrForbidden
		}
		if !lead.Status.Terminal() {
			return nil, &model.InvalidTransitionError{From: string(lead.Status), To: string(model.LeadContacted)}
		}

		oldStatus := lead.Status
		lead.Status = model.LeadContacted
		lead.UpdatedAt = time.Now().UTC()
		updated, _, err := leads.Update(ctx, lead, revision)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}
		m.log.Info("Lead reopened",
			zap.String("tenant_id", p.TenantID),
			zap.String("lead_id", leadID),
			zap.String("from", string(oldStatus)))
		return &updated, nil
	}
	return nil, model.ErrStoreUnavailable
}

// Delete irreversibly removes the lead. Restricted to roles holding the
// delete capability.
func (m *Manager) Delete(ctx context.Context, p model.Principal, leadID string) error {
	leads := m.repo.Leads(p.TenantID)
	lead, _, err := leads.Get(ctx, leadID)
	if err != nil {
		return err
	}
	if !authz.Can(p, authz.DeleteLead, authz.Resource{
		TenantID:   lead.TenantID,
		AssignedTo: lead.AssignedTo,
		CreatedBy:  lead.CreatedBy,
	}) {
		return model.ErrForbidden
	}
	if err := leads.Delete(ctx, leadID); err != nil {
		return err
	}
	m.log.Info("Lead deleted",
		zap.String("tenant_id", p.TenantID),
		zap.String("lead_id", leadID),
		zap.String("deleted_by", p.ID))
	return nil
}

// List returns one page of the tenant's leads
func (m *Manager) List(ctx context.Context, p model.Principal, q store.Query) ([]model.Lead, string, error) {
	if !authz.Can(p, authz.ViewLeads, authz.Resource{}) {
		return nil, "", model.ErrForbidden
	}
	return m.repo.Leads(p.TenantID).Page(ctx, q)
}
