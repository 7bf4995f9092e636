package repository

import (
	"context"
	"encoding/json"

	"crm-service/internal/model"
	"crm-service/internal/store"
)

// Leads is the tenant-scoped accessor for lead documents
type Leads struct {
	scope Scope
}

func (l Leads) decode(doc store.Document) (model.Lead, error) {
	var lead model.Lead
	if err := json.Unmarshal(doc.Data, &lead); err != nil {
		return model.Lead{}, err
	}
	return lead, nil
}

// Get returns the lead and its current revision
func (l Leads) Get(ctx context.Context, id string) (model.Lead, int64, error) {
	var doc store.Document
	err := l.scope.r.withRetry(ctx, "get lead", func() error {
		var inner error
		doc, inner = l.scope.r.store.Get(ctx, l.scope.tenantID, store.KindLeads, id)
		return inner
	})
	if err != nil {
		return model.Lead{}, 0, err
	}
	lead, err := l.decode(doc)
	return lead, doc.Revision, err
}

// Insert creates a new lead document
func (l Leads) Insert(ctx context.Context, lead model.Lead) (model.Lead, error) {
	lead.TenantID = l.scope.tenantID
	data, err := json.Marshal(lead)
	if err != nil {
		return model.Lead{}, err
	}
	doc := store.Document{TenantID: l.scope.tenantID, Kind: store.KindLeads, ID: lead.ID, Data: data}
	return lead, l.scope.r.withRetry(ctx, "insert lead", func() error {
		_, inner := l.scope.r.store.Put(ctx, doc, 0)
		return inner
	})
}

// Update conditionally replaces the lead at expectedRevision. A stale revision
// surfaces as store.ErrConflict for the caller's guard loop to handle.
func (l Leads) Update(ctx context.Context, lead model.Lead, expectedRevision int64) (model.Lead, int64, error) {
	lead.TenantID = l.scope.tenantID
	data, err := json.Marshal(lead)
	if err != nil {
		return model.Lead{}, 0, err
	}
	doc := store.Document{TenantID: l.scope.tenantID, Kind: store.KindLeads, ID: lead.ID, Data: data}
	var updated store.Document
	err = l.scope.r.withRetry(ctx, "update lead", func() error {
		var inner error
		updated, inner = l.scope.r.store.Put(ctx, doc, expectedRevision)
		return inner
	})
	if err != nil {
		return model.Lead{}, 0, err
	}
	return lead, updated.Revision, nil
}

// Delete removes the lead unconditionally
func (l Leads) Delete(ctx context.Context, id string) error {
	return l.scope.r.withRetry(ctx, "delete lead", func() error {
		return l.scope.r.store.Delete(ctx, l.scope.tenantID, store.KindLeads, id, 0)
	})
}

// Page runs a cursor-paginated query and decodes the page
func (l Leads) Page(ctx context.Context, q store.Query) ([]model.Lead, string, error) {
	page, err := l.scope.Query(ctx, q)
	if err != nil {
		return nil, "", err
	}
	leads := make([]model.Lead, 0, len(page.Items))
	for _, doc := range page.Items {
		lead, err := l.decode(doc)
		if err != nil {
			return nil, "", err
		}
		leads = append(leads, lead)
	}
	return leads, page.NextCursor, nil
}
