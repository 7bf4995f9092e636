package repository

import (
	"context"
	"encoding/json"

	"crm-service/internal/model"
	"crm-service/internal/store"
)

// Events is the tenant-scoped accessor for event documents
type Events struct {
	scope Scope
}

func (e Events) decode(doc store.Document) (model.Event, error) {
	var event model.Event
	if err := json.Unmarshal(doc.Data, &event); err != nil {
		return model.Event{}, err
	}
	return event, nil
}

// Get returns the event and its current revision
func (e Events) Get(ctx context.Context, id string) (model.Event, int64, error) {
	var doc store.Document
	err := e.scope.r.withRetry(ctx, "get event", func() error {
		var inner error
		doc, inner = e.scope.r.store.Get(ctx, e.scope.tenantID, store.KindEvents, id)
		return inner
	})
	if err != nil {
		return model.Event{}, 0, err
	}
	event, err := e.decode(doc)
	return event, doc.Revision, err
}

// Insert creates a new event document
func (e Events) Insert(ctx context.Context, event model.Event) (model.Event, error) {
	event.TenantID = e.scope.tenantID
	data, err := json.Marshal(event)
	if err != nil {
		return model.Event{}, err
	}
	doc := store.Document{TenantID: e.scope.tenantID, Kind: store.KindEvents, ID: event.ID, Data: data}
	return event, e.scope.r.withRetry(ctx, "insert event", func() error {
		_, inner := e.scope.r.store.Put(ctx, doc, 0)
		return inner
	})
}

// Update conditionally replaces the event at expectedRevision. A stale
// revision surfaces as store.ErrConflict for the caller's guard loop.
func (e Events) Update(ctx context.Context, event model.Event, expectedRevision int64) (model.Event, int64, error) {
	event.TenantID = e.scope.tenantID
	data, err := json.Marshal(event)
	if err != nil {
		return model.Event{}, 0, err
	}
	doc := store.Document{TenantID: e.scope.tenantID, Kind: store.KindEvents, ID: event.ID, Data: data}
	var updated store.Document
	err = e.scope.r.withRetry(ctx, "update event", func() error {
		var inner error
		updated, inner = e.scope.r.store.Put(ctx, doc, expectedRevision)
		return inner
	})
	if err != nil {
		return model.Event{}, 0, err
	}
	return event, updated.Revision, nil
}

// Page runs a cursor-paginated query and decodes the page
func (e Events) Page(ctx context.Context, q store.Query) ([]model.Event, string, error) {
	page, err := e.scope.Query(ctx, q)
	if err != nil {
		return nil, "", err
	}
	events := make([]model.Event, 0, len(page.Items))
	for _, doc := range page.Items {
		event, err := e.decode(doc)
		if err != nil {
			return nil, "", err
		}
		events = append(events, event)
	}
	return events, page.NextCursor, nil
}
