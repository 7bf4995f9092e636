package repository

import (
	"context"
	"encoding/json"

	"crm-service/internal/model"
	"crm-service/internal/store"
)

// Tenants is the accessor for tenant records. Tenant documents are keyed
// under their own id, so the scope and the document coincide.
type Tenants struct {
	r *Repository
}

// Get returns the tenant record
func (t Tenants) Get(ctx context.Context, id string) (model.Tenant, error) {
	var doc store.Document
	err := t.r.withRetry(ctx, "get tenant", func() error {
		var inner error
		doc, inner = t.r.store.Get(ctx, id, store.KindTenants, id)
		return inner
	})
	if err != nil {
		return model.Tenant{}, err
	}
	var tenant model.Tenant
	if err := json.Unmarshal(doc.Data, &tenant); err != nil {
		return model.Tenant{}, err
	}
	return tenant, nil
}

// Insert creates a tenant record at company registration
func (t Tenants) Insert(ctx context.Context, tenant model.Tenant) (model.Tenant, error) {
	data, err := json.Marshal(tenant)
	if err != nil {
		return model.Tenant{}, err
	}
	doc := store.Document{TenantID: tenant.ID, Kind: store.KindTenants, ID: tenant.ID, Data: data}
	return tenant, t.r.withRetry(ctx, "insert tenant", func() error {
		_, inner := t.r.store.Put(ctx, doc, 0)
		return inner
	})
}
