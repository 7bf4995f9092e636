package repository

import (
	"context"
	"errors"
	"time"

	"crm-service/internal/model"
	"crm-service/internal/store"
	"crm-service/prometheus"

	"go.uber.org/zap"
)

const (
	retryAttempts = 3
	retryBackoff  = 50 * time.Millisecond
)

// Repository wraps the document store so every read and write is prefixed by
// a tenant id. Callers obtain typed, tenant-scoped accessors; there is no way
// to build a query spanning two tenants through this layer.
//
// Store outages are retried here with bounded backoff; lifecycle managers
// never retry on their own, so side effects cannot be duplicated.
type Repository struct {
	store store.Store
	log   *zap.Logger
}

// New creates a Repository over a document store
func New(s store.Store, log *zap.Logger) *Repository {
	return &Repository{store: s, log: log}
}

// Leads returns the lead accessor scoped to tenantID
func (r *Repository) Leads(tenantID string) Leads {
	return Leads{scope: Scope{r: r, tenantID: tenantID, kind: store.KindLeads}}
}

// Events returns the event accessor scoped to tenantID
func (r *Repository) Events(tenantID string) Events {
	return Events{scope: Scope{r: r, tenantID: tenantID, kind: store.KindEvents}}
}

// Users returns the user accessor scoped to tenantID
func (r *Repository) Users(tenantID string) Users {
	return Users{scope: Scope{r: r, tenantID: tenantID, kind: store.KindUsers}}
}

// Tenants returns the tenant-record accessor. Tenant records live in their own
// namespace keyed by the tenant id itself.
func (r *Repository) Tenants() Tenants {
	return Tenants{r: r}
}

// Scope returns an untyped scope over one tenant's collection, for callers
// that work on raw documents rather than decoded models.
func (r *Repository) Scope(tenantID string, kind store.Kind) Scope {
	return Scope{r: r, tenantID: tenantID, kind: kind}
}

// Scope is one tenant's view of one collection
type Scope struct {
	r        *Repository
	tenantID string
	kind     store.Kind
}

// TenantID returns the tenant the scope is bound to
func (s Scope) TenantID() string {
	return s.tenantID
}

// Query runs a sanitized, cursor-paginated query against the scope
func (s Scope) Query(ctx context.Context, q store.Query) (store.Page, error) {
	filter, err := s.sanitizeFilter(q.Filter)
	if err != nil {
		return store.Page{}, err
	}
	q.Filter = filter

	var page store.Page
	err = s.r.withRetry(ctx, "query", func() error {
		var inner error
		page, inner = s.r.store.Query(ctx, s.tenantID, s.kind, q)
		return inner
	})
	return page, err
}

// Patch merges fields into one document, last-write-wins per field.
// Concurrent patches to disjoint fields both survive.
func (s Scope) Patch(ctx context.Context, id string, fields map[string]any) (store.Document, error) {
	var doc store.Document
	err := s.r.withRetry(ctx, "patch", func() error {
		var inner error
		doc, inner = s.r.store.Patch(ctx, s.tenantID, s.kind, id, fields)
		return inner
	})
	return doc, err
}

// Watch opens a live delta stream for the scope
func (s Scope) Watch(ctx context.Context) (<-chan store.Delta, store.CancelFunc, error) {
	ch, cancel, err := s.r.store.Watch(ctx, s.tenantID, s.kind)
	if err != nil {
		return nil, nil, mapStoreErr(err)
	}
	return ch, cancel, nil
}

// sanitizeFilter rejects filters that name a foreign tenant and strips the
// redundant own-tenant predicate, which the key prefix already enforces.
func (s Scope) sanitizeFilter(f store.Filter) (store.Filter, error) {
	if want, ok := f.Equals["tenant_id"]; ok {
		if want != s.tenantID {
			return store.Filter{}, model.ErrCrossTenantAccess
		}
		equals := make(map[string]string, len(f.Equals)-1)
		for field, value := range f.Equals {
			if field != "tenant_id" {
				equals[field] = value
			}
		}
		f.Equals = equals
	}
	return f, nil
}

// withRetry retries fn on store unavailability with doubling backoff, then
// surfaces model.ErrStoreUnavailable.
func (r *Repository) withRetry(ctx context.Context, op string, fn func() error) error {
	defer prometheus.TrackStoreOperation(op)(time.Now())

	backoff := retryBackoff
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, store.ErrUnavailable) {
			return mapStoreErr(err)
		}
		if attempt == retryAttempts {
			break
		}
		r.log.Warn("Document store unavailable, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return model.ErrStoreUnavailable
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	r.log.Error("Document store unavailable, giving up",
		zap.String("op", op), zap.Error(err))
	return model.ErrStoreUnavailable
}

// mapStoreErr translates store errors into the business error vocabulary.
// store.ErrConflict passes through untouched: conditional-write conflicts are
// a lifecycle-manager concern, not a caller-visible failure.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return model.ErrNotFound
	case errors.Is(err, store.ErrUnsupportedQuery):
		return model.ErrUnsupportedQuery
	case errors.Is(err, store.ErrUnavailable):
		return model.ErrStoreUnavailable
	default:
		return err
	}
}
