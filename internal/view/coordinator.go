package view

import (
	"context"
	"sync"

	"crm-service/internal/authz"
	"crm-service/internal/model"
	"crm-service/internal/repository"
	"crm-service/internal/store"
	"crm-service/prometheus"

	"go.uber.org/zap"
)

// Mode selects how a view is kept current. The two modes are mutually
// exclusive per view: reconciling out-of-order live inserts with a pagination
// cursor needs a designed merge policy this service does not have.
type Mode int

const (
	// ModePaged serves the view as cursor-based pages on demand.
	ModePaged Mode = iota
	// ModeLive serves an initial page plus a live stream of deltas.
	ModeLive
)

// Query describes what a view projects. Pushdown predicates are evaluated by
// the store; Match is the residual predicate evaluated client-side over each
// page or delta, and may be nil.
type Query struct {
	Pushdown store.Filter
	Match    func(store.Document) bool
	PageSize int
}

// Coordinator manages live, paginated, filtered projections of lead and event
// collections for presentation layers.
type Coordinator struct {
	repo *repository.Repository
	log  *zap.Logger
}

// NewCoordinator creates a view coordinator
func NewCoordinator(repo *repository.Repository, log *zap.Logger) *Coordinator {
	return &Coordinator{repo: repo, log: log}
}

// OpenLeads opens a view over the principal's tenant's leads
func (c *Coordinator) OpenLeads(ctx context.Context, p model.Principal, q Query, mode Mode) (*View, error) {
	if !authz.Can(p, authz.ViewLeads, authz.Resource{}) {
		return nil, model.ErrForbidden
	}
	return c.open(ctx, p.TenantID, store.KindLeads, q, mode)
}

// OpenEvents opens a view over the principal's tenant's events
func (c *Coordinator) OpenEvents(ctx context.Context, p model.Principal, q Query, mode Mode) (*View, error) {
	if !authz.Can(p, authz.ViewEvents, authz.Resource{}) {
		return nil, model.ErrForbidden
	}
	return c.open(ctx, p.TenantID, store.KindEvents, q, mode)
}

func (c *Coordinator) open(ctx context.Context, tenantID string, kind store.Kind, q Query, mode Mode) (*View, error) {
	v := &View{
		mode:  mode,
		scope: c.repo.Scope(tenantID, kind),
		query: q,
		log:   c.log,
	}
	if mode != ModeLive {
		return v, nil
	}

	deltas, cancel, err := v.scope.Watch(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan store.Delta, 64)
	go func() {
		defer close(out)
		for delta := range deltas {
			// Deletions always pass through so subscribers can evict; the
			// residual predicate only gates inserts and updates.
			if delta.Op != store.OpDelete && q.Match != nil && !q.Match(delta.Doc) {
				continue
			}
			select {
			case out <- delta:
			default:
				c.log.Warn("View subscriber too slow, dropping delta",
					zap.String("tenant_id", tenantID),
					zap.String("kind", string(kind)))
			}
		}
	}()

	v.deltas = out
	v.cancel = cancel
	prometheus.ActiveWatchGauge.Inc()
	return v, nil
}

// View is one lazy, lifecycle-bound projection. Close releases its resources
// synchronously.
type View struct {
	mode   Mode
	scope  repository.Scope
	query  Query
	log    *zap.Logger
	cursor string
	done   bool

	deltas <-chan store.Delta
	cancel store.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NextPage loads the next page of the view. Paged mode only: paging a live
// view is rejected rather than guessed at.
func (v *View) NextPage(ctx context.Context) ([]store.Document, error) {
	if v.mode != ModePaged {
		return nil, model.ErrUnsupportedQuery
	}
	if v.done {
		return nil, nil
	}

	page, err := v.scope.Query(ctx, store.Query{
		Filter: v.query.Pushdown,
		Cursor: v.cursor,
		Limit:  v.query.PageSize,
	})
	if err != nil {
		return nil, err
	}
	v.cursor = page.NextCursor
	v.done = page.NextCursor == ""

	if v.query.Match == nil {
		return page.Items, nil
	}
	items := make([]store.Document, 0, len(page.Items))
	for _, doc := range page.Items {
		if v.query.Match(doc) {
			items = append(items, doc)
		}
	}
	return items, nil
}

// HasMore reports whether NextPage can yield further items
func (v *View) HasMore() bool {
	return v.mode == ModePaged && !v.done
}

// InitialPage loads the first page of a live view, read through the same
// residual filter the stream uses.
func (v *View) InitialPage(ctx context.Context) ([]store.Document, error) {
	if v.mode != ModeLive {
		return nil, model.ErrUnsupportedQuery
	}
	page, err := v.scope.Query(ctx, store.Query{
		Filter: v.query.Pushdown,
		Limit:  v.query.PageSize,
	})
	if err != nil {
		return nil, err
	}
	if v.query.Match == nil {
		return page.Items, nil
	}
	items := make([]store.Document, 0, len(page.Items))
	for _, doc := range page.Items {
		if v.query.Match(doc) {
			items = append(items, doc)
		}
	}
	return items, nil
}

// Deltas returns the live delta stream, or nil for a paged view
func (v *View) Deltas() <-chan store.Delta {
	return v.deltas
}

// Close stops any live subscription and releases resources. Safe to call
// more than once.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	if v.cancel != nil {
		v.cancel()
		prometheus.ActiveWatchGauge.Dec()
	}
}
