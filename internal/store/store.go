package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Kind names a document collection
type Kind string

const (
	KindTenants Kind = "tenants"
	KindUsers   Kind = "users"
	KindLeads   Kind = "leads"
	KindEvents  Kind = "events"
)

var (
	// ErrNotFound is returned when no document exists under the key.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a conditional write was conditioned on a
	// stale revision, or an insert collided with an existing document.
	ErrConflict = errors.New("store: revision conflict")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("store: unavailable")
	// ErrUnsupportedQuery is returned when a filter combination would require
	// an index the store does not have. Failing fast here is deliberate:
	// silently returning a partial result would be worse.
	ErrUnsupportedQuery = errors.New("store: unsupported query")
)

// Document is a versioned JSON record keyed by (tenant, kind, id)
type Document struct {
	TenantID  string          `json:"tenant_id"`
	Kind      Kind            `json:"kind"`
	ID        string          `json:"id"`
	Revision  int64           `json:"revision"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Op is the kind of change a watch delta carries
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Delta is one change observed on a watched collection
type Delta struct {
	Op  Op       `json:"op"`
	Doc Document `json:"doc"`
}

// Filter holds the predicates a query pushes down to the store. At most one
// equality predicate is supported per query; combining more would require a
// composite cross-field index.
type Filter struct {
	Equals map[string]string `json:"equals,omitempty"`
}

// Query is a cursor-paginated query over one tenant's collection. Results are
// ordered by document id; Cursor is the last id of the previous page.
type Query struct {
	Filter Filter
	Cursor string
	Limit  int
}

// Page is one page of query results. NextCursor is empty on the last page.
type Page struct {
	Items      []Document
	NextCursor string
}

// CancelFunc stops a watch and releases its resources synchronously
type CancelFunc func()

// Store is the document store collaborator. Every key is namespaced by
// (tenantID, kind); a caller can never address another tenant's data through
// this interface.
//
// Put with expectedRevision 0 inserts a new document and fails with
// ErrConflict if one exists; expectedRevision > 0 is a conditional update that
// fails with ErrConflict unless the stored revision matches. This is the
// atomicity primitive lifecycle guards are built on.
type Store interface {
	Get(ctx context.Context, tenantID string, kind Kind, id string) (Document, error)
	Put(ctx context.Context, doc Document, expectedRevision int64) (Document, error)
	// Patch merges fields into the document's JSON, last-write-wins per field.
	// Concurrent patches to disjoint fields both survive.
	Patch(ctx context.Context, tenantID string, kind Kind, id string, fields map[string]any) (Document, error)
	// Delete removes the document. expectedRevision <= 0 deletes
	// unconditionally.
	Delete(ctx context.Context, tenantID string, kind Kind, id string, expectedRevision int64) error
	Query(ctx context.Context, tenantID string, kind Kind, q Query) (Page, error)
	// Watch streams deltas for one tenant's collection until canceled. Each
	// subscriber is independent; cancellation stops listening synchronously.
	Watch(ctx context.Context, tenantID string, kind Kind) (<-chan Delta, CancelFunc, error)
}

const defaultPageSize = 50

func normalizeLimit(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	return n
}

// validatePushdown enforces the single-equality-predicate limit shared by all
// store implementations.
func validatePushdown(f Filter) error {
	if len(f.Equals) > 1 {
		return ErrUnsupportedQuery
	}
	return nil
}
