package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store. It backs the service when the database is
// disabled and is the substrate for concurrency tests: its conditional writes
// have the same semantics as the durable implementation.
type MemStore struct {
	mu       sync.RWMutex
	docs     map[string]Document
	watchers map[string][]*memWatcher
}

type memWatcher struct {
	ch     chan Delta
	closed bool
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		docs:     make(map[string]Document),
		watchers: make(map[string][]*memWatcher),
	}
}

func docKey(tenantID string, kind Kind, id string) string {
	return fmt.Sprintf("%s/%s/%s", tenantID, kind, id)
}

func scopeKey(tenantID string, kind Kind) string {
	return fmt.Sprintf("%s/%s", tenantID, kind)
}

// Get implements Store
func (s *MemStore) Get(_ context.Context, tenantID string, kind Kind, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docKey(tenantID, kind, id)]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// Put implements Store
func (s *MemStore) Put(_ context.Context, doc Document, expectedRevision int64) (Document, error) {
	if doc.TenantID == "" || doc.Kind == "" || doc.ID == "" {
		return Document{}, fmt.Errorf("%w: incomplete document key", ErrUnsupportedQuery)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey(doc.TenantID, doc.Kind, doc.ID)
	current, exists := s.docs[key]

	op := OpUpdate
	if expectedRevision == 0 {
		if exists {
			return Document{}, ErrConflict
		}
		op = OpInsert
		doc.Revision = 1
	} else {
		if !exists {
			return Document{}, ErrNotFound
		}
		if current.Revision != expectedRevision {
			return Document{}, ErrConflict
		}
		doc.Revision = expectedRevision + 1
	}
	doc.UpdatedAt = time.Now().UTC()
	s.docs[key] = doc
	s.notify(Delta{Op: op, Doc: doc})
	return doc, nil
}

// Patch implements Store. Fields are merged into the stored JSON object one by
// one, so concurrent patches to unrelated fields do not clobber each other.
func (s *MemStore) Patch(_ context.Context, tenantID string, kind Kind, id string, fields map[string]any) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey(tenantID, kind, id)
	current, exists := s.docs[key]
	if !exists {
		return Document{}, ErrNotFound
	}

	merged, err := mergeFields(current.Data, fields)
	if err != nil {
		return Document{}, err
	}
	current.Data = merged
	current.Revision++
	current.UpdatedAt = time.Now().UTC()
	s.docs[key] = current
	s.notify(Delta{Op: OpUpdate, Doc: current})
	return current, nil
}

// Delete implements Store
func (s *MemStore) Delete(_ context.Context, tenantID string, kind Kind, id string, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey(tenantID, kind, id)
	current, exists := s.docs[key]
	if !exists {
		return ErrNotFound
	}
	if expectedRevision > 0 && current.Revision != expectedRevision {
		return ErrConflict
	}
	delete(s.docs, key)
	s.notify(Delta{Op: OpDelete, Doc: current})
	return nil
}

// Query implements Store
func (s *MemStore) Query(_ context.Context, tenantID string, kind Kind, q Query) (Page, error) {
	if err := validatePushdown(q.Filter); err != nil {
		return Page{}, err
	}
	limit := normalizeLimit(q.Limit)

	s.mu.RLock()
	prefix := scopeKey(tenantID, kind) + "/"
	var items []Document
	for key, doc := range s.docs {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if matchesEquals(doc.Data, q.Filter.Equals) {
			items = append(items, doc)
		}
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	var page Page
	for _, doc := range items {
		if q.Cursor != "" && doc.ID <= q.Cursor {
			continue
		}
		page.Items = append(page.Items, doc)
		if len(page.Items) == limit {
			break
		}
	}
	if n := len(page.Items); n == limit {
		last := page.Items[n-1].ID
		// Only hand out a cursor if something follows the page
		for _, doc := range items {
			if doc.ID > last {
				page.NextCursor = last
				break
			}
		}
	}
	return page, nil
}

// Watch implements Store
func (s *MemStore) Watch(_ context.Context, tenantID string, kind Kind) (<-chan Delta, CancelFunc, error) {
	w := &memWatcher{ch: make(chan Delta, 64)}
	scope := scopeKey(tenantID, kind)

	s.mu.Lock()
	s.watchers[scope] = append(s.watchers[scope], w)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if w.closed {
			return
		}
		w.closed = true
		close(w.ch)
		ws := s.watchers[scope]
		for i, cand := range ws {
			if cand == w {
				s.watchers[scope] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
	}
	return w.ch, cancel, nil
}

// notify fans a delta out to the scope's watchers. Called with mu held. A
// watcher that has fallen 64 deltas behind loses this delta rather than
// blocking writers.
func (s *MemStore) notify(d Delta) {
	for _, w := range s.watchers[scopeKey(d.Doc.TenantID, d.Doc.Kind)] {
		if w.closed {
			continue
		}
		select {
		case w.ch <- d:
		default:
		}
	}
}

func matchesEquals(data json.RawMessage, equals map[string]string) bool {
	if len(equals) == 0 {
		return true
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return false
	}
	for field, want := range equals {
		got, ok := obj[field]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

func mergeFields(data json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	obj := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
	}
	for field, value := range fields {
		if value == nil {
			delete(obj, field)
			continue
		}
		obj[field] = value
	}
	return json.Marshal(obj)
}
