package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// documentRow is the relational shape of a Document
type documentRow struct {
	TenantID  string    `gorm:"primaryKey;size:64;column:tenant_id"`
	Kind      string    `gorm:"primaryKey;size:32;column:kind"`
	DocID     string    `gorm:"primaryKey;size:64;column:doc_id"`
	Revision  int64     `gorm:"not null;column:revision"`
	Data      string    `gorm:"type:jsonb;column:data"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (documentRow) TableName() string {
	return "documents"
}

// GormStore is the durable Store over a postgres documents table. Conditional
// writes use an optimistic revision column; watch deltas ride a redis pub/sub
// channel per (tenant, kind) so every replica sees every write.
type GormStore struct {
	db    *gorm.DB
	redis *redis.Client
	log   *zap.Logger
}

// NewGormStore creates a GormStore and migrates the documents table. The redis
// client may be nil, in which case Watch is not available.
func NewGormStore(db *gorm.DB, redisClient *redis.Client, log *zap.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return &GormStore{db: db, redis: redisClient, log: log}, nil
}

func watchChannel(tenantID string, kind Kind) string {
	return fmt.Sprintf("crm:watch:%s:%s", tenantID, kind)
}

func (s *GormStore) rowToDoc(row documentRow) Document {
	return Document{
		TenantID:  row.TenantID,
		Kind:      Kind(row.Kind),
		ID:        row.DocID,
		Revision:  row.Revision,
		Data:      json.RawMessage(row.Data),
		UpdatedAt: row.UpdatedAt,
	}
}

// Get implements Store
func (s *GormStore) Get(ctx context.Context, tenantID string, kind Kind, id string) (Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND kind = ? AND doc_id = ?", tenantID, string(kind), id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.rowToDoc(row), nil
}

// Put implements Store
func (s *GormStore) Put(ctx context.Context, doc Document, expectedRevision int64) (Document, error) {
	now := time.Now().UTC()

	if expectedRevision == 0 {
		row := documentRow{
			TenantID:  doc.TenantID,
			Kind:      string(doc.Kind),
			DocID:     doc.ID,
			Revision:  1,
			Data:      string(doc.Data),
			UpdatedAt: now,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			if isDuplicateKey(err) {
				return Document{}, ErrConflict
			}
			return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		doc = s.rowToDoc(row)
		s.publish(ctx, Delta{Op: OpInsert, Doc: doc})
		return doc, nil
	}

	// Conditional update: the WHERE clause on revision makes guard-and-write a
	// single atomic statement. RowsAffected == 0 means either a stale revision
	// or a missing document; a follow-up read distinguishes the two.
	res := s.db.WithContext(ctx).Model(&documentRow{}).
		Where("tenant_id = ? AND kind = ? AND doc_id = ? AND revision = ?",
			doc.TenantID, string(doc.Kind), doc.ID, expectedRevision).
		Updates(map[string]any{
			"revision":   expectedRevision + 1,
			"data":       string(doc.Data),
			"updated_at": now,
		})
	if res.Error != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, doc.TenantID, doc.Kind, doc.ID); errors.Is(err, ErrNotFound) {
			return Document{}, ErrNotFound
		}
		return Document{}, ErrConflict
	}

	doc.Revision = expectedRevision + 1
	doc.UpdatedAt = now
	s.publish(ctx, Delta{Op: OpUpdate, Doc: doc})
	return doc, nil
}

// Patch implements Store. The merge runs as a conditional-write loop so two
// actors patching unrelated fields both land.
func (s *GormStore) Patch(ctx context.Context, tenantID string, kind Kind, id string, fields map[string]any) (Document, error) {
	const maxAttempts = 8
	for attempt := 0; attempt < maxAttempts; attempt++ {
		current, err := s.Get(ctx, tenantID, kind, id)
		if err != nil {
			return Document{}, err
		}
		merged, err := mergeFields(current.Data, fields)
		if err != nil {
			return Document{}, err
		}
		current.Data = merged
		updated, err := s.Put(ctx, current, current.Revision)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Document{}, err
		}
	}
	return Document{}, ErrConflict
}

// Delete implements Store
func (s *GormStore) Delete(ctx context.Context, tenantID string, kind Kind, id string, expectedRevision int64) error {
	current, err := s.Get(ctx, tenantID, kind, id)
	if err != nil {
		return err
	}
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND kind = ? AND doc_id = ?", tenantID, string(kind), id)
	if expectedRevision > 0 {
		q = q.Where("revision = ?", expectedRevision)
	}
	res := q.Delete(&documentRow{})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	s.publish(ctx, Delta{Op: OpDelete, Doc: current})
	return nil
}

// Query implements Store
func (s *GormStore) Query(ctx context.Context, tenantID string, kind Kind, q Query) (Page, error) {
	if err := validatePushdown(q.Filter); err != nil {
		return Page{}, err
	}
	limit := normalizeLimit(q.Limit)

	tx := s.db.WithContext(ctx).Model(&documentRow{}).
		Where("tenant_id = ? AND kind = ?", tenantID, string(kind))
	for field, want := range q.Filter.Equals {
		tx = tx.Where("data ->> ? = ?", field, want)
	}
	if q.Cursor != "" {
		tx = tx.Where("doc_id > ?", q.Cursor)
	}

	var rows []documentRow
	// Fetch one extra row to decide whether a next page exists
	if err := tx.Order("doc_id asc").Limit(limit + 1).Find(&rows).Error; err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var page Page
	for i, row := range rows {
		if i == limit {
			page.NextCursor = rows[limit-1].DocID
			break
		}
		page.Items = append(page.Items, s.rowToDoc(row))
	}
	return page, nil
}

// Watch implements Store via the redis pub/sub bridge
func (s *GormStore) Watch(ctx context.Context, tenantID string, kind Kind) (<-chan Delta, CancelFunc, error) {
	if s.redis == nil {
		return nil, nil, fmt.Errorf("%w: watch requires redis", ErrUnsupportedQuery)
	}
	pubsub := s.redis.Subscribe(ctx, watchChannel(tenantID, kind))
	// Force the subscription onto the wire before returning so the caller
	// never misses writes that happen after Watch returns.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make(chan Delta, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var delta Delta
			if err := json.Unmarshal([]byte(msg.Payload), &delta); err != nil {
				s.log.Warn("Dropping undecodable watch delta", zap.Error(err))
				continue
			}
			select {
			case out <- delta:
			default:
				s.log.Warn("Watch subscriber too slow, dropping delta",
					zap.String("tenant_id", tenantID), zap.String("kind", string(kind)))
			}
		}
	}()

	cancel := func() {
		// Closing the pubsub tears down the server-side subscription
		// immediately; the forwarding goroutine drains and exits.
		_ = pubsub.Close()
	}
	return out, cancel, nil
}

// publish fans a delta out to watch subscribers. Best-effort: a publish
// failure never fails the write that produced it.
func (s *GormStore) publish(ctx context.Context, delta Delta) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(delta)
	if err != nil {
		s.log.Error("Failed to marshal watch delta", zap.Error(err))
		return
	}
	if err := s.redis.Publish(ctx, watchChannel(delta.Doc.TenantID, delta.Doc.Kind), payload).Err(); err != nil {
		s.log.Warn("Failed to publish watch delta", zap.Error(err))
	}
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key")
}
