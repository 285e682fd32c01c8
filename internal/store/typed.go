package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"memoryd/internal/model"
)

// Accessors extracts the common filterable columns out of a typed document
// so Store[T] can hand them to Backend without per-entity backend code.
type Accessors[T any] struct {
	ID        func(T) string
	UserID    func(T) string
	GroupID   func(T) string
	Timestamp func(T) time.Time
}

// Store is the typed document-store adapter spec §4.3 describes: get_by_id,
// get_by_field_eq, upsert_by_id, find_many_paged, soft_delete, compiled
// against a concrete entity type T and a storage-agnostic Backend.
type Store[T any] struct {
	backend    Backend
	collection string
	acc        Accessors[T]
}

// New constructs a Store[T] over collection, using acc to derive the
// filterable columns from each T value on write.
func New[T any](backend Backend, collection string, acc Accessors[T]) *Store[T] {
	return &Store[T]{backend: backend, collection: collection, acc: acc}
}

func (s *Store[T]) decode(r record) (T, error) {
	var v T
	if err := json.Unmarshal(r.Doc, &v); err != nil {
		return v, fmt.Errorf("decode %s document %s: %w", s.collection, r.ID, err)
	}
	return v, nil
}

// GetByID fetches one document by its primary key.
func (s *Store[T]) GetByID(ctx context.Context, id string) (T, bool, error) {
	r, ok, err := s.backend.GetByID(ctx, s.collection, id)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	v, err := s.decode(r)
	return v, err == nil, err
}

// GetByFieldEq fetches every non-deleted document whose JSON field equals
// value.
func (s *Store[T]) GetByFieldEq(ctx context.Context, field string, value any) ([]T, error) {
	recs, err := s.backend.GetByFieldEq(ctx, s.collection, field, value)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		v, err := s.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// UpsertByID inserts or replaces v, keyed by s.acc.ID(v). Transactional
// boundary is per-document, per spec §4.3.
func (s *Store[T]) UpsertByID(ctx context.Context, v T) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s document: %w", s.collection, err)
	}
	r := record{
		ID:        s.acc.ID(v),
		UserID:    s.acc.UserID(v),
		GroupID:   s.acc.GroupID(v),
		Timestamp: s.acc.Timestamp(v),
		Doc:       doc,
	}
	return s.backend.UpsertByID(ctx, s.collection, r)
}

// FindManyPaged returns a filtered, sorted page of documents plus the total
// match count (for has_more computation by callers).
func (s *Store[T]) FindManyPaged(ctx context.Context, filter model.Filter, sort SortSpec, limit, offset int) ([]T, int, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}
	recs, total, err := s.backend.FindManyPaged(ctx, s.collection, filter, sort, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		v, err := s.decode(r)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, nil
}

// SoftDelete marks ids as deleted without physically removing them.
func (s *Store[T]) SoftDelete(ctx context.Context, ids []string) error {
	return s.backend.SoftDelete(ctx, s.collection, ids)
}
