package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"memoryd/internal/model"
)

// memoryBackend is an in-process Backend, grounded on the teacher's
// memory_vector.go mutex-guarded-map style. It backs local runs and tests
// where no Postgres DSN is configured.
type memoryBackend struct {
	mu          sync.RWMutex
	collections map[string]map[string]record
}

// NewMemoryBackend constructs an empty in-memory Backend.
func NewMemoryBackend() Backend {
	return &memoryBackend{collections: make(map[string]map[string]record)}
}

func (b *memoryBackend) GetByID(_ context.Context, collection, id string) (record, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.collections[collection][id]
	if !ok || r.Deleted {
		return record{}, false, nil
	}
	return r, true, nil
}

func (b *memoryBackend) GetByFieldEq(_ context.Context, collection, field string, value any) ([]record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []record
	for _, r := range b.collections[collection] {
		if r.Deleted {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(r.Doc, &doc); err != nil {
			continue
		}
		if valuesEqual(doc[field], value) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *memoryBackend) UpsertByID(_ context.Context, collection string, r record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.collections[collection] == nil {
		b.collections[collection] = make(map[string]record)
	}
	b.collections[collection][r.ID] = r
	return nil
}

func (b *memoryBackend) FindManyPaged(_ context.Context, collection string, filter model.Filter, sortSpec SortSpec, limit, offset int) ([]record, int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []record
	for _, r := range b.collections[collection] {
		if r.Deleted {
			continue
		}
		if !filter.Matches(r.UserID, r.GroupID, r.Timestamp) {
			continue
		}
		matched = append(matched, r)
	}
	total := len(matched)
	sortRecords(matched, sortSpec)

	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (b *memoryBackend) SoftDelete(_ context.Context, collection string, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	col := b.collections[collection]
	for _, id := range ids {
		if r, ok := col[id]; ok {
			r.Deleted = true
			col[id] = r
		}
	}
	return nil
}

func sortRecords(recs []record, s SortSpec) {
	switch s.Field {
	case "", "timestamp":
		sort.SliceStable(recs, func(i, j int) bool {
			if s.Desc {
				return recs[i].Timestamp.After(recs[j].Timestamp)
			}
			return recs[i].Timestamp.Before(recs[j].Timestamp)
		})
	case "id":
		sort.SliceStable(recs, func(i, j int) bool {
			if s.Desc {
				return recs[i].ID > recs[j].ID
			}
			return recs[i].ID < recs[j].ID
		})
	}
}

// valuesEqual compares a decoded-JSON value against a typed Go value for
// GetByFieldEq; JSON numbers decode as float64 so ints compare by value.
func valuesEqual(a, b any) bool {
	switch bv := b.(type) {
	case string:
		av, ok := a.(string)
		return ok && av == bv
	case int:
		av, ok := a.(float64)
		return ok && av == float64(bv)
	case int64:
		av, ok := a.(float64)
		return ok && av == float64(bv)
	case float64:
		av, ok := a.(float64)
		return ok && av == bv
	case bool:
		av, ok := a.(bool)
		return ok && av == bv
	default:
		return a == b
	}
}
