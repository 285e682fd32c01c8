// Package store implements the document store adapter (component D):
// typed CRUD over MemCell, EpisodicMemoryRecord, Profile, ConversationMeta,
// RequestLog and ClusterState, per spec §4.3.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/model"
)

// SortSpec orders FindManyPaged results by one document field.
type SortSpec struct {
	Field string
	Desc  bool
}

// record is a backend-agnostic document envelope: the common filterable
// columns (user_id, group_id, timestamp) lifted out of the JSON body so
// every backend can filter/sort on them without parsing the document.
type record struct {
	ID        string
	UserID    string
	GroupID   string
	Timestamp time.Time
	Doc       json.RawMessage
	Deleted   bool
}

// Backend is the storage-agnostic operation set the typed Store[T] compiles
// down to. Collections are namespaced by name (e.g. "memcell", "profile")
// so one backend instance can serve every entity type in spec §3.
type Backend interface {
	GetByID(ctx context.Context, collection, id string) (record, bool, error)
	GetByFieldEq(ctx context.Context, collection, field string, value any) ([]record, error)
	UpsertByID(ctx context.Context, collection string, r record) error
	FindManyPaged(ctx context.Context, collection string, filter model.Filter, sort SortSpec, limit, offset int) ([]record, int, error)
	SoftDelete(ctx context.Context, collection string, ids []string) error
}

// NewBackend selects the memory or Postgres backend per cfg.Backend,
// mirroring the teacher's factory.go backend-selection switch.
func NewBackend(ctx context.Context, cfg config.BackendConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "auto":
		if cfg.DSN == "" {
			return NewMemoryBackend(), nil
		}
		b, err := NewPostgresBackend(ctx, cfg.DSN)
		if err != nil {
			return NewMemoryBackend(), nil
		}
		return b, nil
	case "postgres", "pg":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store backend postgres requires a DSN")
		}
		return NewPostgresBackend(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported document store backend: %s", cfg.Backend)
	}
}
