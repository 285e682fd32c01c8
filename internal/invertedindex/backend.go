// Package invertedindex is the full-text search adapter (component F):
// upsert, multi-term keyword search with the common filter shape, refresh.
package invertedindex

import (
	"context"
	"fmt"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
)

// Doc is one upserted document: its searchable text plus the scalar fields
// the common filter shape and result payload need.
type Doc struct {
	ID        string
	UserID    string
	GroupID   string
	Timestamp time.Time
	Text      string
	Source    map[string]any
}

// Hit is one multi_search result, named after spec §4.3's
// {id, _score, _source} shape.
type Hit struct {
	ID      string
	Score   float64
	Source  map[string]any
	Snippet string
}

// Index is the minimal multi_search contract spec §4.3 describes.
type Index interface {
	// Upsert indexes or reindexes doc.
	Upsert(ctx context.Context, doc Doc) error
	// MultiSearch matches any of terms (OR'd together) against indexed
	// text, applying filter, and returns size hits starting at offset
	// from, ranked by relevance score descending.
	MultiSearch(ctx context.Context, terms []string, filter model.Filter, size, from int) ([]Hit, error)
	// Refresh makes prior Upsert calls visible to MultiSearch. Backends
	// for which writes are already immediately visible treat this as a
	// no-op.
	Refresh(ctx context.Context) error
	// Delete removes ids from the index, used by the admin soft-delete
	// path.
	Delete(ctx context.Context, ids []string) error
}

// NewIndex builds the configured inverted-index backend. "auto" tries
// Postgres and falls back to the in-memory index on connect failure,
// mirroring the document store's NewBackend factory.
func NewIndex(ctx context.Context, cfg config.BackendConfig, log obslog.Logger) (Index, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryIndex(), nil
	case "auto":
		idx, err := NewPostgresIndex(ctx, cfg.DSN)
		if err != nil {
			log.Warn("postgres inverted index unavailable, falling back to in-memory index", map[string]any{"error": err.Error()})
			return NewMemoryIndex(), nil
		}
		return idx, nil
	case "postgres", "pg":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("inverted index backend %q requires a dsn", cfg.Backend)
		}
		return NewPostgresIndex(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported inverted index backend %q", cfg.Backend)
	}
}
