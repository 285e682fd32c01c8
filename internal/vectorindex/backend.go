// Package vectorindex is the vector-index adapter (component E): insert,
// nearest-neighbor search with the common filter shape, flush.
package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
)

// Result is one vector_search hit: the episodic record's id, its similarity
// score (cosine similarity, higher is closer), and the scalar fields carried
// alongside the vector so callers don't need a document-store round trip to
// render a result.
type Result struct {
	ID      string
	Score   float64
	Scalars map[string]string
}

// Index is the minimal vector_search contract spec §4.3 describes.
type Index interface {
	// Insert upserts vector under rec.ID, with rec's scalar fields carried
	// alongside it. Callers pass the vector explicitly since
	// EpisodicMemoryRecord is the generic flattened shape.
	Insert(ctx context.Context, rec model.EpisodicMemoryRecord, vector []float32) error
	// Search returns up to k nearest neighbors of queryVector matching
	// filter. radius, when non-nil, is a cosine-distance cutoff (1-score);
	// hits whose distance exceeds it are dropped.
	Search(ctx context.Context, queryVector []float32, filter model.Filter, k int, radius *float64) ([]Result, error)
	// Flush makes prior Insert calls visible to Search. Backends for which
	// writes are already immediately visible treat this as a no-op.
	Flush(ctx context.Context) error
	// Delete removes ids from the index, used by the admin soft-delete path.
	Delete(ctx context.Context, ids []string) error
}

// scalarsOf flattens the fields of rec that every vector backend carries as
// payload/metadata alongside the vector. Covers every scalar field spec
// §4.7 requires on an indexed record.
func scalarsOf(rec model.EpisodicMemoryRecord) map[string]string {
	metadata := "{}"
	if len(rec.Extend) > 0 {
		if b, err := json.Marshal(rec.Extend); err == nil {
			metadata = string(b)
		}
	}
	scalars := map[string]string{
		"user_id":         rec.UserID,
		"group_id":        rec.GroupID,
		"participants":    strings.Join(rec.Participants, ","),
		"parent_event_id": rec.ParentEventID,
		"memory_sub_type": string(rec.MemorySubType),
		"event_type":      rec.MemorySubType.EventType(),
		"metadata":        metadata,
		"search_content":  strings.Join(rec.SearchContent, "\n"),
		"timestamp":       rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
		"start_time":      epochOrZero(rec.StartTime),
		"end_time":        epochOrZero(rec.EndTime),
	}
	return scalars
}

func epochOrZero(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

// NewIndex builds the configured vector backend. "auto" tries Qdrant and
// falls back to the in-memory index on connect failure, mirroring the
// document store's NewBackend factory.
func NewIndex(ctx context.Context, cfg config.VectorBackendConfig, log obslog.Logger) (Index, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryIndex(), nil
	case "auto":
		idx, err := NewQdrantIndex(cfg)
		if err != nil {
			log.Warn("qdrant unavailable, falling back to in-memory vector index", map[string]any{"error": err.Error()})
			return NewMemoryIndex(), nil
		}
		return idx, nil
	case "qdrant":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("vector backend %q requires a dsn", cfg.Backend)
		}
		return NewQdrantIndex(cfg)
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.Backend)
	}
}
