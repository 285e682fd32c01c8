// Package window is the append-only per-group message log (component G):
// append, range, set_status over model.WindowEntry, per spec §4.4.
package window

import (
	"context"
	"fmt"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/model"
)

// MaxRangeSize is the hard cap on entries a single Range call returns,
// per spec §4.4.
const MaxRangeSize = 500

// Repository is the window repository's operation set.
type Repository interface {
	// Append inserts msg with status LOG. Idempotent on
	// (group_id, message_id): a repeated Append of an already-seen message
	// is a no-op, not an error.
	Append(ctx context.Context, msg model.RawMessage) error
	// Range returns entries for groupID with create_time in the closed
	// interval [start, end], ordered by create_time ascending with ties
	// broken by insertion order, capped at MaxRangeSize.
	Range(ctx context.Context, groupID string, start, end time.Time) ([]model.WindowEntry, error)
	// SetStatus advances status for messageIDs in groupID. The status
	// lifecycle only moves forward (LOG -> ACCUMULATING -> CONSUMED);
	// implementations must silently skip messages already at or past the
	// requested status rather than regress them.
	SetStatus(ctx context.Context, groupID string, messageIDs []string, status model.SyncStatus) error
}

// NewRepository builds the configured window-repository backend.
func NewRepository(ctx context.Context, cfg config.BackendConfig) (Repository, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryRepository(), nil
	case "auto":
		repo, err := NewPostgresRepository(ctx, cfg.DSN)
		if err != nil {
			return NewMemoryRepository(), nil
		}
		return repo, nil
	case "postgres", "pg":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("window backend %q requires a dsn", cfg.Backend)
		}
		return NewPostgresRepository(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported window backend %q", cfg.Backend)
	}
}
