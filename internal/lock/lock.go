// Package lock implements the per-group single-writer lock spec §5
// requires the ingest coordinator (component J) to hold across every
// suspension point of one ingest: from the ConversationStatus read through
// the status advance and the optional profile update.
package lock

import (
	"context"
	"fmt"

	"memoryd/internal/config"
	"memoryd/internal/obslog"
)

// Locker acquires and releases a named, reentrant-unsafe lock. Callers must
// not call Acquire again for a name they already hold.
type Locker interface {
	// Acquire blocks until the named lock is held or ctx is done. The
	// returned release func must be called exactly once.
	Acquire(ctx context.Context, name string) (release func(context.Context), err error)
}

// WithLock acquires name, runs fn, and always releases, regardless of
// whether fn returns an error.
func WithLock(ctx context.Context, l Locker, name string, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx, name)
	if err != nil {
		return fmt.Errorf("acquire lock %q: %w", name, err)
	}
	defer release(ctx)
	return fn(ctx)
}

// New builds the distributed leg when cfg.Addr is set, falling back to the
// in-process locker on connect failure or when cfg.Addr is blank — mirroring
// the "auto" fallback vectorindex.NewIndex and the document/inverted store
// factories use for their own backends. metrics may be nil: contention
// counts are then dropped rather than recorded.
func New(cfg config.RedisConfig, ttlSeconds int, log obslog.Logger, metrics obslog.Metrics) Locker {
	if cfg.Addr == "" {
		return NewMemoryLocker(metrics)
	}
	l, err := NewRedisLocker(cfg, ttlSeconds, metrics)
	if err != nil {
		log.Warn("redis unavailable, falling back to in-process lock", map[string]any{"error": err.Error()})
		return NewMemoryLocker(metrics)
	}
	if l == nil {
		return NewMemoryLocker(metrics)
	}
	return l
}
