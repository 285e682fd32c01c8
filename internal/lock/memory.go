package lock

import (
	"context"
	"sync"

	"memoryd/internal/obslog"
)

// memoryLocker is the in-process lock fallback: one single-slot channel per
// name, acting as a cancellable mutex.
type memoryLocker struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	metrics obslog.Metrics
}

// NewMemoryLocker builds an in-process Locker for single-instance
// deployments or tests, where a distributed lock is unnecessary. metrics
// may be nil: contention counts are then dropped rather than recorded.
func NewMemoryLocker(metrics obslog.Metrics) Locker {
	if metrics == nil {
		metrics = obslog.NoopMetrics{}
	}
	return &memoryLocker{slots: make(map[string]chan struct{}), metrics: metrics}
}

func (l *memoryLocker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[name]
	if !ok {
		s = make(chan struct{}, 1)
		s <- struct{}{}
		l.slots[name] = s
	}
	return s
}

func (l *memoryLocker) Acquire(ctx context.Context, name string) (func(context.Context), error) {
	s := l.slot(name)
	select {
	case <-s:
		return func(context.Context) { s <- struct{}{} }, nil
	default:
	}
	l.metrics.IncCounter("lock_contention_total", map[string]string{"name": name})
	select {
	case <-s:
		return func(context.Context) { s <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
