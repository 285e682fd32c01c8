package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/config"
	"memoryd/internal/obslog"
)

func TestMemoryLocker_AcquireRelease_SequentialReentry(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker(obslog.NoopMetrics{})

	release, err := l.Acquire(ctx, "g1")
	require.NoError(t, err)
	release(ctx)

	release2, err := l.Acquire(ctx, "g1")
	require.NoError(t, err)
	release2(ctx)
}

func TestMemoryLocker_DifferentNames_DoNotBlockEachOther(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker(obslog.NoopMetrics{})

	releaseA, err := l.Acquire(ctx, "a")
	require.NoError(t, err)
	defer releaseA(ctx)

	done := make(chan struct{})
	go func() {
		releaseB, err := l.Acquire(ctx, "b")
		require.NoError(t, err)
		releaseB(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a different lock name blocked on an unrelated held lock")
	}
}

func TestMemoryLocker_SecondAcquire_BlocksUntilReleased(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker(obslog.NoopMetrics{})

	release, err := l.Acquire(ctx, "g1")
	require.NoError(t, err)

	var acquired atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := l.Acquire(ctx, "g1")
		require.NoError(t, err)
		acquired.Store(true)
		r(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, acquired.Load(), "second Acquire returned before the first was released")

	release(ctx)
	wg.Wait()
	assert.True(t, acquired.Load())
}

func TestMemoryLocker_Acquire_CancelledContextReturnsErrBeforeRelease(t *testing.T) {
	l := NewMemoryLocker(obslog.NoopMetrics{})
	held, err := l.Acquire(context.Background(), "g1")
	require.NoError(t, err)
	defer held(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx, "g1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithLock_ReleasesEvenWhenFnErrors(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker(obslog.NoopMetrics{})

	boom := assert.AnError
	err := WithLock(ctx, l, "g1", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	// if WithLock failed to release, this would block and the test would
	// fail via the outer test timeout.
	release, err := l.Acquire(ctx, "g1")
	require.NoError(t, err)
	release(ctx)
}

func TestNew_BlankAddr_ReturnsMemoryLocker(t *testing.T) {
	l := New(config.RedisConfig{}, 0, obslog.NopLogger{}, obslog.NoopMetrics{})
	_, ok := l.(*memoryLocker)
	assert.True(t, ok)
}
