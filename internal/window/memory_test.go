package window

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/model"
)

func msg(groupID, id string, ts time.Time) model.RawMessage {
	return model.RawMessage{GroupID: groupID, MessageID: id, Sender: "u1", Role: model.RoleUser, Content: "hi", CreateTime: ts}
}

func TestMemoryRepository_Append_InsertsWithLogStatus(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()
	require.NoError(t, r.Append(ctx, msg("g1", "m1", now)))

	entries, err := r.Range(ctx, "g1", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.SyncStatusLog, entries[0].SyncStatus)
}

func TestMemoryRepository_Append_IdempotentOnGroupAndMessageID(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()
	require.NoError(t, r.Append(ctx, msg("g1", "m1", now)))
	require.NoError(t, r.Append(ctx, msg("g1", "m1", now)))

	entries, err := r.Range(ctx, "g1", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryRepository_Range_OrdersByCreateTimeThenInsertionOrder(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	same := time.Now()
	require.NoError(t, r.Append(ctx, msg("g1", "m2", same)))
	require.NoError(t, r.Append(ctx, msg("g1", "m1", same)))
	require.NoError(t, r.Append(ctx, msg("g1", "m3", same.Add(time.Second))))

	entries, err := r.Range(ctx, "g1", same.Add(-time.Hour), same.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"m2", "m1", "m3"}, []string{entries[0].MessageID, entries[1].MessageID, entries[2].MessageID})
}

func TestMemoryRepository_Range_RespectsCap(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	base := time.Now()
	for i := 0; i < MaxRangeSize+10; i++ {
		require.NoError(t, r.Append(ctx, msg("g1", "m"+strconv.Itoa(i), base.Add(time.Duration(i)*time.Millisecond))))
	}
	entries, err := r.Range(ctx, "g1", base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, MaxRangeSize)
}

func TestMemoryRepository_SetStatus_AdvancesAndRejectsRegression(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()
	require.NoError(t, r.Append(ctx, msg("g1", "m1", now)))
	require.NoError(t, r.SetStatus(ctx, "g1", []string{"m1"}, model.SyncStatusConsumed))

	entries, err := r.Range(ctx, "g1", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.SyncStatusConsumed, entries[0].SyncStatus)

	require.NoError(t, r.SetStatus(ctx, "g1", []string{"m1"}, model.SyncStatusAccumulating))
	entries, err = r.Range(ctx, "g1", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusConsumed, entries[0].SyncStatus, "status must not regress")
}

func TestMemoryRepository_Range_ExcludesOutOfIntervalEntries(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()
	require.NoError(t, r.Append(ctx, msg("g1", "in", now)))
	require.NoError(t, r.Append(ctx, msg("g1", "out", now.Add(2*time.Hour))))

	entries, err := r.Range(ctx, "g1", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "in", entries[0].MessageID)
}
