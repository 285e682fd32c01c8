package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/model"
)

func TestMemCellStore_UpsertAndGetByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemCellStore(NewMemoryBackend())
	mc := model.MemCell{EventID: "e1", UserID: "u1", GroupID: "g1", Timestamp: time.Now(), Episode: "hello"}

	require.NoError(t, s.UpsertByID(ctx, mc))

	got, ok, err := s.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Episode)
}

func TestMemCellStore_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemCellStore(NewMemoryBackend())
	_, ok, err := s.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemCellStore_GetByFieldEq(t *testing.T) {
	ctx := context.Background()
	s := NewMemCellStore(NewMemoryBackend())
	require.NoError(t, s.UpsertByID(ctx, model.MemCell{EventID: "e1", Subject: "alice", Timestamp: time.Now()}))
	require.NoError(t, s.UpsertByID(ctx, model.MemCell{EventID: "e2", Subject: "bob", Timestamp: time.Now()}))

	got, err := s.GetByFieldEq(ctx, "subject", "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].EventID)
}

func TestMemCellStore_FindManyPaged_FiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	s := NewMemCellStore(NewMemoryBackend())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.UpsertByID(ctx, model.MemCell{
			EventID: "e" + string(rune('0'+i)), GroupID: "g1", Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.UpsertByID(ctx, model.MemCell{EventID: "other", GroupID: "g2", Timestamp: base}))

	page, total, err := s.FindManyPaged(ctx, model.Filter{GroupID: "g1"}, SortSpec{Field: "timestamp"}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)
}

func TestMemCellStore_SoftDelete_ExcludesFromSubsequentReads(t *testing.T) {
	ctx := context.Background()
	s := NewMemCellStore(NewMemoryBackend())
	require.NoError(t, s.UpsertByID(ctx, model.MemCell{EventID: "e1", UserID: "u1", Timestamp: time.Now()}))

	require.NoError(t, s.SoftDelete(ctx, []string{"e1"}))

	_, ok, err := s.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilter_ValidateRejectsDoubleAllSentinel(t *testing.T) {
	f := model.Filter{UserID: model.AllSentinel, GroupID: model.AllSentinel}
	assert.Error(t, f.Validate())
}

func TestFilter_AllSentinelSkipsMatching(t *testing.T) {
	ctx := context.Background()
	s := NewMemCellStore(NewMemoryBackend())
	require.NoError(t, s.UpsertByID(ctx, model.MemCell{EventID: "e1", UserID: "u1", Timestamp: time.Now()}))
	require.NoError(t, s.UpsertByID(ctx, model.MemCell{EventID: "e2", UserID: "u2", Timestamp: time.Now()}))

	page, total, err := s.FindManyPaged(ctx, model.Filter{UserID: model.AllSentinel}, SortSpec{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, page, 2)
}
