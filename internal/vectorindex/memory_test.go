package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/model"
)

func rec(id, userID, groupID string, ts time.Time) model.EpisodicMemoryRecord {
	return model.EpisodicMemoryRecord{ID: id, UserID: userID, GroupID: groupID, Timestamp: ts, MemorySubType: model.MemoryKindEpisode}
}

func TestMemoryIndex_InsertAndSearch_RanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	now := time.Now()

	require.NoError(t, idx.Insert(ctx, rec("a", "u1", "g1", now), []float32{1, 0, 0}))
	require.NoError(t, idx.Insert(ctx, rec("b", "u1", "g1", now), []float32{0, 1, 0}))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, model.Filter{}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMemoryIndex_Search_FiltersByUserAndGroup(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	now := time.Now()
	require.NoError(t, idx.Insert(ctx, rec("a", "u1", "g1", now), []float32{1, 0}))
	require.NoError(t, idx.Insert(ctx, rec("b", "u2", "g2", now), []float32{1, 0}))

	results, err := idx.Search(ctx, []float32{1, 0}, model.Filter{UserID: "u1"}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestMemoryIndex_Search_AllSentinelSkipsFiltering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	now := time.Now()
	require.NoError(t, idx.Insert(ctx, rec("a", "u1", "g1", now), []float32{1, 0}))
	require.NoError(t, idx.Insert(ctx, rec("b", "u2", "g2", now), []float32{1, 0}))

	results, err := idx.Search(ctx, []float32{1, 0}, model.Filter{UserID: model.AllSentinel}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryIndex_Search_RadiusExcludesDistantHits(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	now := time.Now()
	require.NoError(t, idx.Insert(ctx, rec("close", "u1", "g1", now), []float32{1, 0}))
	require.NoError(t, idx.Insert(ctx, rec("far", "u1", "g1", now), []float32{-1, 0}))

	radius := 0.1
	results, err := idx.Search(ctx, []float32{1, 0}, model.Filter{}, 10, &radius)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close", results[0].ID)
}

func TestMemoryIndex_Search_RejectsDoubleAllSentinel(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	_, err := idx.Search(ctx, []float32{1}, model.Filter{UserID: model.AllSentinel, GroupID: model.AllSentinel}, 10, nil)
	assert.Error(t, err)
}

func TestMemoryIndex_Delete_RemovesFromSubsequentSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	now := time.Now()
	require.NoError(t, idx.Insert(ctx, rec("a", "u1", "g1", now), []float32{1, 0}))

	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	results, err := idx.Search(ctx, []float32{1, 0}, model.Filter{}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryIndex_Search_RespectsK(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, idx.Insert(ctx, rec(id, "u1", "g1", now), []float32{1, 0}))
	}
	results, err := idx.Search(ctx, []float32{1, 0}, model.Filter{}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryIndex_Flush_NoOp(t *testing.T) {
	idx := NewMemoryIndex()
	assert.NoError(t, idx.Flush(context.Background()))
}
