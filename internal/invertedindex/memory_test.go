package invertedindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/model"
)

func TestMemoryIndex_UpsertAndMultiSearch_RanksByTermCount(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	now := time.Now()

	require.NoError(t, idx.Upsert(ctx, Doc{ID: "a", Text: "alice went to paris paris", UserID: "u1", Timestamp: now}))
	require.NoError(t, idx.Upsert(ctx, Doc{ID: "b", Text: "bob went to paris", UserID: "u1", Timestamp: now}))

	hits, err := idx.MultiSearch(ctx, []string{"paris"}, model.Filter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
}

func TestMemoryIndex_MultiSearch_FiltersByUser(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	now := time.Now()
	require.NoError(t, idx.Upsert(ctx, Doc{ID: "a", Text: "birthday party", UserID: "u1", Timestamp: now}))
	require.NoError(t, idx.Upsert(ctx, Doc{ID: "b", Text: "birthday cake", UserID: "u2", Timestamp: now}))

	hits, err := idx.MultiSearch(ctx, []string{"birthday"}, model.Filter{UserID: "u1"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestMemoryIndex_MultiSearch_MultipleTermsOred(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	now := time.Now()
	require.NoError(t, idx.Upsert(ctx, Doc{ID: "a", Text: "alice likes hiking", Timestamp: now}))
	require.NoError(t, idx.Upsert(ctx, Doc{ID: "b", Text: "bob likes swimming", Timestamp: now}))
	require.NoError(t, idx.Upsert(ctx, Doc{ID: "c", Text: "carol likes painting", Timestamp: now}))

	hits, err := idx.MultiSearch(ctx, []string{"hiking", "swimming"}, model.Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestMemoryIndex_MultiSearch_PaginatesWithFrom(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, idx.Upsert(ctx, Doc{ID: id, Text: "shared keyword", Timestamp: now}))
	}
	hits, err := idx.MultiSearch(ctx, []string{"keyword"}, model.Filter{}, 10, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestMemoryIndex_MultiSearch_EmptyTermsReturnsNothing(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	hits, err := idx.MultiSearch(ctx, []string{""}, model.Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_MultiSearch_RejectsDoubleAllSentinel(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	_, err := idx.MultiSearch(ctx, []string{"x"}, model.Filter{UserID: model.AllSentinel, GroupID: model.AllSentinel}, 10, 0)
	assert.Error(t, err)
}

func TestMemoryIndex_Delete_RemovesFromSubsequentSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, Doc{ID: "a", Text: "findable", Timestamp: time.Now()}))
	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	hits, err := idx.MultiSearch(ctx, []string{"findable"}, model.Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
