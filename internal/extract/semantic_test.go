package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/model"
	"memoryd/internal/obslog"
)

type fakeEmbedder struct {
	vecs [][]float32
	fail bool
}

func (f *fakeEmbedder) Name() string      { return "fake" }
func (f *fakeEmbedder) Dimension() int    { return 4 }
func (f *fakeEmbedder) Ping(context.Context) error { return nil }
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("embed down")
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		if i < len(f.vecs) {
			vecs[i] = f.vecs[i]
		} else {
			vecs[i] = []float32{1, 2, 3}
		}
	}
	return vecs, nil
}

func TestSemanticExtractor_ParsesAndEmbedsItems(t *testing.T) {
	chat := &fakeChat{responses: []string{`[{"content": "likes hiking"}, {"content": "moved to Tokyo", "start_time": "2026-01-01T00:00:00Z"}]`}}
	emb := &fakeEmbedder{vecs: [][]float32{{1, 1}, {2, 2}}}
	ex := NewSemanticExtractor(chat, emb, obslog.NopLogger{})

	mc := model.MemCell{EventID: "ev1", Episode: "some episode text"}
	items := ex.Extract(context.Background(), mc)
	require.Len(t, items, 2)
	assert.Equal(t, "likes hiking", items[0].Content)
	assert.Equal(t, []float32{1, 1}, items[0].Embedding)
	assert.Equal(t, "ev1", items[0].SourceEpisodeID)
	require.NotNil(t, items[1].StartTime)
}

func TestSemanticExtractor_EmptyArray_ReturnsNil(t *testing.T) {
	chat := &fakeChat{responses: []string{"[]"}}
	ex := NewSemanticExtractor(chat, &fakeEmbedder{}, obslog.NopLogger{})
	items := ex.Extract(context.Background(), model.MemCell{Episode: "x"})
	assert.Nil(t, items)
}

func TestSemanticExtractor_ChatFails_ReturnsNilNotError(t *testing.T) {
	chat := &fakeChat{errs: []error{errors.New("down")}}
	ex := NewSemanticExtractor(chat, &fakeEmbedder{}, obslog.NopLogger{})
	items := ex.Extract(context.Background(), model.MemCell{Episode: "x"})
	assert.Nil(t, items)
}

func TestSemanticExtractor_EmbeddingFails_StillReturnsItemsWithoutVectors(t *testing.T) {
	chat := &fakeChat{responses: []string{`[{"content": "likes hiking"}]`}}
	emb := &fakeEmbedder{fail: true}
	ex := NewSemanticExtractor(chat, emb, obslog.NopLogger{})
	items := ex.Extract(context.Background(), model.MemCell{EventID: "ev1", Episode: "x"})
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Embedding)
}
