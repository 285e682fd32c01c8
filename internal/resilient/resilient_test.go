package resilient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/llm"
	"memoryd/internal/obslog"
	"memoryd/internal/rerank"
)

type fakeEmbedder struct {
	name string
	fail bool
	vecs [][]float32
}

func (f *fakeEmbedder) Name() string   { return f.name }
func (f *fakeEmbedder) Dimension() int { return 4 }
func (f *fakeEmbedder) Ping(context.Context) error {
	if f.fail {
		return errors.New("boom")
	}
	return nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	if f.fail {
		return nil, errors.New(f.name + " down")
	}
	return f.vecs, nil
}

func TestEmbedder_PrimarySuccess_NoFailover(t *testing.T) {
	primary := &fakeEmbedder{name: "primary", vecs: [][]float32{{1, 2, 3, 4}}}
	fallback := &fakeEmbedder{name: "fallback", fail: true}
	e := NewEmbedder(primary, fallback, 3, obslog.NopLogger{})

	vecs, err := e.EmbedBatch(context.Background(), []string{"x"}, false)
	require.NoError(t, err)
	assert.Equal(t, primary.vecs, vecs)
	assert.Equal(t, int64(0), e.FailureCount())
}

func TestEmbedder_PrimaryFails_FallsBackAndCountsFailure(t *testing.T) {
	primary := &fakeEmbedder{name: "primary", fail: true}
	fallback := &fakeEmbedder{name: "fallback", vecs: [][]float32{{5, 6, 7, 8}}}
	e := NewEmbedder(primary, fallback, 3, obslog.NopLogger{})

	vecs, err := e.EmbedBatch(context.Background(), []string{"x"}, false)
	require.NoError(t, err)
	assert.Equal(t, fallback.vecs, vecs)
	assert.Equal(t, int64(1), e.FailureCount())
}

func TestEmbedder_PrimarySuccessAfterFailure_ResetsCounter(t *testing.T) {
	primary := &fakeEmbedder{name: "primary", fail: true, vecs: [][]float32{{1}}}
	fallback := &fakeEmbedder{name: "fallback", vecs: [][]float32{{2}}}
	e := NewEmbedder(primary, fallback, 3, obslog.NopLogger{})

	_, err := e.EmbedBatch(context.Background(), []string{"x"}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.FailureCount())

	primary.fail = false
	_, err = e.EmbedBatch(context.Background(), []string{"x"}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.FailureCount())
}

func TestEmbedder_BothFail_ReturnsCombinedError(t *testing.T) {
	primary := &fakeEmbedder{name: "primary", fail: true}
	fallback := &fakeEmbedder{name: "fallback", fail: true}
	e := NewEmbedder(primary, fallback, 3, obslog.NopLogger{})

	_, err := e.EmbedBatch(context.Background(), []string{"x"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary failed")
	assert.Contains(t, err.Error(), "fallback failed")
}

func TestEmbedder_NoFallbackConfigured_SurfacesPrimaryError(t *testing.T) {
	primary := &fakeEmbedder{name: "primary", fail: true}
	e := NewEmbedder(primary, nil, 3, obslog.NopLogger{})

	_, err := e.EmbedBatch(context.Background(), []string{"x"}, false)
	require.Error(t, err)
	assert.Equal(t, int64(1), e.FailureCount())
}

type fakeReranker struct {
	name    string
	fail    bool
	results []rerank.Result
}

func (f *fakeReranker) Name() string { return f.name }
func (f *fakeReranker) Rerank(ctx context.Context, query string, passages []string, opts rerank.Options) ([]rerank.Result, error) {
	if f.fail {
		return nil, errors.New(f.name + " down")
	}
	return f.results, nil
}

func TestReranker_PrimaryFails_FallsBack(t *testing.T) {
	primary := &fakeReranker{name: "primary", fail: true}
	fallback := &fakeReranker{name: "fallback", results: []rerank.Result{{Index: 0, Score: 0.9}}}
	r := NewReranker(primary, fallback, 3, obslog.NopLogger{})

	results, err := r.Rerank(context.Background(), "q", []string{"a"}, rerank.Options{})
	require.NoError(t, err)
	assert.Equal(t, fallback.results, results)
	assert.Equal(t, int64(1), r.FailureCount())
}

type fakeLLM struct {
	name string
	fail bool
	text string
}

func (f *fakeLLM) Name() string { return f.name }
func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.fail {
		return "", errors.New(f.name + " down")
	}
	return f.text, nil
}

func TestLLM_PrimaryFails_FallsBackAndCountsFailure(t *testing.T) {
	primary := &fakeLLM{name: "primary", fail: true}
	fallback := &fakeLLM{name: "fallback", text: "fallback reply"}
	c := NewLLM(primary, fallback, 3, obslog.NopLogger{})

	out, err := c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "fallback reply", out)
	assert.Equal(t, int64(1), c.FailureCount())
}

func TestLLM_NoFallbackConfigured_SurfacesPrimaryError(t *testing.T) {
	primary := &fakeLLM{name: "primary", fail: true}
	c := NewLLM(primary, nil, 3, obslog.NopLogger{})

	_, err := c.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary failed")
}

var _ llm.Client = (*fakeLLM)(nil)
