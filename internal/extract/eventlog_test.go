package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/config"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
)

func TestEventLogExtractor_ProducesFactsAndEmbeddings(t *testing.T) {
	chat := &fakeChat{responses: []string{`["fact one", "fact two", "fact three"]`}}
	emb := &fakeEmbedder{}
	ex := NewEventLogExtractor(chat, emb, config.ConcurrencyConfig{AtomicFactEmbedConcurrency: 2}, obslog.NopLogger{})

	log := ex.Extract(context.Background(), model.MemCell{EventID: "ev1", Episode: "x"})
	require.NotNil(t, log)
	assert.True(t, log.Valid())
	assert.Len(t, log.AtomicFact, 3)
	assert.Len(t, log.FactEmbeddings, 3)
	for _, v := range log.FactEmbeddings {
		assert.NotEmpty(t, v)
	}
}

func TestEventLogExtractor_NoFacts_ReturnsNil(t *testing.T) {
	chat := &fakeChat{responses: []string{"[]"}}
	ex := NewEventLogExtractor(chat, &fakeEmbedder{}, config.ConcurrencyConfig{}, obslog.NopLogger{})
	log := ex.Extract(context.Background(), model.MemCell{Episode: "x"})
	assert.Nil(t, log)
}

func TestEventLogExtractor_EmbeddingFailure_ReturnsNilRatherThanInvalidLog(t *testing.T) {
	chat := &fakeChat{responses: []string{`["fact one"]`}}
	emb := &fakeEmbedder{fail: true}
	ex := NewEventLogExtractor(chat, emb, config.ConcurrencyConfig{}, obslog.NopLogger{})
	log := ex.Extract(context.Background(), model.MemCell{Episode: "x"})
	assert.Nil(t, log)
}

func TestEventLogExtractor_ChatFails_ReturnsNil(t *testing.T) {
	chat := &fakeChat{errs: []error{errors.New("down")}}
	ex := NewEventLogExtractor(chat, &fakeEmbedder{}, config.ConcurrencyConfig{}, obslog.NopLogger{})
	log := ex.Extract(context.Background(), model.MemCell{Episode: "x"})
	assert.Nil(t, log)
}
