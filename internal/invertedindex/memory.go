package invertedindex

import (
	"context"
	"sort"
	"strings"
	"sync"

	"memoryd/internal/model"
)

type memoryDoc struct {
	doc Doc
}

// memoryIndex is the in-memory full-text-search fallback, grounded on the
// teacher's term-count-scored memory_search.go.
type memoryIndex struct {
	mu   sync.RWMutex
	docs map[string]memoryDoc
}

// NewMemoryIndex builds an empty in-memory inverted index.
func NewMemoryIndex() Index {
	return &memoryIndex{docs: make(map[string]memoryDoc)}
}

func (m *memoryIndex) Upsert(_ context.Context, doc Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = memoryDoc{doc: doc}
	return nil
}

func (m *memoryIndex) MultiSearch(_ context.Context, terms []string, filter model.Filter, size, from int) ([]Hit, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 10
	}
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []Hit
	for _, md := range m.docs {
		d := md.doc
		if !filter.Matches(d.UserID, d.GroupID, d.Timestamp) {
			continue
		}
		lowerText := strings.ToLower(d.Text)
		var score float64
		for _, t := range lowered {
			if c := strings.Count(lowerText, t); c > 0 {
				score += float64(c)
			}
		}
		if score == 0 {
			continue
		}
		hits = append(hits, Hit{ID: d.ID, Score: score, Source: d.Source, Snippet: snippet(d.Text)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if from >= len(hits) {
		return nil, nil
	}
	hits = hits[from:]
	if len(hits) > size {
		hits = hits[:size]
	}
	return hits, nil
}

func snippet(text string) string {
	if len(text) > 120 {
		return text[:120]
	}
	return text
}

func (m *memoryIndex) Refresh(context.Context) error { return nil }

func (m *memoryIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}
