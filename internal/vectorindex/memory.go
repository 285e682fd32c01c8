package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"memoryd/internal/model"
)

type memoryPoint struct {
	vector  []float32
	scalars map[string]string
	deleted bool
}

// memoryIndex is the in-memory vector index fallback, grounded on the
// teacher's cosine-similarity in-memory vector store.
type memoryIndex struct {
	mu     sync.RWMutex
	points map[string]memoryPoint
}

// NewMemoryIndex builds an empty in-memory vector index.
func NewMemoryIndex() Index {
	return &memoryIndex{points: make(map[string]memoryPoint)}
}

func (m *memoryIndex) Insert(_ context.Context, rec model.EpisodicMemoryRecord, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.points[rec.ID] = memoryPoint{vector: cp, scalars: scalarsOf(rec)}
	return nil
}

func (m *memoryIndex) Search(_ context.Context, queryVector []float32, filter model.Filter, k int, radius *float64) ([]Result, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		k = 10
	}
	qnorm := norm(queryVector)
	out := make([]Result, 0, len(m.points))
	for id, p := range m.points {
		if p.deleted || !matchesScalars(p.scalars, filter) {
			continue
		}
		score := cosine(queryVector, p.vector, qnorm)
		if radius != nil && (1-score) > *radius {
			continue
		}
		out = append(out, Result{ID: id, Score: score, Scalars: copyScalars(p.scalars)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memoryIndex) Flush(context.Context) error { return nil }

func (m *memoryIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.points, id)
	}
	return nil
}

func matchesScalars(scalars map[string]string, filter model.Filter) bool {
	if filter.UserID != "" && filter.UserID != model.AllSentinel && scalars["user_id"] != filter.UserID {
		return false
	}
	if filter.GroupID != "" && filter.GroupID != model.AllSentinel && scalars["group_id"] != filter.GroupID {
		return false
	}
	if filter.StartTime != nil || filter.EndTime != nil {
		ts, err := timeFromScalar(scalars["timestamp"])
		if err != nil {
			return false
		}
		if !filter.MatchesTimestamp(ts) {
			return false
		}
	}
	return true
}

func timeFromScalar(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05.000000000Z07:00", s)
}

func copyScalars(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func norm(a []float32) float64 {
	var s float64
	for _, x := range a {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func cosine(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = norm(a)
	}
	bnorm := norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	return dot(a, b) / (anorm * bnorm)
}
