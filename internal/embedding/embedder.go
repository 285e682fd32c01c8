package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"memoryd/internal/config"
)

// Embedder is the provider-agnostic embedding interface used by the ingest
// coordinator (component J) and retrieval coordinator (component L). The
// isQuery flag selects the query-side instruction when the embedding model
// is asymmetric (see EmbeddingConfig.DefaultInstruction).
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error)
	Name() string
	Dimension() int
	Ping(ctx context.Context) error
}

// clientEmbedder adapts the openai-go-backed Client to the Embedder
// interface.
type clientEmbedder struct {
	client *Client
	cfg    config.EmbeddingConfig
}

// NewProvider constructs an Embedder backed by the configured embedding
// endpoint (OpenAI or any OpenAI-compatible server).
func NewProvider(cfg config.EmbeddingConfig) Embedder {
	return &clientEmbedder{client: NewClient(cfg), cfg: cfg}
}

func (c *clientEmbedder) Name() string      { return c.cfg.Model }
func (c *clientEmbedder) Dimension() int    { return c.cfg.Dimensions }
func (c *clientEmbedder) Ping(ctx context.Context) error {
	return c.client.CheckReachability(ctx)
}
func (c *clientEmbedder) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	return c.client.EmbedBatch(ctx, texts, isQuery)
}

// deterministicEmbedder is a lightweight, deterministic embedder suitable
// for tests and offline fixtures. It hashes byte 3-grams into a fixed-size
// vector and optionally L2-normalizes the result.
type deterministicEmbedder struct {
	dim       int
	normalize bool
	seed      uint64
}

// NewDeterministic constructs a deterministic embedder with the given
// dimension. If normalize is true, vectors are L2-normalized. Seed perturbs
// the hashing so distinct embedder instances don't collide on the same text.
func NewDeterministic(dim int, normalize bool, seed uint64) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministicEmbedder{dim: dim, normalize: normalize, seed: seed}
}

func (d *deterministicEmbedder) Name() string   { return "deterministic" }
func (d *deterministicEmbedder) Dimension() int { return d.dim }
func (d *deterministicEmbedder) Ping(_ context.Context) error { return nil }

func (d *deterministicEmbedder) EmbedBatch(_ context.Context, texts []string, isQuery bool) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		s := t
		if isQuery {
			s = "query:" + t
		}
		out[i] = d.embedOne(s)
	}
	return out, nil
}

func (d *deterministicEmbedder) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) == 0 {
		return v
	}
	if len(b) < 3 {
		addGram(d.seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(d.seed, b[i:i+3], v)
		}
	}
	if d.normalize {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			inv := float32(1.0 / math.Sqrt(sum))
			for i := range v {
				v[i] *= inv
			}
		}
	}
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
