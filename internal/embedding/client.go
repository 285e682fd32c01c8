package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"memoryd/internal/config"
)

// Client wraps the openai-go SDK for the embedding provider contract
// (component A). It is also used against OpenAI-compatible embedding
// servers (vLLM, llama.cpp, TEI) by pointing BaseURL at them.
type Client struct {
	sdk *openai.Client
	cfg config.EmbeddingConfig
}

// NewClient builds an embedding client from the given config section.
func NewClient(cfg config.EmbeddingConfig) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	opts = append(opts, option.WithRequestTimeout(timeout), option.WithMaxRetries(cfg.MaxRetries))
	sdk := openai.NewClient(opts...)
	return &Client{sdk: &sdk, cfg: cfg}
}

// EmbedBatch embeds texts in a single request, returning one vector per
// input in the same order. If the configured isQuery instruction prefix is
// set and isQuery is true, it is prepended to every input per spec §4.1's
// asymmetric-embedding support.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := texts
	if isQuery && c.cfg.DefaultInstruction != "" {
		inputs = make([]string, len(texts))
		for i, t := range texts {
			inputs[i] = c.cfg.DefaultInstruction + t
		}
	}

	params := openai.EmbeddingNewParams{
		Model: c.cfg.Model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if c.cfg.SupportsDimensionsParam && c.cfg.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(c.cfg.Dimensions))
	}

	resp, err := c.sdk.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embeddings.New: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("unexpected embedding count: got %d, want %d", len(resp.Data), len(inputs))
	}

	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range for %d inputs", idx, len(out))
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[idx] = vec
	}

	if !c.cfg.SupportsDimensionsParam && c.cfg.Dimensions > 0 {
		for i, v := range out {
			out[i] = truncateAndRenormalize(v, c.cfg.Dimensions)
		}
	}
	return out, nil
}

// truncateAndRenormalize implements client-side Matryoshka-style truncation
// for providers that don't accept a `dimensions` request field: cut the
// vector to dim and re-normalize to unit length.
func truncateAndRenormalize(v []float32, dim int) []float32 {
	if dim <= 0 || dim >= len(v) {
		return v
	}
	cut := make([]float32, dim)
	copy(cut, v[:dim])
	var sum float64
	for _, x := range cut {
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		inv := float32(1.0 / math.Sqrt(sum))
		for i := range cut {
			cut[i] *= inv
		}
	}
	return cut
}

// CheckReachability verifies the embedding endpoint is reachable by sending
// a small test request.
func (c *Client) CheckReachability(ctx context.Context) error {
	_, err := c.EmbedBatch(ctx, []string{"ping"}, false)
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}
