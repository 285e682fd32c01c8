// Package rerank implements the rerank provider contract (component B):
// scoring (query, passage) pairs and returning them sorted by relevance.
//
// There is no official Go SDK for the llama.cpp/Cohere-style rerank wire
// protocol the teacher's own rerank.go hand-rolls against — this client
// follows that same hand-rolled-HTTP shape rather than inventing a
// dependency that doesn't exist in the ecosystem.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"memoryd/internal/config"
	"memoryd/internal/obslog"
)

// Result is one passage's relevance score, index referring to its position
// in the input passages slice.
type Result struct {
	Index int
	Score float64
}

// Options tunes a single Rerank call.
type Options struct {
	Instruction string
	TopK        int
}

// Reranker scores (query, passage) pairs and returns them sorted by score
// descending.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string, opts Options) ([]Result, error)
	Name() string
}

// sentinelLowScore is assigned to passages in a batch that fails after all
// retries, so they sink to the bottom of the ranking instead of losing
// their position entirely (a true +Inf/NaN would break stable sort).
const sentinelLowScore = -1e9

// wireFormat isolates the request/response shape of one reranker backend.
type wireFormat interface {
	buildRequest(model, query string, passages []string, instruction string) (io.Reader, error)
	parseResponse(body []byte) ([]Result, error)
}

// Client is an HTTP rerank provider. Passages are split into batches and
// submitted concurrently under a semaphore; each batch retries
// independently with exponential backoff.
type Client struct {
	cfg         config.RerankConfig
	wire        wireFormat
	httpClient  *http.Client
	concurrency int64
	log         obslog.Logger
	metrics     obslog.Metrics
}

// NewClient builds a rerank client for cfg.WireFormat ("openai" or "qwen").
// concurrency bounds how many batches may be in flight at once
// (ConcurrencyConfig.RerankBatchConcurrency). metrics may be nil: fallback
// counts are then dropped rather than recorded.
func NewClient(cfg config.RerankConfig, concurrency int, log obslog.Logger, metrics obslog.Metrics) *Client {
	var wire wireFormat
	switch cfg.WireFormat {
	case "qwen":
		wire = qwenWireFormat{}
	default:
		wire = openAIWireFormat{}
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = obslog.NopLogger{}
	}
	if metrics == nil {
		metrics = obslog.NoopMetrics{}
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:         cfg,
		wire:        wire,
		httpClient:  &http.Client{Timeout: timeout},
		concurrency: int64(concurrency),
		log:         log,
		metrics:     metrics,
	}
}

func (c *Client) Name() string { return c.cfg.Model }

// Rerank splits passages into cfg.BatchSize-sized batches, scores each
// concurrently, and returns results sorted by score descending. TopK, if
// set, truncates the output.
func (c *Client) Rerank(ctx context.Context, query string, passages []string, opts Options) ([]Result, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	results := make([]Result, len(passages))
	sem := semaphore.NewWeighted(c.concurrency)
	errCh := make(chan error, (len(passages)+batchSize-1)/batchSize)
	var pending int

	for start := 0; start < len(passages); start += batchSize {
		end := start + batchSize
		if end > len(passages) {
			end = len(passages)
		}
		batch := passages[start:end]
		offset := start
		pending++
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
		go func() {
			defer sem.Release(1)
			scores, err := c.rerankBatchWithRetry(ctx, query, batch, opts.Instruction)
			if err != nil {
				c.log.Warn("rerank batch failed after retries, using sentinel score", map[string]any{
					"offset": offset, "batch_size": len(batch), "error": err.Error(),
				})
				c.metrics.IncCounter("rerank_fallback_total", map[string]string{"model": c.cfg.Model})
				for i := range batch {
					results[offset+i] = Result{Index: offset + i, Score: sentinelLowScore}
				}
				errCh <- nil
				return
			}
			for i, s := range scores {
				results[offset+i] = Result{Index: offset + i, Score: s}
			}
			errCh <- nil
		}()
	}
	for i := 0; i < pending; i++ {
		<-errCh
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if opts.TopK > 0 && opts.TopK < len(results) {
		results = results[:opts.TopK]
	}
	return results, nil
}

func (c *Client) rerankBatchWithRetry(ctx context.Context, query string, batch []string, instruction string) ([]float64, error) {
	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		scores, err := c.callOnce(ctx, query, batch, instruction)
		if err == nil {
			return scores, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) callOnce(ctx context.Context, query string, batch []string, instruction string) ([]float64, error) {
	body, err := c.wire.buildRequest(c.cfg.Model, query, batch, instruction)
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("rerank failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	results, err := c.wire.parseResponse(respBody)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(batch))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(scores) {
			continue
		}
		scores[r.Index] = r.Score
	}
	return scores, nil
}

// openAIWireFormat is the llama.cpp/Cohere-style {model, query, documents}
// -> {results: [{index, relevance_score}]} shape, grounded on the teacher's
// own rerank.go.
type openAIWireFormat struct{}

type openAIRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type openAIRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (openAIWireFormat) buildRequest(model, query string, passages []string, _ string) (io.Reader, error) {
	payload, err := json.Marshal(openAIRerankRequest{Model: model, Query: query, TopN: len(passages), Documents: passages})
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(payload), nil
}

func (openAIWireFormat) parseResponse(body []byte) ([]Result, error) {
	var r openAIRerankResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	out := make([]Result, len(r.Results))
	for i, res := range r.Results {
		out[i] = Result{Index: res.Index, Score: res.RelevanceScore}
	}
	return out, nil
}

// qwenWireFormat is the Qwen-reranker "system+instruct+query/document"
// template: a single system instruction plus one query/document pair per
// passage, scored in one request. The response carries a plain scores
// array aligned with the input document order (no explicit index field),
// which this adapter converts into indexed Results.
type qwenWireFormat struct{}

type qwenRerankRequest struct {
	Model     string   `json:"model"`
	Instruct  string   `json:"instruct"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type qwenRerankResponse struct {
	Scores []float64 `json:"scores"`
}

const qwenDefaultInstruct = "Given a query and a document, judge whether the document answers the query."

func (qwenWireFormat) buildRequest(model, query string, passages []string, instruction string) (io.Reader, error) {
	if instruction == "" {
		instruction = qwenDefaultInstruct
	}
	payload, err := json.Marshal(qwenRerankRequest{Model: model, Instruct: instruction, Query: query, Documents: passages})
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(payload), nil
}

func (qwenWireFormat) parseResponse(body []byte) ([]Result, error) {
	var r qwenRerankResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	out := make([]Result, len(r.Scores))
	for i, s := range r.Scores {
		out[i] = Result{Index: i, Score: s}
	}
	return out, nil
}
