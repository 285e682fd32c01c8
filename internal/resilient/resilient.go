// Package resilient implements the primary+fallback provider wrapper
// (component C) shared by the embedding and rerank clients.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"memoryd/internal/embedding"
	"memoryd/internal/llm"
	"memoryd/internal/obslog"
	"memoryd/internal/rerank"
)

// FailureCounter is the resilient wrapper's warning threshold counter.
// Spec §9 calls the Python original's counter "racy, advisory, and
// acceptable to remain so" — this is the same advisory counter, just made
// safe for concurrent access with an atomic rather than a lock, since
// correctness never depends on its exact value.
type FailureCounter struct {
	count int64
}

func (f *FailureCounter) inc() int64  { return atomic.AddInt64(&f.count, 1) }
func (f *FailureCounter) reset()      { atomic.StoreInt64(&f.count, 0) }
func (f *FailureCounter) Load() int64 { return atomic.LoadInt64(&f.count) }

// call runs primary, falling back to fallback (if non-nil) on any error and
// raising a combined error if both fail. max is the warning-threshold log
// level switch, not a circuit breaker: primary is always attempted first.
func call[T any](ctx context.Context, counter *FailureCounter, max int, log obslog.Logger, name string, primary func(context.Context) (T, error), fallback func(context.Context) (T, error)) (T, error) {
	res, err := primary(ctx)
	if err == nil {
		counter.reset()
		return res, nil
	}
	n := counter.inc()
	fields := map[string]any{"provider": name, "primary_failure_count": n, "error": err.Error()}
	if int(n) >= max {
		log.Error("primary provider failed, exceeding warning threshold", fields)
	} else {
		log.Warn("primary provider failed", fields)
	}
	if fallback == nil {
		var zero T
		return zero, fmt.Errorf("%s: primary failed: %w", name, err)
	}
	fres, ferr := fallback(ctx)
	if ferr != nil {
		var zero T
		return zero, errors.Join(fmt.Errorf("%s: primary failed: %w", name, err), fmt.Errorf("%s: fallback failed: %w", name, ferr))
	}
	return fres, nil
}

// Embedder wraps a primary and optional fallback Embedder. Fallback is
// disabled (nil) when its endpoint/key is blank, per §4.2.
type Embedder struct {
	primary     embedding.Embedder
	fallback    embedding.Embedder
	maxFailures int
	counter     FailureCounter
	log         obslog.Logger
}

// NewEmbedder builds a resilient Embedder. Pass a nil fallback to disable
// failover.
func NewEmbedder(primary, fallback embedding.Embedder, maxFailures int, log obslog.Logger) *Embedder {
	if log == nil {
		log = obslog.NopLogger{}
	}
	return &Embedder{primary: primary, fallback: fallback, maxFailures: maxFailures, log: log}
}

func (e *Embedder) Name() string   { return e.primary.Name() }
func (e *Embedder) Dimension() int { return e.primary.Dimension() }

func (e *Embedder) Ping(ctx context.Context) error {
	_, err := call(ctx, &e.counter, e.maxFailures, e.log, "embed.ping",
		func(ctx context.Context) (struct{}, error) { return struct{}{}, e.primary.Ping(ctx) },
		e.fallbackPing(),
	)
	return err
}

func (e *Embedder) fallbackPing() func(context.Context) (struct{}, error) {
	if e.fallback == nil {
		return nil
	}
	return func(ctx context.Context) (struct{}, error) { return struct{}{}, e.fallback.Ping(ctx) }
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	var fallbackFn func(context.Context) ([][]float32, error)
	if e.fallback != nil {
		fallbackFn = func(ctx context.Context) ([][]float32, error) { return e.fallback.EmbedBatch(ctx, texts, isQuery) }
	}
	return call(ctx, &e.counter, e.maxFailures, e.log, "embed",
		func(ctx context.Context) ([][]float32, error) { return e.primary.EmbedBatch(ctx, texts, isQuery) },
		fallbackFn,
	)
}

// FailureCount exposes the advisory primary-failure counter, e.g. for P8.
func (e *Embedder) FailureCount() int64 { return e.counter.Load() }

// Reranker wraps a primary and optional fallback Reranker.
type Reranker struct {
	primary     rerank.Reranker
	fallback    rerank.Reranker
	maxFailures int
	counter     FailureCounter
	log         obslog.Logger
}

// NewReranker builds a resilient Reranker. Pass a nil fallback to disable
// failover.
func NewReranker(primary, fallback rerank.Reranker, maxFailures int, log obslog.Logger) *Reranker {
	if log == nil {
		log = obslog.NopLogger{}
	}
	return &Reranker{primary: primary, fallback: fallback, maxFailures: maxFailures, log: log}
}

func (r *Reranker) Name() string { return r.primary.Name() }

func (r *Reranker) Rerank(ctx context.Context, query string, passages []string, opts rerank.Options) ([]rerank.Result, error) {
	var fallbackFn func(context.Context) ([]rerank.Result, error)
	if r.fallback != nil {
		fallbackFn = func(ctx context.Context) ([]rerank.Result, error) { return r.fallback.Rerank(ctx, query, passages, opts) }
	}
	return call(ctx, &r.counter, r.maxFailures, r.log, "rerank",
		func(ctx context.Context) ([]rerank.Result, error) { return r.primary.Rerank(ctx, query, passages, opts) },
		fallbackFn,
	)
}

// FailureCount exposes the advisory primary-failure counter.
func (r *Reranker) FailureCount() int64 { return r.counter.Load() }

// LLM wraps a primary and optional fallback chat-completion Client, used by
// the MemCell boundary extractor (H) and the memory extractors (I).
type LLM struct {
	primary     llm.Client
	fallback    llm.Client
	maxFailures int
	counter     FailureCounter
	log         obslog.Logger
}

// NewLLM builds a resilient LLM. Pass a nil fallback to disable failover.
func NewLLM(primary, fallback llm.Client, maxFailures int, log obslog.Logger) *LLM {
	if log == nil {
		log = obslog.NopLogger{}
	}
	return &LLM{primary: primary, fallback: fallback, maxFailures: maxFailures, log: log}
}

func (c *LLM) Name() string { return c.primary.Name() }

func (c *LLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var fallbackFn func(context.Context) (string, error)
	if c.fallback != nil {
		fallbackFn = func(ctx context.Context) (string, error) { return c.fallback.Complete(ctx, systemPrompt, userPrompt) }
	}
	return call(ctx, &c.counter, c.maxFailures, c.log, "llm",
		func(ctx context.Context) (string, error) { return c.primary.Complete(ctx, systemPrompt, userPrompt) },
		fallbackFn,
	)
}

// FailureCount exposes the advisory primary-failure counter.
func (c *LLM) FailureCount() int64 { return c.counter.Load() }
