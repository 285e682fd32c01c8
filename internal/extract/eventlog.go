package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"memoryd/internal/config"
	"memoryd/internal/embedding"
	"memoryd/internal/llm"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
)

// EventLogExtractor produces the 0-or-1 EventLog the spec §4.5 downstream
// step describes, embedding each atomic fact independently and concurrently
// (§5) up to a configured bound.
type EventLogExtractor struct {
	chat        llm.Client
	embedder    embedding.Embedder
	log         obslog.Logger
	concurrency int
}

// NewEventLogExtractor builds an EventLogExtractor.
func NewEventLogExtractor(chat llm.Client, embedder embedding.Embedder, cfg config.ConcurrencyConfig, log obslog.Logger) *EventLogExtractor {
	if log == nil {
		log = obslog.NopLogger{}
	}
	return &EventLogExtractor{chat: chat, embedder: embedder, log: log, concurrency: atomicFactEmbedConcurrency(cfg)}
}

// Extract asks the LLM for the episode's atomic facts and embeds each one
// independently. Returns nil if no facts were found or the call/parse
// failed — event logs are optional per spec §4.5.
func (e *EventLogExtractor) Extract(ctx context.Context, mc model.MemCell) *model.EventLog {
	resp, err := e.chat.Complete(ctx, eventLogSystemPrompt(), eventLogUserPrompt(mc))
	if err != nil {
		e.log.Warn("event log extraction call failed", map[string]any{"event_id": mc.EventID, "error": err.Error()})
		return nil
	}

	facts, err := parseAtomicFacts(resp)
	if err != nil {
		e.log.Warn("event log extraction response unparseable", map[string]any{"event_id": mc.EventID, "error": err.Error()})
		return nil
	}
	if len(facts) == 0 {
		return nil
	}

	embeddings := make([][]float32, len(facts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, fact := range facts {
		i, fact := i, fact
		g.Go(func() error {
			vecs, err := e.embedder.EmbedBatch(gctx, []string{fact}, false)
			if err != nil {
				return fmt.Errorf("embed atomic fact %d: %w", i, err)
			}
			if len(vecs) > 0 {
				embeddings[i] = vecs[0]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.log.Warn("atomic fact embedding failed", map[string]any{"event_id": mc.EventID, "error": err.Error()})
		return nil
	}

	return &model.EventLog{
		Time:           mc.Timestamp,
		AtomicFact:     facts,
		FactEmbeddings: embeddings,
	}
}

func parseAtomicFacts(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "[]") || strings.EqualFold(trimmed, "none") {
		return nil, nil
	}
	start := strings.IndexByte(trimmed, '[')
	end := strings.LastIndexByte(trimmed, ']')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in event log extraction response")
	}
	var facts []string
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &facts); err != nil {
		return nil, fmt.Errorf("unmarshal atomic facts: %w", err)
	}
	return facts, nil
}

func eventLogSystemPrompt() string {
	return "Extract the atomic, independently-verifiable facts that occurred in " +
		"the episode below (one short factual sentence per fact). Respond with a " +
		"JSON array of strings. Respond with [] if there are none."
}

func eventLogUserPrompt(mc model.MemCell) string {
	return mc.Episode
}
