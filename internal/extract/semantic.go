package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/embedding"
	"memoryd/internal/llm"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
)

// SemanticExtractor produces the 0+ SemanticMemory items the spec §4.5
// downstream step describes, embedding each item's content.
type SemanticExtractor struct {
	chat     llm.Client
	embedder embedding.Embedder
	log      obslog.Logger
}

// NewSemanticExtractor builds a SemanticExtractor.
func NewSemanticExtractor(chat llm.Client, embedder embedding.Embedder, log obslog.Logger) *SemanticExtractor {
	if log == nil {
		log = obslog.NopLogger{}
	}
	return &SemanticExtractor{chat: chat, embedder: embedder, log: log}
}

type semanticItem struct {
	Content   string `json:"content"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

// Extract asks the LLM to pull durable, datable facts out of mc's episode
// and embeds each one. A parse failure or an empty result both yield a nil
// slice, never an error — semantic memories are optional per spec §4.5.
func (s *SemanticExtractor) Extract(ctx context.Context, mc model.MemCell) []model.SemanticMemory {
	resp, err := s.chat.Complete(ctx, semanticSystemPrompt(), semanticUserPrompt(mc))
	if err != nil {
		s.log.Warn("semantic extraction call failed", map[string]any{"event_id": mc.EventID, "error": err.Error()})
		return nil
	}

	items, err := parseSemanticItems(resp)
	if err != nil {
		s.log.Warn("semantic extraction response unparseable", map[string]any{"event_id": mc.EventID, "error": err.Error()})
		return nil
	}
	if len(items) == 0 {
		return nil
	}

	contents := make([]string, len(items))
	for i, it := range items {
		contents[i] = it.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, contents, false)
	if err != nil {
		s.log.Warn("semantic memory embedding failed", map[string]any{"event_id": mc.EventID, "error": err.Error()})
		vectors = nil
	}

	out := make([]model.SemanticMemory, 0, len(items))
	for i, it := range items {
		sm := model.SemanticMemory{
			Content:         it.Content,
			SourceEpisodeID: mc.EventID,
			StartTime:       parseOptionalTime(it.StartTime),
			EndTime:         parseOptionalTime(it.EndTime),
		}
		if vectors != nil && i < len(vectors) {
			sm.Embedding = vectors[i]
		}
		out = append(out, sm)
	}
	return out
}

func parseOptionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

func parseSemanticItems(raw string) ([]semanticItem, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "[]") || strings.EqualFold(trimmed, "none") {
		return nil, nil
	}
	start := strings.IndexByte(trimmed, '[')
	end := strings.LastIndexByte(trimmed, ']')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in semantic extraction response")
	}
	var items []semanticItem
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("unmarshal semantic items: %w", err)
	}
	return items, nil
}

func semanticSystemPrompt() string {
	return "Extract durable, datable facts (preferences, relationships, plans, " +
		"recurring habits) from the episode below. Respond with a JSON array of " +
		"objects {\"content\": string, \"start_time\"?: RFC3339 string, \"end_time\"?: " +
		"RFC3339 string}. Respond with [] if there are none."
}

func semanticUserPrompt(mc model.MemCell) string {
	return mc.Episode
}

// atomicFactEmbedConcurrency returns cfg's configured bound, defaulting to
// 20 per spec §5.
func atomicFactEmbedConcurrency(cfg config.ConcurrencyConfig) int {
	if cfg.AtomicFactEmbedConcurrency > 0 {
		return cfg.AtomicFactEmbedConcurrency
	}
	return 20
}
