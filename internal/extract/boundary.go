// Package extract implements the MemCell boundary extractor (component H)
// and the downstream semantic/event-log memory extractors (component I).
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"memoryd/internal/config"
	"memoryd/internal/llm"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
)

// DecisionKind is the three-way outcome of one boundary-detection call.
type DecisionKind int

const (
	// DecisionAccumulate means no boundary yet; keep accumulating the window.
	DecisionAccumulate DecisionKind = iota
	// DecisionEmit means a boundary was found; MemCell is populated.
	DecisionEmit
	// DecisionWait means the evidence was inconclusive; hold the window.
	DecisionWait
)

// StatusResult carries the should_wait flag spec §4.5 attaches to every
// decision.
type StatusResult struct {
	ShouldWait bool
}

// Decision is the MemCell extractor's output: exactly one of
// Emit(MemCell)/Accumulate()/Wait().
type Decision struct {
	Kind   DecisionKind
	MemCell *model.MemCell
	Status StatusResult
}

// boundaryResponse is the structured JSON the boundary-detection prompt
// asks the LLM to return. A blank Boundary (the no-boundary token) means
// "no boundary found in this window."
type boundaryResponse struct {
	Boundary bool   `json:"boundary"`
	Index    int    `json:"index"`
	Summary  string `json:"summary"`
	Wait     bool   `json:"wait"`
}

// BoundaryDetector implements component H over a chat-completion Client.
type BoundaryDetector struct {
	chat       llm.Client
	log        obslog.Logger
	metrics    obslog.Metrics
	maxRetries int
	maskAbove  int
}

// NewBoundaryDetector builds a BoundaryDetector. cfg tunes the
// smart_mask_flag threshold and the internal retry budget (spec §4.5).
// metrics may be nil: retry counts are then dropped rather than recorded.
func NewBoundaryDetector(chat llm.Client, cfg config.WindowConfig, log obslog.Logger, metrics obslog.Metrics) *BoundaryDetector {
	if log == nil {
		log = obslog.NopLogger{}
	}
	if metrics == nil {
		metrics = obslog.NoopMetrics{}
	}
	maxRetries := cfg.BoundaryMaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	maskAbove := cfg.SmartMaskThreshold
	if maskAbove <= 0 {
		maskAbove = 5
	}
	return &BoundaryDetector{chat: chat, log: log, metrics: metrics, maxRetries: maxRetries, maskAbove: maskAbove}
}

// Decide runs the decision procedure of spec §4.5 over history++new.
func (b *BoundaryDetector) Decide(ctx context.Context, history, new []model.RawMessage, participants []string, groupID string) Decision {
	window := append(append([]model.RawMessage{}, history...), new...)
	if len(window) == 0 {
		return Decision{Kind: DecisionWait, Status: StatusResult{ShouldWait: true}}
	}

	smartMask := len(window) > b.maskAbove

	var lastErr error
	var consecutiveParseFailures int
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		resp, err := b.chat.Complete(ctx, boundarySystemPrompt(smartMask), boundaryUserPrompt(window, b.maskAbove))
		if err != nil {
			lastErr = err
			b.log.Warn("boundary detection call failed, retrying", map[string]any{"group_id": groupID, "attempt": attempt, "error": err.Error()})
			b.metrics.IncCounter("boundary_detection_retry_total", map[string]string{"group_id": groupID, "reason": "call_error"})
			continue
		}

		parsed, perr := parseBoundaryResponse(resp)
		if perr != nil {
			consecutiveParseFailures++
			lastErr = perr
			b.log.Warn("boundary detection response unparseable", map[string]any{"group_id": groupID, "attempt": attempt, "error": perr.Error()})
			b.metrics.IncCounter("boundary_detection_retry_total", map[string]string{"group_id": groupID, "reason": "parse_error"})
			if consecutiveParseFailures >= 2 {
				return Decision{Kind: DecisionWait, Status: StatusResult{ShouldWait: true}}
			}
			continue
		}
		consecutiveParseFailures = 0

		if parsed.Wait {
			return Decision{Kind: DecisionWait, Status: StatusResult{ShouldWait: true}}
		}
		if !parsed.Boundary {
			return Decision{Kind: DecisionAccumulate, Status: StatusResult{ShouldWait: false}}
		}

		mc, err := b.buildMemCell(ctx, window, parsed, participants, groupID)
		if err != nil {
			b.log.Warn("episode extraction failed after boundary found", map[string]any{"group_id": groupID, "error": err.Error()})
			return Decision{Kind: DecisionWait, Status: StatusResult{ShouldWait: true}}
		}
		return Decision{Kind: DecisionEmit, MemCell: mc, Status: StatusResult{ShouldWait: false}}
	}

	b.log.Error("boundary detection exhausted retries", map[string]any{"group_id": groupID, "attempts": b.maxRetries, "error": errString(lastErr)})
	return Decision{Kind: DecisionWait, Status: StatusResult{ShouldWait: true}}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// buildMemCell splits window at parsed.Index, runs the episode extractor
// over the history-side messages, and assembles a fresh MemCell.
func (b *BoundaryDetector) buildMemCell(ctx context.Context, window []model.RawMessage, parsed boundaryResponse, participants []string, groupID string) (*model.MemCell, error) {
	idx := parsed.Index
	if idx < 0 {
		idx = 0
	}
	if idx >= len(window) {
		idx = len(window) - 1
	}
	covered := window[:idx+1]

	episode, err := b.chat.Complete(ctx, episodeSystemPrompt(), episodeUserPrompt(covered))
	if err != nil {
		return nil, fmt.Errorf("episode extraction: %w", err)
	}

	senders := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		senders[p] = struct{}{}
	}
	for _, m := range covered {
		senders[m.Sender] = struct{}{}
	}
	union := make([]string, 0, len(senders))
	for s := range senders {
		union = append(union, s)
	}

	return &model.MemCell{
		EventID:      uuid.NewString(),
		Type:         model.MemCellTypeConversation,
		GroupID:      groupID,
		Participants: union,
		Timestamp:    covered[len(covered)-1].CreateTime,
		Summary:      strings.TrimSpace(parsed.Summary),
		Episode:      strings.TrimSpace(episode),
		OriginalData: covered,
	}, nil
}

func parseBoundaryResponse(raw string) (boundaryResponse, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, "no_boundary") || trimmed == "" {
		return boundaryResponse{Boundary: false}, nil
	}
	var resp boundaryResponse
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start == -1 || end == -1 || end < start {
		return boundaryResponse{}, fmt.Errorf("no JSON object found in boundary response")
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &resp); err != nil {
		return boundaryResponse{}, fmt.Errorf("unmarshal boundary response: %w", err)
	}
	return resp, nil
}

func boundarySystemPrompt(smartMask bool) string {
	base := "You decide whether the most recent message in a conversation window " +
		"closes out a self-contained episode worth remembering. Respond with a JSON " +
		"object {\"boundary\": bool, \"index\": int, \"summary\": string} when a boundary " +
		"is found (index is the 0-based position of the last message in the episode, " +
		"summary is one sentence), the literal token no_boundary when none is found, or " +
		"{\"wait\": true} when the evidence is inconclusive."
	if smartMask {
		base += " The window is long: treat its oldest messages as background context " +
			"only when judging where the boundary falls, but still summarize across the " +
			"whole window if a boundary is found."
	}
	return base
}

func boundaryUserPrompt(window []model.RawMessage, maskAbove int) string {
	var sb strings.Builder
	for i, m := range window {
		marker := ""
		if len(window) > maskAbove && i < len(window)-maskAbove {
			marker = " [background]"
		}
		fmt.Fprintf(&sb, "[%d]%s %s (%s): %s\n", i, marker, m.Sender, m.CreateTime.Format(time.RFC3339), m.Content)
	}
	return sb.String()
}

func episodeSystemPrompt() string {
	return "Write a concise third-person narrative of the conversation episode below, " +
		"covering what happened and why it mattered. Plain text, no JSON."
}

func episodeUserPrompt(covered []model.RawMessage) string {
	var sb strings.Builder
	for _, m := range covered {
		fmt.Fprintf(&sb, "%s: %s\n", m.Sender, m.Content)
	}
	return sb.String()
}
