package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"memoryd/internal/llm"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
)

// ProfileOpAction is the action an operation list entry asks the profile
// manager (component M) to apply.
type ProfileOpAction string

const (
	ProfileOpAdd    ProfileOpAction = "add"
	ProfileOpUpdate ProfileOpAction = "update"
	ProfileOpDelete ProfileOpAction = "delete"
	ProfileOpNone   ProfileOpAction = "none"
)

// ProfileItemType selects which of Profile's two item slices an operation
// targets.
type ProfileItemType string

const (
	ProfileItemExplicit ProfileItemType = "explicit_info"
	ProfileItemImplicit ProfileItemType = "implicit_traits"
)

// ProfileOp is one entry of the operation list the LLM proposes against an
// existing profile, per spec §4.8 step 2c.
type ProfileOp struct {
	Action ProfileOpAction `json:"action"`
	Type   ProfileItemType `json:"type"`
	Index  *int            `json:"index,omitempty"`
	Data   *ProfileOpData  `json:"data,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// ProfileOpData is the add/update payload shape, deliberately narrower than
// model.ProfileItem (no Sources) since sources are derived by the profile
// manager from the episode being processed, not proposed by the LLM.
type ProfileOpData struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Evidence    string `json:"evidence,omitempty"`
}

// ProfileOpExtractor is the "profile extractor" leg of component I: it asks
// the LLM to propose an operation list against a short-id-rewritten view of
// the profile, and returns the raw proposal for component M to apply.
type ProfileOpExtractor struct {
	chat llm.Client
	log  obslog.Logger
}

// NewProfileOpExtractor builds a ProfileOpExtractor.
func NewProfileOpExtractor(chat llm.Client, log obslog.Logger) *ProfileOpExtractor {
	if log == nil {
		log = obslog.NopLogger{}
	}
	return &ProfileOpExtractor{chat: chat, log: log}
}

// Extract proposes operations against profile (already short-id-rewritten
// by the caller) given the newly emitted episode mc.
func (p *ProfileOpExtractor) Extract(ctx context.Context, profile model.Profile, mc model.MemCell) ([]ProfileOp, error) {
	resp, err := p.chat.Complete(ctx, profileOpSystemPrompt(), profileOpUserPrompt(profile, mc))
	if err != nil {
		return nil, fmt.Errorf("profile op extraction call: %w", err)
	}
	ops, err := parseProfileOps(resp)
	if err != nil {
		return nil, fmt.Errorf("profile op extraction response: %w", err)
	}
	return ops, nil
}

func parseProfileOps(raw string) ([]ProfileOp, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "[]") {
		return nil, nil
	}
	start := strings.IndexByte(trimmed, '[')
	end := strings.LastIndexByte(trimmed, ']')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in profile op response")
	}
	var ops []ProfileOp
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &ops); err != nil {
		return nil, fmt.Errorf("unmarshal profile ops: %w", err)
	}
	return ops, nil
}

func profileOpSystemPrompt() string {
	return "You maintain a running profile of explicit_info and implicit_traits " +
		"items about a person, each with an evidence note and short episode-id " +
		"sources. Given the current profile and a new episode, propose a list of " +
		"operations to keep the profile accurate and non-redundant. Respond with a " +
		"JSON array of objects {\"action\": \"add\"|\"update\"|\"delete\"|\"none\", " +
		"\"type\": \"explicit_info\"|\"implicit_traits\", \"index\"?: int (required for " +
		"update/delete, 0-based into that type's list), \"data\"?: {\"category\": " +
		"string, \"description\": string, \"evidence\"?: string} (required for " +
		"add/update), \"reason\"?: string (required for delete)}. Only delete an item " +
		"when the episode explicitly contradicts it; prefer add/update."
}

func profileOpUserPrompt(profile model.Profile, mc model.MemCell) string {
	var sb strings.Builder
	sb.WriteString("Current explicit_info:\n")
	for i, item := range profile.ExplicitInfo {
		fmt.Fprintf(&sb, "[%d] %s: %s (evidence: %s, sources: %s)\n", i, item.Category, item.Description, item.Evidence, sourceLabels(item))
	}
	sb.WriteString("Current implicit_traits:\n")
	for i, item := range profile.ImplicitTraits {
		fmt.Fprintf(&sb, "[%d] %s: %s (evidence: %s, sources: %s)\n", i, item.Category, item.Description, item.Evidence, sourceLabels(item))
	}
	sb.WriteString("New episode:\n")
	sb.WriteString(mc.Episode)
	return sb.String()
}

// sourceLabels renders an item's source episode ids (expected to already be
// caller-rewritten short labels like "ep1, ep2" rather than long event_ids,
// per spec §4.8 step 2b) for display in the prompt.
func sourceLabels(item model.ProfileItem) string {
	if len(item.Sources) == 0 {
		return "none"
	}
	labels := make([]string, len(item.Sources))
	for i, s := range item.Sources {
		labels[i] = s.EpisodeID
	}
	return strings.Join(labels, ", ")
}
