package model

import (
	"strconv"
	"time"
)

// MemCellType enumerates the kinds of episode a MemCell can represent.
// CONVERSATION is the only type produced by the boundary extractor today;
// the type remains open for future extractors (e.g. task completion events).
type MemCellType string

const MemCellTypeConversation MemCellType = "CONVERSATION"

// MemCell is the parent record of one extracted memory: it owns zero or
// more SemanticMemory items and at most one EventLog. EventID is its opaque
// identity and the parent key for every child record derived from it.
type MemCell struct {
	EventID         string         `json:"event_id"`
	Type            MemCellType    `json:"type"`
	UserID          string         `json:"user_id,omitempty"`
	UserIDList      []string       `json:"user_id_list,omitempty"`
	GroupID         string         `json:"group_id,omitempty"`
	Participants    []string       `json:"participants"`
	Timestamp       time.Time      `json:"timestamp"`
	Subject         string         `json:"subject,omitempty"`
	Summary         string         `json:"summary"`
	Episode         string         `json:"episode"`
	SemanticMemories []SemanticMemory `json:"semantic_memories,omitempty"`
	EventLog        *EventLog      `json:"event_log,omitempty"`
	OriginalData    []RawMessage   `json:"original_data"`
	Extend          map[string]any `json:"extend,omitempty"`
	Deleted         bool           `json:"deleted,omitempty"`
}

// Embedding reads the episode embedding stashed under Extend["embedding"] by
// the ingest coordinator so it is not recomputed during sync fan-out.
func (m *MemCell) Embedding() []float32 {
	if m.Extend == nil {
		return nil
	}
	v, ok := m.Extend["embedding"]
	if !ok {
		return nil
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil
	}
	return vec
}

// SetEmbedding stashes the episode embedding under Extend["embedding"].
func (m *MemCell) SetEmbedding(vec []float32) {
	if m.Extend == nil {
		m.Extend = map[string]any{}
	}
	m.Extend["embedding"] = vec
}

// SemanticMemory is a durable, typically dated fact inferred from an episode.
type SemanticMemory struct {
	Content         string     `json:"content"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationDays    *int       `json:"duration_days,omitempty"`
	SourceEpisodeID string     `json:"source_episode_id,omitempty"`
	Embedding       []float32  `json:"embedding,omitempty"`
	Evidence        string     `json:"evidence,omitempty"`
}

// EventLog is the atomic-fact log attached to a MemCell. Invariant:
// len(AtomicFact) == len(FactEmbeddings).
type EventLog struct {
	Time           time.Time   `json:"time"`
	AtomicFact     []string    `json:"atomic_fact"`
	FactEmbeddings [][]float32 `json:"fact_embeddings"`
}

// Valid reports whether the EventLog's invariant holds.
func (e *EventLog) Valid() bool {
	if e == nil {
		return true
	}
	return len(e.AtomicFact) == len(e.FactEmbeddings)
}

// MemoryKind identifies which part of a MemCell an EpisodicMemoryRecord was
// flattened from.
type MemoryKind string

const (
	MemoryKindEpisode  MemoryKind = "episode"
	MemoryKindSemantic MemoryKind = "semantic"
	MemoryKindEventLog MemoryKind = "eventlog"
)

// EventType is the index-payload spelling of a MemoryKind, kept distinct
// from the MemoryKind value itself since the sync fan-out's required scalar
// field ("event_type": "episode"/"semantic_memory"/"event_log") predates
// and doesn't match MemoryKind's own string values.
func (k MemoryKind) EventType() string {
	switch k {
	case MemoryKindSemantic:
		return "semantic_memory"
	case MemoryKindEventLog:
		return "event_log"
	default:
		return "episode"
	}
}

// EpisodicMemoryRecord is the flattened, indexed view of a MemCell (or one
// of its children) written to the vector and inverted stores. Its identity
// is structural: "<parent_event_id>_<kind>_<ordinal>".
type EpisodicMemoryRecord struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id,omitempty"`
	GroupID        string         `json:"group_id,omitempty"`
	Participants   []string       `json:"participants,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Episode        string         `json:"episode"`
	SearchContent  []string       `json:"search_content,omitempty"`
	MemorySubType  MemoryKind     `json:"memory_sub_type"`
	ParentEventID  string         `json:"parent_event_id"`
	Extend         map[string]any `json:"extend,omitempty"`
	StartTime      *time.Time     `json:"start_time,omitempty"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	Deleted        bool           `json:"deleted,omitempty"`
}

// RecordID builds the structural identity of a child record: kind and
// ordinal are part of the wire-visible id so reconstruction/debugging never
// needs an extra join.
func RecordID(parentEventID string, kind MemoryKind, ordinal int) string {
	return parentEventID + "_" + string(kind) + "_" + strconv.Itoa(ordinal)
}
