package store

import (
	"time"

	"memoryd/internal/model"
)

// NewMemCellStore builds the Store[model.MemCell] instance over backend.
func NewMemCellStore(backend Backend) *Store[model.MemCell] {
	return New(backend, "memcell", Accessors[model.MemCell]{
		ID:        func(m model.MemCell) string { return m.EventID },
		UserID:    func(m model.MemCell) string { return m.UserID },
		GroupID:   func(m model.MemCell) string { return m.GroupID },
		Timestamp: func(m model.MemCell) time.Time { return m.Timestamp },
	})
}

// NewProfileStore builds the Store[model.Profile] instance over backend.
// Profiles have no group or timestamp column; those accessors return the
// zero value so the common filter shape still type-checks.
func NewProfileStore(backend Backend) *Store[model.Profile] {
	return New(backend, "profile", Accessors[model.Profile]{
		ID:        func(p model.Profile) string { return p.UserID },
		UserID:    func(p model.Profile) string { return p.UserID },
		GroupID:   func(model.Profile) string { return "" },
		Timestamp: func(model.Profile) time.Time { return time.Time{} },
	})
}

// NewConversationMetaStore builds the Store[model.ConversationMeta]
// instance over backend.
func NewConversationMetaStore(backend Backend) *Store[model.ConversationMeta] {
	return New(backend, "conversation_meta", Accessors[model.ConversationMeta]{
		ID:        func(c model.ConversationMeta) string { return conversationMetaID(c) },
		UserID:    func(model.ConversationMeta) string { return "" },
		GroupID:   func(c model.ConversationMeta) string { return c.GroupID },
		Timestamp: func(model.ConversationMeta) time.Time { return time.Time{} },
	})
}

// conversationMetaID treats GroupID == "" as the default-fallback record's
// identity, per spec §3.
func conversationMetaID(c model.ConversationMeta) string {
	if c.GroupID == "" {
		return "__default__"
	}
	return c.GroupID
}

// NewConversationStatusStore builds the Store[model.ConversationStatus]
// instance over backend: the ingest coordinator's (component J) per-group
// accumulation cursor.
func NewConversationStatusStore(backend Backend) *Store[model.ConversationStatus] {
	return New(backend, "conversation_status", Accessors[model.ConversationStatus]{
		ID:        func(c model.ConversationStatus) string { return c.GroupID },
		UserID:    func(model.ConversationStatus) string { return "" },
		GroupID:   func(c model.ConversationStatus) string { return c.GroupID },
		Timestamp: func(c model.ConversationStatus) time.Time { return c.UpdatedAt },
	})
}

// NewRequestLogStore builds the Store[model.RequestLog] instance over
// backend.
func NewRequestLogStore(backend Backend) *Store[model.RequestLog] {
	return New(backend, "request_log", Accessors[model.RequestLog]{
		ID:        func(r model.RequestLog) string { return r.RequestID },
		UserID:    func(r model.RequestLog) string { return r.UserID },
		GroupID:   func(r model.RequestLog) string { return r.GroupID },
		Timestamp: func(r model.RequestLog) time.Time { return r.CreatedAt },
	})
}

// NewClusterStateStore builds the Store[model.ClusterState] instance over
// backend.
func NewClusterStateStore(backend Backend) *Store[model.ClusterState] {
	return New(backend, "cluster_state", Accessors[model.ClusterState]{
		ID:        func(c model.ClusterState) string { return c.GroupID },
		UserID:    func(model.ClusterState) string { return "" },
		GroupID:   func(c model.ClusterState) string { return c.GroupID },
		Timestamp: func(model.ClusterState) time.Time { return time.Time{} },
	})
}

// NewEpisodicMemoryStore builds the Store[model.EpisodicMemoryRecord]
// instance over backend. This is the document-store side of an episodic
// record's lifecycle (soft-delete, paged listing); the vector and inverted
// indices hold the same record's id for search, kept consistent by the
// sync service (component K).
func NewEpisodicMemoryStore(backend Backend) *Store[model.EpisodicMemoryRecord] {
	return New(backend, "episodic_memory", Accessors[model.EpisodicMemoryRecord]{
		ID:        func(e model.EpisodicMemoryRecord) string { return e.ID },
		UserID:    func(e model.EpisodicMemoryRecord) string { return e.UserID },
		GroupID:   func(e model.EpisodicMemoryRecord) string { return e.GroupID },
		Timestamp: func(e model.EpisodicMemoryRecord) time.Time { return e.Timestamp },
	})
}

// NewImportanceEvidenceStore builds the Store[model.ImportanceEvidence]
// instance over backend. ImportanceEvidence has no natural single-field
// identity, so its id is the composite "user_id|group_id" key the retrieval
// coordinator (component L) looks it up by.
func NewImportanceEvidenceStore(backend Backend) *Store[model.ImportanceEvidence] {
	return New(backend, "importance_evidence", Accessors[model.ImportanceEvidence]{
		ID:        func(e model.ImportanceEvidence) string { return importanceEvidenceID(e) },
		UserID:    func(e model.ImportanceEvidence) string { return e.UserID },
		GroupID:   func(e model.ImportanceEvidence) string { return e.GroupID },
		Timestamp: func(model.ImportanceEvidence) time.Time { return time.Time{} },
	})
}

func importanceEvidenceID(e model.ImportanceEvidence) string {
	return e.UserID + "|" + e.GroupID
}
