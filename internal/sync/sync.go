// Package sync is the write fan-out service (component K): given one
// emitted MemCell, derive its episode/semantic/event-log child records and
// write them to the document store, vector index and inverted index.
package sync

import (
	"context"
	"fmt"
	"time"

	"memoryd/internal/invertedindex"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
	"memoryd/internal/store"
	"memoryd/internal/vectorindex"
)

// Result tallies what a Sync call wrote, returned to the ingest coordinator
// for its {count, saved_memories} response.
type Result struct {
	Episode        int
	SemanticMemory int
	EventLog       int
	ESRecords      int
}

// Service fans a MemCell out to every index spec §4.3 defines.
type Service struct {
	documents *store.Store[model.EpisodicMemoryRecord]
	vectors   vectorindex.Index
	inverted  invertedindex.Index
	log       obslog.Logger
}

// NewService builds the sync service over the given index handles.
func NewService(documents *store.Store[model.EpisodicMemoryRecord], vectors vectorindex.Index, inverted invertedindex.Index, log obslog.Logger) *Service {
	return &Service{documents: documents, vectors: vectors, inverted: inverted, log: log}
}

// Sync derives mc's child records and writes them out. The overall call
// succeeds (nil error) iff the episode record made it to the document
// store; every other per-record failure is logged and skipped, per spec
// §4.7's partial-failure policy — the episode is the parent lookup key a
// later resync job would retry children against.
func (s *Service) Sync(ctx context.Context, mc model.MemCell) (Result, error) {
	var result Result

	episode := s.episodeRecord(mc)
	if err := s.writeRecord(ctx, episode); err != nil {
		return result, fmt.Errorf("write episode record %s: %w", episode.rec.ID, err)
	}
	result.Episode = 1
	result.ESRecords++

	for i, sem := range mc.SemanticMemories {
		rec := s.semanticRecord(mc, i, sem)
		if rec.rec.Episode == "" {
			continue
		}
		if err := s.writeRecord(ctx, rec); err != nil {
			s.log.Error("sync semantic memory failed", map[string]any{"event_id": mc.EventID, "index": i, "error": err.Error()})
			continue
		}
		result.SemanticMemory++
		result.ESRecords++
	}

	if mc.EventLog != nil {
		if !mc.EventLog.Valid() {
			s.log.Error("sync event log aborted: atomic_fact/fact_embeddings length mismatch", map[string]any{
				"event_id": mc.EventID, "facts": len(mc.EventLog.AtomicFact), "embeddings": len(mc.EventLog.FactEmbeddings),
			})
		} else {
			for j, fact := range mc.EventLog.AtomicFact {
				rec := s.eventLogRecord(mc, j, fact, mc.EventLog.FactEmbeddings[j])
				if err := s.writeRecord(ctx, rec); err != nil {
					s.log.Error("sync event log fact failed", map[string]any{"event_id": mc.EventID, "index": j, "error": err.Error()})
					continue
				}
				result.EventLog++
				result.ESRecords++
			}
		}
	}

	if err := s.vectors.Flush(ctx); err != nil {
		s.log.Error("vector index flush failed", map[string]any{"event_id": mc.EventID, "error": err.Error()})
	}
	if err := s.inverted.Refresh(ctx); err != nil {
		s.log.Error("inverted index refresh failed", map[string]any{"event_id": mc.EventID, "error": err.Error()})
	}

	return result, nil
}

type derivedRecord struct {
	rec    model.EpisodicMemoryRecord
	vector []float32
}

func (s *Service) episodeRecord(mc model.MemCell) derivedRecord {
	searchContent := make([]string, 0, 3)
	if mc.Subject != "" {
		searchContent = append(searchContent, mc.Subject)
	}
	if mc.Summary != "" {
		searchContent = append(searchContent, mc.Summary)
	}
	searchContent = append(searchContent, truncate(mc.Episode, 500))

	return derivedRecord{
		rec: model.EpisodicMemoryRecord{
			ID:            mc.EventID + "_episode",
			UserID:        mc.UserID,
			GroupID:       mc.GroupID,
			Participants:  mc.Participants,
			Timestamp:     mc.Timestamp,
			Episode:       mc.Episode,
			SearchContent: searchContent,
			MemorySubType: model.MemoryKindEpisode,
			ParentEventID: mc.EventID,
		},
		vector: mc.Embedding(),
	}
}

func (s *Service) semanticRecord(mc model.MemCell, i int, sem model.SemanticMemory) derivedRecord {
	return derivedRecord{
		rec: model.EpisodicMemoryRecord{
			ID:            model.RecordID(mc.EventID, model.MemoryKindSemantic, i),
			UserID:        mc.UserID,
			GroupID:       mc.GroupID,
			Participants:  mc.Participants,
			Timestamp:     mc.Timestamp,
			Episode:       sem.Content,
			SearchContent: []string{sem.Content},
			MemorySubType: model.MemoryKindSemantic,
			ParentEventID: mc.EventID,
			StartTime:     sem.StartTime,
			EndTime:       sem.EndTime,
		},
		vector: sem.Embedding,
	}
}

func (s *Service) eventLogRecord(mc model.MemCell, j int, fact string, vector []float32) derivedRecord {
	return derivedRecord{
		rec: model.EpisodicMemoryRecord{
			ID:            model.RecordID(mc.EventID, model.MemoryKindEventLog, j),
			UserID:        mc.UserID,
			GroupID:       mc.GroupID,
			Participants:  mc.Participants,
			Timestamp:     mc.Timestamp,
			Episode:       fact,
			SearchContent: []string{fact},
			MemorySubType: model.MemoryKindEventLog,
			ParentEventID: mc.EventID,
		},
		vector: vector,
	}
}

// writeRecord writes d to the document store, then the vector index (if it
// carries a vector) and the inverted index, per spec §4.7 step 2.
func (s *Service) writeRecord(ctx context.Context, d derivedRecord) error {
	if err := s.documents.UpsertByID(ctx, d.rec); err != nil {
		return err
	}
	if len(d.vector) > 0 {
		if err := s.vectors.Insert(ctx, d.rec, d.vector); err != nil {
			s.log.Error("vector index insert failed", map[string]any{"id": d.rec.ID, "error": err.Error()})
		}
	} else {
		s.log.Warn("skipping vector index write: empty vector", map[string]any{"id": d.rec.ID})
	}
	if err := s.inverted.Upsert(ctx, invertedindex.Doc{
		ID:        d.rec.ID,
		UserID:    d.rec.UserID,
		GroupID:   d.rec.GroupID,
		Timestamp: d.rec.Timestamp,
		Text:      joinLines(d.rec.SearchContent),
		Source:    invertedSource(d.rec),
	}); err != nil {
		s.log.Error("inverted index upsert failed", map[string]any{"id": d.rec.ID, "error": err.Error()})
	}
	return nil
}

func invertedSource(rec model.EpisodicMemoryRecord) map[string]any {
	return map[string]any{
		"user_id":         rec.UserID,
		"group_id":        rec.GroupID,
		"participants":    rec.Participants,
		"parent_event_id": rec.ParentEventID,
		"memory_sub_type": string(rec.MemorySubType),
		"event_type":      rec.MemorySubType.EventType(),
		"metadata":        rec.Extend,
		"search_content":  rec.SearchContent,
		"start_time":      epochSeconds(rec.StartTime),
		"end_time":        epochSeconds(rec.EndTime),
	}
}

func epochSeconds(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.Unix()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func joinLines(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}
