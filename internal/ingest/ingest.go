// Package ingest implements the ingest coordinator (component J): the
// per-message state machine that logs a RawMessage, re-materializes its
// group's accumulation window, runs the boundary extractor, and on a
// boundary fans the resulting MemCell out to storage, memory extraction and
// the profile manager — all under a single per-group lock.
package ingest

import (
	"context"
	"fmt"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/embedding"
	"memoryd/internal/extract"
	"memoryd/internal/lock"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
	"memoryd/internal/store"
	syncsvc "memoryd/internal/sync"
	"memoryd/internal/window"
)

// Result is the {count, status_info, saved_memories} shape spec §4.6
// returns to the ingest caller.
type Result struct {
	Count         int
	StatusInfo    string // "accumulated" | "extracted"
	SavedMemories []string
}

// ProfileUpdater is the profile manager's (component M) leg of one ingest.
// Defined here, consumer-side, so this package doesn't need to import the
// internal/profile package; internal/profile's Manager type satisfies this
// interface.
type ProfileUpdater interface {
	Update(ctx context.Context, mc model.MemCell) error
}

// Coordinator implements the algorithm of spec §4.6.
type Coordinator struct {
	windows  window.Repository
	statuses *store.Store[model.ConversationStatus]
	memcells *store.Store[model.MemCell]
	locker   lock.Locker
	boundary *extract.BoundaryDetector
	semantic *extract.SemanticExtractor
	eventlog *extract.EventLogExtractor
	embedder embedding.Embedder
	sync     *syncsvc.Service
	profiles ProfileUpdater
	cfg      config.WindowConfig
	log      obslog.Logger
	metrics  obslog.Metrics
}

// New builds a Coordinator. profiles may be nil: the profile-manager leg
// of step 8f is then skipped entirely. metrics may be nil: ingest latency
// is then dropped rather than recorded.
func New(
	windows window.Repository,
	statuses *store.Store[model.ConversationStatus],
	memcells *store.Store[model.MemCell],
	locker lock.Locker,
	boundary *extract.BoundaryDetector,
	semantic *extract.SemanticExtractor,
	eventlog *extract.EventLogExtractor,
	embedder embedding.Embedder,
	sync *syncsvc.Service,
	profiles ProfileUpdater,
	cfg config.WindowConfig,
	log obslog.Logger,
	metrics obslog.Metrics,
) *Coordinator {
	if log == nil {
		log = obslog.NopLogger{}
	}
	if metrics == nil {
		metrics = obslog.NoopMetrics{}
	}
	return &Coordinator{
		windows: windows, statuses: statuses, memcells: memcells, locker: locker,
		boundary: boundary, semantic: semantic, eventlog: eventlog, embedder: embedder,
		sync: sync, profiles: profiles, cfg: cfg, log: log, metrics: metrics,
	}
}

// Memorize runs the full per-message algorithm of spec §4.6 for one
// received RawMessage, recording its wall-clock latency by outcome.
func (c *Coordinator) Memorize(ctx context.Context, m model.RawMessage) (Result, error) {
	start := time.Now()
	result, err := c.memorize(ctx, m)
	status := result.StatusInfo
	if err != nil {
		status = "error"
	}
	c.metrics.ObserveHistogram("ingest_latency_seconds", time.Since(start).Seconds(), map[string]string{"status": status})
	return result, err
}

func (c *Coordinator) memorize(ctx context.Context, m model.RawMessage) (Result, error) {
	// Step 1: log m with status LOG. Idempotent on (group_id, message_id).
	if err := c.windows.Append(ctx, m); err != nil {
		return Result{}, fmt.Errorf("append to window: %w", err)
	}

	var result Result
	err := lock.WithLock(ctx, c.locker, m.GroupID, func(ctx context.Context) error {
		r, err := c.memorizeLocked(ctx, m)
		result = r
		return err
	})
	return result, err
}

// memorizeLocked runs steps 3-8 of spec §4.6; the caller holds the
// per-group lock for its entire duration.
func (c *Coordinator) memorizeLocked(ctx context.Context, m model.RawMessage) (Result, error) {
	now := time.Now()

	// Step 3: load or create ConversationStatus.
	status, ok, err := c.statuses.GetByID(ctx, m.GroupID)
	if err != nil {
		return Result{}, fmt.Errorf("load conversation status: %w", err)
	}
	if !ok {
		status = model.ConversationStatus{
			GroupID: m.GroupID, OldMsgStartTime: m.CreateTime, NewMsgStartTime: m.CreateTime, UpdatedAt: m.CreateTime,
		}
		if err := c.statuses.UpsertByID(ctx, status); err != nil {
			return Result{}, fmt.Errorf("create conversation status: %w", err)
		}
	}

	// Step 4: out-of-order guard.
	if err := c.rewindIfOutOfOrder(ctx, &status, m, now); err != nil {
		return Result{}, err
	}

	// Step 5: re-materialize windows, capped at window.MaxRangeSize.
	historyAll, err := c.windows.Range(ctx, m.GroupID, status.OldMsgStartTime, status.NewMsgStartTime)
	if err != nil {
		return Result{}, fmt.Errorf("range history window: %w", err)
	}
	history := excludeAt(historyAll, status.NewMsgStartTime)

	newWindow, err := c.windows.Range(ctx, m.GroupID, status.NewMsgStartTime, now.Add(time.Millisecond))
	if err != nil {
		return Result{}, fmt.Errorf("range new window: %w", err)
	}

	if degenerate(history, newWindow, m.MessageID) {
		return Result{Count: 0, StatusInfo: "accumulated"}, nil
	}

	// Step 6: mark every covered message ACCUMULATING via one batched update.
	covered := dedupeIDs(history, newWindow)
	if len(covered) > 0 {
		if err := c.windows.SetStatus(ctx, m.GroupID, covered, model.SyncStatusAccumulating); err != nil {
			return Result{}, fmt.Errorf("mark accumulating: %w", err)
		}
	}

	// Step 7: call the boundary extractor.
	historyMsgs := rawMessagesOf(history)
	newMsgs := rawMessagesOf(newWindow)
	decision := c.boundary.Decide(ctx, historyMsgs, newMsgs, participantsOf(history, newWindow), m.GroupID)

	switch decision.Kind {
	case extract.DecisionWait:
		return Result{Count: 0, StatusInfo: "accumulated"}, nil

	case extract.DecisionAccumulate:
		if len(newMsgs) > 0 {
			status.NewMsgStartTime = newMsgs[len(newMsgs)-1].CreateTime
		}
		status.UpdatedAt = now
		if err := c.statuses.UpsertByID(ctx, status); err != nil {
			return Result{}, fmt.Errorf("persist conversation status: %w", err)
		}
		return Result{Count: 0, StatusInfo: "accumulated"}, nil

	case extract.DecisionEmit:
		return c.emit(ctx, m.GroupID, status, decision.MemCell, now)

	default:
		return Result{Count: 0, StatusInfo: "accumulated"}, nil
	}
}

// rewindIfOutOfOrder implements spec §4.6 step 4: a late-arriving message
// whose create_time precedes the current new-side cursor rewinds both
// cursors so it gets re-covered. A redelivered message whose own entry is
// already CONSUMED does not rewind anything.
func (c *Coordinator) rewindIfOutOfOrder(ctx context.Context, status *model.ConversationStatus, m model.RawMessage, now time.Time) error {
	entries, err := c.windows.Range(ctx, m.GroupID, status.NewMsgStartTime, now.Add(time.Millisecond))
	if err != nil {
		return fmt.Errorf("range new-side entries for rewind guard: %w", err)
	}
	own, err := c.windows.Range(ctx, m.GroupID, m.CreateTime, m.CreateTime)
	if err != nil {
		return fmt.Errorf("range own entry for rewind guard: %w", err)
	}
	tMin := m.CreateTime
	for _, e := range own {
		if e.MessageID == m.MessageID && e.SyncStatus == model.SyncStatusConsumed {
			tMin = status.NewMsgStartTime
		}
	}
	for _, e := range entries {
		if e.SyncStatus == model.SyncStatusConsumed {
			continue
		}
		if e.CreateTime.Before(tMin) {
			tMin = e.CreateTime
		}
	}
	if !tMin.Before(status.NewMsgStartTime) {
		return nil
	}
	status.NewMsgStartTime = tMin
	candidate := tMin.Add(-time.Millisecond)
	if candidate.Before(status.OldMsgStartTime) {
		status.OldMsgStartTime = candidate
	}
	return c.statuses.UpsertByID(ctx, *status)
}

// emit runs spec §4.6 step 8's Emit(MemCell) branch.
func (c *Coordinator) emit(ctx context.Context, groupID string, status model.ConversationStatus, mc *model.MemCell, now time.Time) (Result, error) {
	// 8a: persist MemCell, compute and stash its episode embedding.
	if vecs, err := c.embedder.EmbedBatch(ctx, []string{mc.Episode}, false); err != nil {
		c.log.Error("episode embedding failed", map[string]any{"event_id": mc.EventID, "error": err.Error()})
	} else if len(vecs) > 0 {
		mc.SetEmbedding(vecs[0])
	}
	if err := c.memcells.UpsertByID(ctx, *mc); err != nil {
		return Result{}, fmt.Errorf("persist memcell: %w", err)
	}

	// 8b: invoke memory extractors (I).
	mc.SemanticMemories = c.semantic.Extract(ctx, *mc)
	mc.EventLog = c.eventlog.Extract(ctx, *mc)
	if err := c.memcells.UpsertByID(ctx, *mc); err != nil {
		return Result{}, fmt.Errorf("persist memcell with extracted memories: %w", err)
	}

	// 8c: sync fan-out must succeed before the cursor advances.
	if _, err := c.sync.Sync(ctx, *mc); err != nil {
		c.log.Error("sync fan-out failed, cursor not advanced", map[string]any{"event_id": mc.EventID, "error": err.Error()})
		return Result{}, fmt.Errorf("sync fan-out: %w", err)
	}

	// 8d: advance ConversationStatus.
	lastCovered := mc.OriginalData[len(mc.OriginalData)-1]
	status.OldMsgStartTime = lastCovered.CreateTime
	status.NewMsgStartTime = lastCovered.CreateTime.Add(time.Millisecond)
	status.LastMemCellTime = mc.Timestamp
	status.UpdatedAt = now
	if err := c.statuses.UpsertByID(ctx, status); err != nil {
		return Result{}, fmt.Errorf("advance conversation status: %w", err)
	}

	// 8e: mark covered messages CONSUMED.
	coveredIDs := make([]string, 0, len(mc.OriginalData))
	for _, msg := range mc.OriginalData {
		coveredIDs = append(coveredIDs, msg.MessageID)
	}
	if err := c.windows.SetStatus(ctx, groupID, coveredIDs, model.SyncStatusConsumed); err != nil {
		return Result{}, fmt.Errorf("mark consumed: %w", err)
	}

	// 8f: best-effort profile update, still under the group lock.
	if c.profiles != nil {
		if err := c.profiles.Update(ctx, *mc); err != nil {
			c.log.Error("profile update failed", map[string]any{"event_id": mc.EventID, "error": err.Error()})
		}
	}

	return Result{Count: 1, StatusInfo: "extracted", SavedMemories: []string{mc.EventID}}, nil
}

// excludeAt drops entries at or after cutoff, implementing the
// exclusive-upper-bound semantics spec §4.6 step 5 gives the history
// window (window.Repository.Range is closed on both ends).
func excludeAt(entries []model.WindowEntry, cutoff time.Time) []model.WindowEntry {
	out := make([]model.WindowEntry, 0, len(entries))
	for _, e := range entries {
		if e.CreateTime.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// degenerate reports whether there is genuinely nothing to process: m is
// not present in the new window (a duplicate/already-consumed delivery)
// and one of the two windows is empty.
func degenerate(history, newWindow []model.WindowEntry, messageID string) bool {
	present := false
	for _, e := range newWindow {
		if e.MessageID == messageID {
			present = true
			break
		}
	}
	if present {
		return false
	}
	return len(history) == 0 || len(newWindow) == 0
}

func dedupeIDs(history, newWindow []model.WindowEntry) []string {
	seen := make(map[string]struct{}, len(history)+len(newWindow))
	out := make([]string, 0, len(history)+len(newWindow))
	for _, lists := range [][]model.WindowEntry{history, newWindow} {
		for _, e := range lists {
			if _, ok := seen[e.MessageID]; ok {
				continue
			}
			seen[e.MessageID] = struct{}{}
			out = append(out, e.MessageID)
		}
	}
	return out
}

func rawMessagesOf(entries []model.WindowEntry) []model.RawMessage {
	out := make([]model.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = e.RawMessage
	}
	return out
}

func participantsOf(history, newWindow []model.WindowEntry) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, lists := range [][]model.WindowEntry{history, newWindow} {
		for _, e := range lists {
			if _, ok := seen[e.Sender]; ok {
				continue
			}
			seen[e.Sender] = struct{}{}
			out = append(out, e.Sender)
		}
	}
	return out
}
