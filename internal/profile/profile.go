// Package profile implements the profile manager (component M): after an
// ingest coordinator emits a MemCell, it assigns the episode to a per-group
// cluster and folds it into each participant's running profile via an
// LLM-proposed operation list, with a merge-back safeguard against the LLM
// silently dropping items and an LLM-driven compaction pass once a profile
// grows past its capacity threshold.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"memoryd/internal/config"
	"memoryd/internal/extract"
	"memoryd/internal/llm"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
	"memoryd/internal/store"
)

// Manager implements spec §4.8. It satisfies internal/ingest's
// ProfileUpdater interface.
type Manager struct {
	profiles *store.Store[model.Profile]
	clusters *store.Store[model.ClusterState]
	ops      *extract.ProfileOpExtractor
	chat     llm.Client
	cfg      config.ProfileConfig
	log      obslog.Logger
}

// NewManager builds a Manager. chat is used directly for the compaction
// pass, which ops (the add/update/delete proposer) doesn't cover.
func NewManager(profiles *store.Store[model.Profile], clusters *store.Store[model.ClusterState], ops *extract.ProfileOpExtractor, chat llm.Client, cfg config.ProfileConfig, log obslog.Logger) *Manager {
	if log == nil {
		log = obslog.NopLogger{}
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 25
	}
	if cfg.CompactionTriggerRatio <= 0 {
		cfg.CompactionTriggerRatio = 1.5
	}
	if cfg.CompactionTargetRatio <= 0 {
		cfg.CompactionTargetRatio = 0.7
	}
	if cfg.ClusterSimilarityThreshold <= 0 {
		cfg.ClusterSimilarityThreshold = 0.75
	}
	return &Manager{profiles: profiles, clusters: clusters, ops: ops, chat: chat, cfg: cfg, log: log}
}

// Update runs spec §4.8 for one emitted MemCell. The caller (the ingest
// coordinator) still holds the per-group lock.
func (m *Manager) Update(ctx context.Context, mc model.MemCell) error {
	if mc.GroupID != "" && len(mc.Embedding()) > 0 {
		if err := m.assignCluster(ctx, mc); err != nil {
			m.log.Error("cluster assignment failed", map[string]any{"group_id": mc.GroupID, "event_id": mc.EventID, "error": err.Error()})
		}
	}

	users := affectedUsers(mc)
	var firstErr error
	failed := 0
	for _, uid := range users {
		if err := m.updateUserProfile(ctx, uid, mc); err != nil {
			m.log.Error("profile update failed for user", map[string]any{"user_id": uid, "event_id": mc.EventID, "error": err.Error()})
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("profile update failed for %d of %d participants: %w", failed, len(users), firstErr)
	}
	return nil
}

// assignCluster implements step 1: nearest-centroid cluster assignment with
// an atomic whole-document ClusterState update.
func (m *Manager) assignCluster(ctx context.Context, mc model.MemCell) error {
	state, ok, err := m.clusters.GetByID(ctx, mc.GroupID)
	if err != nil {
		return fmt.Errorf("load cluster state: %w", err)
	}
	if !ok {
		state = model.ClusterState{GroupID: mc.GroupID}
	}
	if state.EventIDToCluster == nil {
		state.EventIDToCluster = map[string]int{}
	}
	if state.ClusterCentroids == nil {
		state.ClusterCentroids = map[int][]float32{}
	}
	if state.ClusterCounts == nil {
		state.ClusterCounts = map[int]int{}
	}
	if state.ClusterLastTS == nil {
		state.ClusterLastTS = map[int]int64{}
	}

	vec := mc.Embedding()
	best, bestSim := -1, -1.0
	for id, centroid := range state.ClusterCentroids {
		if sim := cosineSimilarity(vec, centroid); sim > bestSim {
			best, bestSim = id, sim
		}
	}

	clusterID := best
	if best == -1 || bestSim < m.cfg.ClusterSimilarityThreshold {
		clusterID = state.NextClusterIdx
		state.NextClusterIdx++
		state.ClusterCentroids[clusterID] = append([]float32{}, vec...)
	}
	count := state.ClusterCounts[clusterID]
	state.ClusterCentroids[clusterID] = runningMean(state.ClusterCentroids[clusterID], vec, count)
	state.ClusterCounts[clusterID] = count + 1
	state.ClusterLastTS[clusterID] = mc.Timestamp.Unix()
	state.EventIDToCluster[mc.EventID] = clusterID
	state.EventIDs = append(state.EventIDs, mc.EventID)
	state.Timestamps = append(state.Timestamps, mc.Timestamp.Unix())
	state.ClusterIDs = append(state.ClusterIDs, clusterID)

	return m.clusters.UpsertByID(ctx, state)
}

// updateUserProfile implements steps 2a-2g for a single participant.
func (m *Manager) updateUserProfile(ctx context.Context, uid string, mc model.MemCell) error {
	profile, ok, err := m.profiles.GetByID(ctx, uid)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if !ok {
		profile = model.Profile{UserID: uid}
	}
	if profile.HasProcessed(mc.EventID) {
		return nil
	}

	oldExplicit := append([]model.ProfileItem{}, profile.ExplicitInfo...)
	oldImplicit := append([]model.ProfileItem{}, profile.ImplicitTraits...)

	shortIDs := buildShortIDMap(profile)
	rewritten := rewriteSources(profile, shortIDs)

	ops, err := m.ops.Extract(ctx, rewritten, mc)
	if err != nil {
		return fmt.Errorf("propose profile ops: %w", err)
	}

	applyOps(&profile, ops, mc)
	restoreDropped(&profile, oldExplicit, oldImplicit)

	if profile.TotalItems() > int(float64(m.cfg.MaxItems)*m.cfg.CompactionTriggerRatio) {
		if err := m.compact(ctx, &profile); err != nil {
			m.log.Error("profile compaction failed", map[string]any{"user_id": uid, "error": err.Error()})
		}
	}

	profile.ProcessedEpisodeIDs = append(profile.ProcessedEpisodeIDs, mc.EventID)
	profile.Version++
	return m.profiles.UpsertByID(ctx, profile)
}

// buildShortIDMap assigns each distinct source event_id already present in
// profile a short label in first-seen order, per step 2b.
func buildShortIDMap(profile model.Profile) map[string]string {
	longToShort := map[string]string{}
	n := 0
	for _, list := range [][]model.ProfileItem{profile.ExplicitInfo, profile.ImplicitTraits} {
		for _, item := range list {
			for _, src := range item.Sources {
				if _, seen := longToShort[src.EpisodeID]; !seen {
					n++
					longToShort[src.EpisodeID] = fmt.Sprintf("ep%d", n)
				}
			}
		}
	}
	return longToShort
}

// rewriteSources returns a copy of profile with every source's EpisodeID
// replaced by its short label, for display to the LLM only: the persisted
// profile always keeps long ids.
func rewriteSources(profile model.Profile, shortIDs map[string]string) model.Profile {
	rewritten := profile
	rewritten.ExplicitInfo = rewriteItems(profile.ExplicitInfo, shortIDs)
	rewritten.ImplicitTraits = rewriteItems(profile.ImplicitTraits, shortIDs)
	return rewritten
}

func rewriteItems(items []model.ProfileItem, shortIDs map[string]string) []model.ProfileItem {
	out := make([]model.ProfileItem, len(items))
	for i, item := range items {
		cp := item
		cp.Sources = make([]model.ProfileSource, len(item.Sources))
		for j, s := range item.Sources {
			label := s.EpisodeID
			if short, ok := shortIDs[s.EpisodeID]; ok {
				label = short
			}
			cp.Sources[j] = model.ProfileSource{EpisodeID: label, Timestamp: s.Timestamp}
		}
		out[i] = cp
	}
	return out
}

// applyOps implements step 2d. Update and delete indices are resolved
// against the pre-batch snapshot of each list, not progressively shifted by
// earlier ops in the same batch, so a batch proposing several operations
// against the same list can't have one op's index collide with another's.
func applyOps(profile *model.Profile, ops []extract.ProfileOp, mc model.MemCell) {
	explicit := append([]model.ProfileItem{}, profile.ExplicitInfo...)
	implicit := append([]model.ProfileItem{}, profile.ImplicitTraits...)
	explicitDeleted := map[int]bool{}
	implicitDeleted := map[int]bool{}

	type addition struct {
		item model.ProfileItem
		typ  extract.ProfileItemType
	}
	var adds []addition

	for _, op := range ops {
		switch op.Action {
		case extract.ProfileOpAdd:
			if op.Data == nil {
				continue
			}
			adds = append(adds, addition{item: newItem(op.Data, mc), typ: op.Type})

		case extract.ProfileOpUpdate:
			if op.Data == nil || op.Index == nil {
				continue
			}
			idx := *op.Index
			if op.Type == extract.ProfileItemImplicit {
				if idx < 0 || idx >= len(implicit) {
					continue
				}
				implicit[idx] = mergeItem(implicit[idx], op.Data, mc)
			} else {
				if idx < 0 || idx >= len(explicit) {
					continue
				}
				explicit[idx] = mergeItem(explicit[idx], op.Data, mc)
			}

		case extract.ProfileOpDelete:
			if op.Index == nil || strings.TrimSpace(op.Reason) == "" {
				continue
			}
			idx := *op.Index
			if op.Type == extract.ProfileItemImplicit {
				if idx < 0 || idx >= len(implicit) {
					continue
				}
				implicitDeleted[idx] = true
			} else {
				if idx < 0 || idx >= len(explicit) {
					continue
				}
				explicitDeleted[idx] = true
			}

		case extract.ProfileOpNone:
		}
	}

	profile.ExplicitInfo = filterDeleted(explicit, explicitDeleted)
	profile.ImplicitTraits = filterDeleted(implicit, implicitDeleted)
	for _, a := range adds {
		if a.typ == extract.ProfileItemImplicit {
			profile.ImplicitTraits = append(profile.ImplicitTraits, a.item)
		} else {
			profile.ExplicitInfo = append(profile.ExplicitInfo, a.item)
		}
	}
}

func newItem(data *extract.ProfileOpData, mc model.MemCell) model.ProfileItem {
	return model.ProfileItem{
		Category:    data.Category,
		Description: data.Description,
		Evidence:    data.Evidence,
		Sources:     []model.ProfileSource{{EpisodeID: mc.EventID, Timestamp: mc.Timestamp.Unix()}},
	}
}

func mergeItem(cur model.ProfileItem, data *extract.ProfileOpData, mc model.MemCell) model.ProfileItem {
	if data.Category != "" {
		cur.Category = data.Category
	}
	if data.Description != "" {
		cur.Description = data.Description
	}
	if data.Evidence != "" {
		cur.Evidence = data.Evidence
	}
	cur.Sources = append(cur.Sources, model.ProfileSource{EpisodeID: mc.EventID, Timestamp: mc.Timestamp.Unix()})
	return cur
}

func filterDeleted(items []model.ProfileItem, deleted map[int]bool) []model.ProfileItem {
	out := make([]model.ProfileItem, 0, len(items))
	for i, item := range items {
		if deleted[i] {
			continue
		}
		out = append(out, item)
	}
	return out
}

// restoreDropped implements step 2e: any item present before this batch's
// ops ran and absent afterward by case-insensitive description match is
// restored, since the LLM is not trusted to delete implicitly.
func restoreDropped(profile *model.Profile, oldExplicit, oldImplicit []model.ProfileItem) {
	profile.ExplicitInfo = restoreMissing(oldExplicit, profile.ExplicitInfo)
	profile.ImplicitTraits = restoreMissing(oldImplicit, profile.ImplicitTraits)
}

func restoreMissing(old, current []model.ProfileItem) []model.ProfileItem {
	out := current
	for _, item := range old {
		if !containsDescription(out, item.Description) {
			out = append(out, item)
		}
	}
	return out
}

func containsDescription(items []model.ProfileItem, desc string) bool {
	for _, it := range items {
		if strings.EqualFold(it.Description, desc) {
			return true
		}
	}
	return false
}

// compactionKeep is the shape the compaction LLM call returns: the indices
// (into the pre-compaction ExplicitInfo/ImplicitTraits slices) to keep.
// Deciding only indices, never full item text, is what lets this pass
// "preserve evidence, sources" per step 2f without trusting the LLM to
// transcribe them.
type compactionKeep struct {
	ExplicitInfo   []int `json:"explicit_info"`
	ImplicitTraits []int `json:"implicit_traits"`
}

// compact implements step 2f: an LLM-driven pass that selects which items
// to keep, targeting cfg.CompactionTargetRatio*MaxItems.
func (m *Manager) compact(ctx context.Context, profile *model.Profile) error {
	if m.chat == nil {
		return fmt.Errorf("no compaction llm client configured")
	}
	target := int(float64(m.cfg.MaxItems) * m.cfg.CompactionTargetRatio)
	resp, err := m.chat.Complete(ctx, compactionSystemPrompt(target), compactionUserPrompt(*profile))
	if err != nil {
		return fmt.Errorf("compaction call: %w", err)
	}
	keep, err := parseCompactionKeep(resp)
	if err != nil {
		return fmt.Errorf("parse compaction response: %w", err)
	}
	profile.ExplicitInfo = keepByIndex(profile.ExplicitInfo, keep.ExplicitInfo)
	profile.ImplicitTraits = keepByIndex(profile.ImplicitTraits, keep.ImplicitTraits)
	return nil
}

func keepByIndex(items []model.ProfileItem, idx []int) []model.ProfileItem {
	out := make([]model.ProfileItem, 0, len(idx))
	seen := map[int]bool{}
	for _, i := range idx {
		if i < 0 || i >= len(items) || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, items[i])
	}
	return out
}

func parseCompactionKeep(raw string) (compactionKeep, error) {
	trimmed := strings.TrimSpace(raw)
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start == -1 || end == -1 || end < start {
		return compactionKeep{}, fmt.Errorf("no JSON object found in compaction response")
	}
	var keep compactionKeep
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &keep); err != nil {
		return compactionKeep{}, fmt.Errorf("unmarshal compaction keep set: %w", err)
	}
	return keep, nil
}

func compactionSystemPrompt(target int) string {
	return fmt.Sprintf("A profile has grown past capacity. You are given its "+
		"explicit_info and implicit_traits items, each shown with its 0-based "+
		"index. Choose which items to keep, merging near-duplicates by keeping "+
		"the more complete one, so the total kept count is close to %d. Respond "+
		"with a JSON object {\"explicit_info\": [int, ...], \"implicit_traits\": "+
		"[int, ...]} listing the indices to keep.", target)
}

func compactionUserPrompt(profile model.Profile) string {
	var sb strings.Builder
	sb.WriteString("explicit_info:\n")
	for i, item := range profile.ExplicitInfo {
		fmt.Fprintf(&sb, "[%d] %s: %s\n", i, item.Category, item.Description)
	}
	sb.WriteString("implicit_traits:\n")
	for i, item := range profile.ImplicitTraits {
		fmt.Fprintf(&sb, "[%d] %s: %s\n", i, item.Category, item.Description)
	}
	return sb.String()
}

// affectedUsers returns the participants a MemCell's profile update fans
// out to, per step 2's "for each affected user_id in participants". A
// MemCell with no participants recorded falls back to its own user_id so a
// single-user episode still updates a profile.
func affectedUsers(mc model.MemCell) []string {
	if len(mc.Participants) > 0 {
		return dedupe(mc.Participants)
	}
	if mc.UserID != "" {
		return []string{mc.UserID}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// cosineSimilarity returns -1 when either vector is empty or zero-norm, so
// an empty centroid never wins nearest-centroid selection.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return -1
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// runningMean folds vec into centroid as the (count+1)th sample's running
// mean.
func runningMean(centroid, vec []float32, count int) []float32 {
	if len(centroid) == 0 {
		return append([]float32{}, vec...)
	}
	out := make([]float32, len(centroid))
	n := float32(count)
	for i := range centroid {
		var v float32
		if i < len(vec) {
			v = vec[i]
		}
		out[i] = (centroid[i]*n + v) / (n + 1)
	}
	return out
}
