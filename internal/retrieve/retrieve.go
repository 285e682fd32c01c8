// Package retrieve implements the retrieval coordinator (component L):
// routes a query to the keyword, vector or hybrid search path (plus the
// non-normative rrf/agentic variants), groups hits by group_id, ranks
// groups by importance, and attaches each group's original raw messages.
// It also owns the admin soft-delete path (spec §4.10).
package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"memoryd/internal/config"
	"memoryd/internal/embedding"
	"memoryd/internal/invertedindex"
	"memoryd/internal/llm"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
	"memoryd/internal/rerank"
	"memoryd/internal/store"
	"memoryd/internal/vectorindex"
)

// Method selects a retrieval path. Only Keyword, Vector and Hybrid are
// normative per spec §4.9; RRF and Agentic are supported but not required
// to be exhaustively correct.
type Method string

const (
	MethodKeyword Method = "keyword"
	MethodVector  Method = "vector"
	MethodHybrid  Method = "hybrid"
	MethodRRF     Method = "rrf"
	MethodAgentic Method = "agentic"
)

// Request is the RetrieveRequest shape of spec §4.9.
type Request struct {
	UserID      string
	GroupID     string // "" means search across every group the user appears in
	Query       string
	Method      Method
	TopK        int
	MemoryTypes []model.MemoryKind
	StartTime   *time.Time
	EndTime     *time.Time
	Radius      *float64
	RRFK        int // overrides config.RetrieveConfig.RRFK for this call
}

// Memory is one retrieved item: the parent MemCell's identity plus the
// text and score of whichever of its child records matched.
type Memory struct {
	EventID      string
	GroupID      string
	Kind         model.MemoryKind
	Text         string
	Score        float64
	SearchSource string // "keyword", "vector", or "keyword,vector"
	Subject      string
	Summary      string
	Timestamp    time.Time
}

// GroupResult is one group_id's slice of the response: its memories (sorted
// by timestamp ascending), their parallel scores, the group's importance,
// and the union of original raw messages its memories' parents cite.
type GroupResult struct {
	GroupID      string
	Memories     []Memory
	Scores       []float64
	Importance   float64
	OriginalData []model.RawMessage
}

// Response is the RetrieveResponse shape of spec §4.9, translated from its
// "list of {group_id: [...]}" wire shape into an ordered slice of
// GroupResult so group order (by importance) is explicit rather than
// relying on map iteration order.
type Response struct {
	Groups     []GroupResult
	TotalCount int
	Metadata   map[string]any
}

// Coordinator implements spec §4.9 and §4.10.
type Coordinator struct {
	vectors    vectorindex.Index
	inverted   invertedindex.Index
	embedder   embedding.Embedder
	reranker   rerank.Reranker
	chat       llm.Client // optional: enables the agentic query-expansion path
	memcells   *store.Store[model.MemCell]
	documents  *store.Store[model.EpisodicMemoryRecord]
	importance *store.Store[model.ImportanceEvidence]
	cfg        config.RetrieveConfig
	log        obslog.Logger
}

// NewCoordinator builds a Coordinator. chat may be nil: the agentic path
// then falls back to hybrid search.
func NewCoordinator(
	vectors vectorindex.Index,
	inverted invertedindex.Index,
	embedder embedding.Embedder,
	reranker rerank.Reranker,
	chat llm.Client,
	memcells *store.Store[model.MemCell],
	documents *store.Store[model.EpisodicMemoryRecord],
	importance *store.Store[model.ImportanceEvidence],
	cfg config.RetrieveConfig,
	log obslog.Logger,
) *Coordinator {
	if log == nil {
		log = obslog.NopLogger{}
	}
	return &Coordinator{
		vectors: vectors, inverted: inverted, embedder: embedder, reranker: reranker, chat: chat,
		memcells: memcells, documents: documents, importance: importance, cfg: cfg, log: log,
	}
}

// Retrieve runs spec §4.9's full routing, grouping and ranking pipeline.
func (c *Coordinator) Retrieve(ctx context.Context, req Request) (Response, error) {
	groupID := req.GroupID
	if groupID == "" {
		groupID = model.AllSentinel
	}
	filter := model.Filter{UserID: req.UserID, GroupID: groupID, StartTime: req.StartTime, EndTime: req.EndTime}
	if err := filter.Validate(); err != nil {
		return Response{}, fmt.Errorf("invalid filter: %w", err)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = c.cfg.DefaultTopK
	}
	if topK <= 0 {
		topK = 10
	}
	if cap := c.cfg.FetchLimitCap; cap > 0 && topK > cap {
		topK = cap
	}

	ranked, err := c.search(ctx, req, filter, topK)
	if err != nil {
		return Response{}, err
	}

	return c.assemble(ctx, req, ranked, topK)
}

func (c *Coordinator) search(ctx context.Context, req Request, filter model.Filter, topK int) ([]candidate, error) {
	switch req.Method {
	case MethodKeyword:
		return c.keywordSearch(ctx, req.Query, filter, topK)
	case MethodVector:
		return c.vectorSearch(ctx, req.Query, filter, topK, req.Radius)
	case MethodRRF:
		return c.rrfSearch(ctx, req, filter, topK)
	case MethodAgentic:
		return c.agenticSearch(ctx, req, filter, topK)
	default:
		return c.hybridSearch(ctx, req, filter, topK)
	}
}

// keywordSearch implements the keyword leg of spec §4.9: tokenize, strip
// stopwords and short tokens, submit as a multi-match.
func (c *Coordinator) keywordSearch(ctx context.Context, query string, filter model.Filter, topK int) ([]candidate, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	hits, err := c.inverted.MultiSearch(ctx, terms, filter, topK, 0)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	out := make([]candidate, len(hits))
	for i, h := range hits {
		out[i] = candidateFromHit(h, "keyword")
	}
	return out, nil
}

// vectorSearch implements the vector leg of spec §4.9: embed the query with
// is_query=true, ANN-search with a cosine-distance radius cutoff.
func (c *Coordinator) vectorSearch(ctx context.Context, query string, filter model.Filter, topK int, radius *float64) ([]candidate, error) {
	vecs, err := c.embedder.EmbedBatch(ctx, []string{query}, true)
	if err != nil || len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	r := radius
	if r == nil {
		d := c.cfg.DefaultRadius
		if d <= 0 {
			d = 0.6
		}
		r = &d
	}
	results, err := c.vectors.Search(ctx, vecs[0], filter, topK, r)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	out := make([]candidate, len(results))
	for i, res := range results {
		out[i] = candidateFromResult(res, "vector")
	}
	return out, nil
}

// hybridSearch implements spec §4.9's hybrid path: run both legs
// independently (in parallel), tag hits with their source, union them,
// rerank (falling back to native-score sort on rerank failure). Run over
// plain channels rather than errgroup.WithContext: errgroup's shared
// cancellation would abort the surviving leg the moment the other errors,
// defeating the "one sub-index failure falls back to the other" guarantee.
func (c *Coordinator) hybridSearch(ctx context.Context, req Request, filter model.Filter, topK int) ([]candidate, error) {
	type legResult struct {
		hits []candidate
		err  error
	}
	kwCh := make(chan legResult, 1)
	vecCh := make(chan legResult, 1)

	go func() {
		hits, err := c.keywordSearch(ctx, req.Query, filter, topK)
		kwCh <- legResult{hits, err}
	}()
	go func() {
		hits, err := c.vectorSearch(ctx, req.Query, filter, topK, req.Radius)
		vecCh <- legResult{hits, err}
	}()

	kw, vec := <-kwCh, <-vecCh
	if kw.err != nil {
		c.log.Warn("hybrid keyword leg failed, falling back to vector only", map[string]any{"error": kw.err.Error()})
	}
	if vec.err != nil {
		c.log.Warn("hybrid vector leg failed, falling back to keyword only", map[string]any{"error": vec.err.Error()})
	}
	if kw.err != nil && vec.err != nil {
		return nil, fmt.Errorf("hybrid search: both legs failed (keyword: %v, vector: %v)", kw.err, vec.err)
	}

	merged := mergeCandidates(kw.hits, vec.hits)
	return c.rerankOrFallback(ctx, req.Query, merged, topK)
}

// rerankOrFallback reranks merged against query, falling back to a
// native-score descending sort (spec §7's ProviderError degrade rule) when
// the reranker is unset, empty, or fails.
func (c *Coordinator) rerankOrFallback(ctx context.Context, query string, merged []candidate, topK int) ([]candidate, error) {
	if c.reranker == nil || len(merged) == 0 {
		return nativeSort(merged, topK), nil
	}
	passages := make([]string, len(merged))
	for i, cand := range merged {
		passages[i] = cand.text
	}
	results, err := c.reranker.Rerank(ctx, query, passages, rerank.Options{TopK: topK})
	if err != nil {
		c.log.Warn("rerank failed, falling back to native score", map[string]any{"error": err.Error()})
		return nativeSort(merged, topK), nil
	}
	out := make([]candidate, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(merged) {
			continue
		}
		cand := merged[r.Index]
		cand.nativeScore = r.Score
		out = append(out, cand)
	}
	return out, nil
}

func nativeSort(cands []candidate, topK int) []candidate {
	out := append([]candidate{}, cands...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].nativeScore > out[j].nativeScore })
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}

// rrfSearch runs keyword and vector independently and fuses them by
// Reciprocal Rank Fusion instead of reranking.
func (c *Coordinator) rrfSearch(ctx context.Context, req Request, filter model.Filter, topK int) ([]candidate, error) {
	kw, kwErr := c.keywordSearch(ctx, req.Query, filter, topK)
	if kwErr != nil {
		c.log.Warn("rrf keyword leg failed", map[string]any{"error": kwErr.Error()})
		kw = nil
	}
	vec, vecErr := c.vectorSearch(ctx, req.Query, filter, topK, req.Radius)
	if vecErr != nil {
		c.log.Warn("rrf vector leg failed", map[string]any{"error": vecErr.Error()})
		vec = nil
	}
	if kwErr != nil && vecErr != nil {
		return nil, fmt.Errorf("rrf search: both legs failed (keyword: %v, vector: %v)", kwErr, vecErr)
	}
	return rrfFuse(topK, c.rrfK(req.RRFK), kw, vec), nil
}

func (c *Coordinator) rrfK(reqK int) int {
	if reqK > 0 {
		return reqK
	}
	if c.cfg.RRFK > 0 {
		return c.cfg.RRFK
	}
	return 60
}

// rrfFuse combines ranked lists by Reciprocal Rank Fusion:
// score(id) = sum over lists containing id of 1/(k+rank+1).
func rrfFuse(topK, k int, lists ...[]candidate) []candidate {
	scores := map[string]float64{}
	reps := map[string]candidate{}
	var order []string
	for _, list := range lists {
		for rank, cand := range list {
			scores[cand.id] += 1.0 / float64(k+rank+1)
			if _, ok := reps[cand.id]; !ok {
				reps[cand.id] = cand
				order = append(order, cand.id)
			}
		}
	}
	out := make([]candidate, 0, len(order))
	for _, id := range order {
		cand := reps[id]
		cand.nativeScore = scores[id]
		out = append(out, cand)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].nativeScore > out[j].nativeScore })
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}

// agenticSearch expands the query into several phrasings via one LLM call,
// vector-searches each, and RRF-fuses the per-variant rankings. Falls back
// to hybrid search when no chat client is configured or expansion fails.
func (c *Coordinator) agenticSearch(ctx context.Context, req Request, filter model.Filter, topK int) ([]candidate, error) {
	if c.chat == nil {
		return c.hybridSearch(ctx, req, filter, topK)
	}
	variants, err := c.expandQuery(ctx, req.Query)
	if err != nil || len(variants) == 0 {
		reason := "no variants returned"
		if err != nil {
			reason = err.Error()
		}
		c.log.Warn("agentic query expansion unusable, falling back to hybrid", map[string]any{"reason": reason})
		return c.hybridSearch(ctx, req, filter, topK)
	}

	var lists [][]candidate
	for _, v := range variants {
		hits, err := c.vectorSearch(ctx, v, filter, topK, req.Radius)
		if err != nil {
			c.log.Warn("agentic sub-query failed", map[string]any{"query": v, "error": err.Error()})
			continue
		}
		lists = append(lists, hits)
	}
	if len(lists) == 0 {
		return c.hybridSearch(ctx, req, filter, topK)
	}
	return rrfFuse(topK, c.rrfK(req.RRFK), lists...), nil
}

func (c *Coordinator) expandQuery(ctx context.Context, query string) ([]string, error) {
	resp, err := c.chat.Complete(ctx, agenticExpansionSystemPrompt(), query)
	if err != nil {
		return nil, fmt.Errorf("query expansion call: %w", err)
	}
	return parseQueryVariants(resp)
}

func parseQueryVariants(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	start := strings.IndexByte(trimmed, '[')
	end := strings.LastIndexByte(trimmed, ']')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in query expansion response")
	}
	var variants []string
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &variants); err != nil {
		return nil, fmt.Errorf("unmarshal query variants: %w", err)
	}
	return variants, nil
}

func agenticExpansionSystemPrompt() string {
	return "Expand the user's search query into 3 alternative phrasings that " +
		"might match differently worded memories of the same thing, preserving " +
		"its intent. Respond with a JSON array of strings."
}

// assemble implements the post-scoring steps of spec §4.9: load each hit's
// parent MemCell, group by group_id, attach importance and original_data,
// sort groups by importance descending and each group's memories by
// timestamp ascending.
func (c *Coordinator) assemble(ctx context.Context, req Request, ranked []candidate, topK int) (Response, error) {
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}

	type groupAcc struct {
		groupID     string
		memories    []Memory
		scores      []float64
		seenParents map[string]bool
		rawSeen     map[string]bool
		original    []model.RawMessage
	}
	groups := map[string]*groupAcc{}
	var order []string

	for _, cand := range ranked {
		if cand.parentEventID == "" {
			continue
		}
		mc, ok, err := c.memcells.GetByID(ctx, cand.parentEventID)
		if err != nil {
			c.log.Error("load parent memcell failed", map[string]any{"parent_event_id": cand.parentEventID, "error": err.Error()})
			continue
		}
		if !ok || mc.Deleted {
			continue
		}

		g, exists := groups[mc.GroupID]
		if !exists {
			g = &groupAcc{groupID: mc.GroupID, seenParents: map[string]bool{}, rawSeen: map[string]bool{}}
			groups[mc.GroupID] = g
			order = append(order, mc.GroupID)
		}
		if g.seenParents[mc.EventID] {
			continue // a higher-ranked candidate already represented this parent
		}
		g.seenParents[mc.EventID] = true

		g.memories = append(g.memories, Memory{
			EventID: mc.EventID, GroupID: mc.GroupID, Kind: cand.kind, Text: cand.text,
			Score: cand.nativeScore, SearchSource: searchSourceLabel(cand.sources),
			Subject: mc.Subject, Summary: mc.Summary, Timestamp: mc.Timestamp,
		})
		g.scores = append(g.scores, cand.nativeScore)

		for _, raw := range mc.OriginalData {
			key := raw.GroupID + "|" + raw.MessageID
			if g.rawSeen[key] {
				continue
			}
			g.rawSeen[key] = true
			g.original = append(g.original, raw)
		}
	}

	results := make([]GroupResult, 0, len(order))
	total := 0
	for _, gid := range order {
		g := groups[gid]
		sortGroupByTimestamp(g.memories, g.scores)
		results = append(results, GroupResult{
			GroupID: gid, Memories: g.memories, Scores: g.scores,
			Importance: c.importanceOf(ctx, req.UserID, gid), OriginalData: g.original,
		})
		total += len(g.memories)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Importance > results[j].Importance })

	return Response{Groups: results, TotalCount: total, Metadata: map[string]any{"method": string(req.Method)}}, nil
}

func sortGroupByTimestamp(memories []Memory, scores []float64) {
	idx := make([]int, len(memories))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return memories[idx[a]].Timestamp.Before(memories[idx[b]].Timestamp) })
	sortedM := make([]Memory, len(memories))
	sortedS := make([]float64, len(scores))
	for i, id := range idx {
		sortedM[i] = memories[id]
		sortedS[i] = scores[id]
	}
	copy(memories, sortedM)
	copy(scores, sortedS)
}

func (c *Coordinator) importanceOf(ctx context.Context, userID, groupID string) float64 {
	if c.importance == nil {
		return 0
	}
	ev, ok, err := c.importance.GetByID(ctx, userID+"|"+groupID)
	if err != nil || !ok {
		return 0
	}
	return ev.Importance()
}

// candidate is the common shape a keyword or vector hit is normalized to
// before merging/reranking/fusing.
type candidate struct {
	id            string
	parentEventID string
	kind          model.MemoryKind
	text          string
	nativeScore   float64
	sources       map[string]bool
}

func candidateFromResult(res vectorindex.Result, source string) candidate {
	return candidate{
		id: res.ID, parentEventID: res.Scalars["parent_event_id"],
		kind: model.MemoryKind(res.Scalars["memory_sub_type"]), text: res.Scalars["search_content"],
		nativeScore: res.Score, sources: map[string]bool{source: true},
	}
}

func candidateFromHit(hit invertedindex.Hit, source string) candidate {
	parentID, _ := hit.Source["parent_event_id"].(string)
	subType, _ := hit.Source["memory_sub_type"].(string)
	return candidate{
		id: hit.ID, parentEventID: parentID, kind: model.MemoryKind(subType),
		text: joinSearchContent(hit.Source["search_content"]), nativeScore: hit.Score,
		sources: map[string]bool{source: true},
	}
}

func joinSearchContent(v any) string {
	parts, ok := v.([]string)
	if !ok {
		return ""
	}
	return strings.Join(parts, "\n")
}

// mergeCandidates unions lists by id, merging each duplicate's sources and
// keeping its higher native score.
func mergeCandidates(lists ...[]candidate) []candidate {
	byID := map[string]candidate{}
	var order []string
	for _, list := range lists {
		for _, cand := range list {
			existing, ok := byID[cand.id]
			if !ok {
				cp := cand
				cp.sources = map[string]bool{}
				for src := range cand.sources {
					cp.sources[src] = true
				}
				byID[cand.id] = cp
				order = append(order, cand.id)
				continue
			}
			for src := range cand.sources {
				existing.sources[src] = true
			}
			if cand.nativeScore > existing.nativeScore {
				existing.nativeScore = cand.nativeScore
			}
			byID[cand.id] = existing
		}
	}
	out := make([]candidate, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func searchSourceLabel(sources map[string]bool) string {
	labels := make([]string, 0, len(sources))
	for k := range sources {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return strings.Join(labels, ",")
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true, "to": true,
	"in": true, "on": true, "is": true, "it": true, "for": true, "with": true, "was": true,
	"are": true, "this": true, "that": true, "at": true, "by": true, "be": true,
}

// tokenize lowercases query, splits on runs of non-letter/non-digit
// characters, and drops stopwords and tokens shorter than 2 characters, per
// spec §4.9's keyword routing.
func tokenize(query string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		t := cur.String()
		cur.Reset()
		if len(t) < 2 || stopwords[t] {
			return
		}
		tokens = append(tokens, t)
	}
	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// DeleteRequest is the admin soft-delete request shape of spec §4.10. Each
// field defaults to model.AllSentinel; at least one must be a real value.
type DeleteRequest struct {
	EventID string
	UserID  string
	GroupID string
}

// DeleteResult reports which filters were actually applied and how many
// MemCells were soft-deleted.
type DeleteResult struct {
	Filters []string
	Count   int
}

// Delete implements spec §4.10: soft-delete matching MemCells, then
// best-effort cascade the soft-delete to their children's vector and
// inverted index entries by parent_event_id.
func (c *Coordinator) Delete(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	eventID := defaultAll(req.EventID)
	userID := defaultAll(req.UserID)
	groupID := defaultAll(req.GroupID)
	if eventID == model.AllSentinel && userID == model.AllSentinel && groupID == model.AllSentinel {
		return DeleteResult{}, fmt.Errorf("soft delete requires at least one filter other than %q", model.AllSentinel)
	}

	targets, err := c.matchingMemCells(ctx, eventID, userID, groupID)
	if err != nil {
		return DeleteResult{}, err
	}

	result := DeleteResult{Filters: appliedFilters(eventID, userID, groupID)}
	if len(targets) == 0 {
		return result, nil
	}

	ids := make([]string, len(targets))
	for i, mc := range targets {
		ids[i] = mc.EventID
	}
	if err := c.memcells.SoftDelete(ctx, ids); err != nil {
		return DeleteResult{}, fmt.Errorf("soft delete memcells: %w", err)
	}
	result.Count = len(ids)

	c.cascadeDelete(ctx, ids)
	return result, nil
}

func (c *Coordinator) matchingMemCells(ctx context.Context, eventID, userID, groupID string) ([]model.MemCell, error) {
	if eventID != model.AllSentinel {
		mc, ok, err := c.memcells.GetByID(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("load memcell %s: %w", eventID, err)
		}
		if !ok || !matchesUserGroup(mc, userID, groupID) {
			return nil, nil
		}
		return []model.MemCell{mc}, nil
	}

	filter := model.Filter{UserID: userID, GroupID: groupID}
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	limit := c.cfg.FetchLimitCap
	if limit <= 0 {
		limit = 500
	}
	page, _, err := c.memcells.FindManyPaged(ctx, filter, store.SortSpec{}, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("find matching memcells: %w", err)
	}
	return page, nil
}

func matchesUserGroup(mc model.MemCell, userID, groupID string) bool {
	if userID != model.AllSentinel && mc.UserID != userID {
		return false
	}
	if groupID != model.AllSentinel && mc.GroupID != groupID {
		return false
	}
	return true
}

// cascadeDelete best-effort soft-deletes every EpisodicMemoryRecord whose
// parent_event_id is in parentIDs from the document store, vector index and
// inverted index. Failures are logged, never escalated: the admin call
// already succeeded once the parent MemCells were soft-deleted.
func (c *Coordinator) cascadeDelete(ctx context.Context, parentIDs []string) {
	for _, parentID := range parentIDs {
		children, err := c.documents.GetByFieldEq(ctx, "parent_event_id", parentID)
		if err != nil {
			c.log.Error("cascade delete: load children failed", map[string]any{"parent_event_id": parentID, "error": err.Error()})
			continue
		}
		if len(children) == 0 {
			continue
		}
		childIDs := make([]string, len(children))
		for i, rec := range children {
			childIDs[i] = rec.ID
		}
		if err := c.documents.SoftDelete(ctx, childIDs); err != nil {
			c.log.Error("cascade delete: document store soft delete failed", map[string]any{"parent_event_id": parentID, "error": err.Error()})
		}
		if err := c.vectors.Delete(ctx, childIDs); err != nil {
			c.log.Error("cascade delete: vector index delete failed", map[string]any{"parent_event_id": parentID, "error": err.Error()})
		}
		if err := c.inverted.Delete(ctx, childIDs); err != nil {
			c.log.Error("cascade delete: inverted index delete failed", map[string]any{"parent_event_id": parentID, "error": err.Error()})
		}
	}
}

func defaultAll(v string) string {
	if v == "" {
		return model.AllSentinel
	}
	return v
}

func appliedFilters(eventID, userID, groupID string) []string {
	var out []string
	if eventID != model.AllSentinel {
		out = append(out, "event_id")
	}
	if userID != model.AllSentinel {
		out = append(out, "user_id")
	}
	if groupID != model.AllSentinel {
		out = append(out, "group_id")
	}
	return out
}
