package model

// ProfileSource pairs an episode id with the timestamp it was observed at,
// so a profile item's provenance survives compaction.
type ProfileSource struct {
	EpisodeID string `json:"episode_id"`
	Timestamp int64  `json:"timestamp"`
}

// ProfileItem is one explicit-info or implicit-trait entry in the life/v2
// profile shape.
type ProfileItem struct {
	// Category holds the explicit_info category, or the implicit_traits
	// trait name, depending on which slice the item lives in.
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Evidence    string          `json:"evidence,omitempty"`
	Sources     []ProfileSource `json:"sources,omitempty"`
}

// Profile is a user's running digest. Legacy v1 attributes are kept
// alongside the life/v2 shape so older readers keep working; new writes
// only touch v2 fields.
type Profile struct {
	UserID         string        `json:"user_id"`
	Skills         []string      `json:"skills,omitempty"`       // v1 legacy
	Motivations    []string      `json:"motivations,omitempty"`  // v1 legacy
	ExplicitInfo   []ProfileItem `json:"explicit_info,omitempty"`
	ImplicitTraits []ProfileItem `json:"implicit_traits,omitempty"`
	// ProcessedEpisodeIDs is append-only and deduplicates reprocessing of
	// the same episode by the profile manager.
	ProcessedEpisodeIDs []string       `json:"processed_episode_ids,omitempty"`
	CustomProfileData   map[string]any `json:"custom_profile_data,omitempty"`
	Version             int            `json:"version"`
}

// TotalItems returns len(ExplicitInfo) + len(ImplicitTraits), the quantity
// the profile manager's capacity invariant is defined over.
func (p *Profile) TotalItems() int {
	return len(p.ExplicitInfo) + len(p.ImplicitTraits)
}

// HasProcessed reports whether episodeID has already been folded into this
// profile, making extraction against it idempotent.
func (p *Profile) HasProcessed(episodeID string) bool {
	for _, id := range p.ProcessedEpisodeIDs {
		if id == episodeID {
			return true
		}
	}
	return false
}

// ImportanceEvidence is the aggregated per-user-per-group activity used by
// retrieval to rank groups.
type ImportanceEvidence struct {
	UserID            string `json:"user_id"`
	GroupID           string `json:"group_id"`
	SpeakCount        int64  `json:"speak_count"`
	ReferCount        int64  `json:"refer_count"`
	ConversationCount int64  `json:"conversation_count"`
}

// Importance computes (speak_count + refer_count) / conversation_count,
// or 0 when the denominator is 0.
func (e ImportanceEvidence) Importance() float64 {
	if e.ConversationCount == 0 {
		return 0
	}
	return float64(e.SpeakCount+e.ReferCount) / float64(e.ConversationCount)
}

// ClusterState is a group's running clustering of MemCell embeddings,
// maintained by the profile manager and persisted atomically as a whole.
type ClusterState struct {
	GroupID           string             `json:"group_id"`
	EventIDs          []string           `json:"event_ids"`
	Timestamps        []int64            `json:"timestamps"`
	ClusterIDs        []int              `json:"cluster_ids"`
	EventIDToCluster  map[string]int     `json:"eventid_to_cluster"`
	ClusterCentroids  map[int][]float32  `json:"cluster_centroids"`
	ClusterCounts     map[int]int        `json:"cluster_counts"`
	ClusterLastTS     map[int]int64      `json:"cluster_last_ts"`
	NextClusterIdx    int                `json:"next_cluster_idx"`
}
