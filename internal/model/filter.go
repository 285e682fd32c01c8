package model

import (
	"fmt"
	"time"
)

// AllSentinel is the magic value meaning "do not filter on this field",
// accepted on UserID/GroupID by the document store, vector index and
// inverted index adapters (spec §4.3). The ingest path never supplies it;
// only retrieval and admin-delete paths do.
const AllSentinel = "__all__"

// Filter is the common filter shape shared by the document store, vector
// index and inverted index adapters: equality on UserID/GroupID (or
// AllSentinel to skip that field) and a closed-interval range on
// timestamp.
type Filter struct {
	UserID    string
	GroupID   string
	StartTime *time.Time
	EndTime   *time.Time
}

// Validate enforces spec §4.3's "at most one of user_id/group_id may be
// __all__ per query" invariant.
func (f Filter) Validate() error {
	if f.UserID == AllSentinel && f.GroupID == AllSentinel {
		return fmt.Errorf("filter: user_id and group_id cannot both be %q", AllSentinel)
	}
	return nil
}

// MatchesUserID reports whether v satisfies the filter's UserID clause.
func (f Filter) MatchesUserID(v string) bool {
	return f.UserID == "" || f.UserID == AllSentinel || f.UserID == v
}

// MatchesGroupID reports whether v satisfies the filter's GroupID clause.
func (f Filter) MatchesGroupID(v string) bool {
	return f.GroupID == "" || f.GroupID == AllSentinel || f.GroupID == v
}

// MatchesTimestamp reports whether t falls within the filter's closed
// interval, when set.
func (f Filter) MatchesTimestamp(t time.Time) bool {
	if f.StartTime != nil && t.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && t.After(*f.EndTime) {
		return false
	}
	return true
}

// Matches applies UserID, GroupID and timestamp clauses together.
func (f Filter) Matches(userID, groupID string, ts time.Time) bool {
	return f.MatchesUserID(userID) && f.MatchesGroupID(groupID) && f.MatchesTimestamp(ts)
}
