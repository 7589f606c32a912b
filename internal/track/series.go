package track

// Default dedup key sets. The observation timestamp is deliberately not
// a key: two adjacent snapshots that differ only in when they were taken
// carry no information and collapse to one.
var (
	PostDedupKeys    = []string{"score", "upvote_ratio", "num_comments", "locked", "removed"}
	CommentDedupKeys = []string{"score"}
)

type seriesEntry[E any] interface {
	FieldsEqual(E, []string) bool
}

// AppendSeries appends entry to prev, returning the updated series.
//
// When dedup is on and entry equals the last stored entry on every dedup
// key, prev is returned unchanged. When maxLen > 0 and the result would
// exceed it, the oldest entries are dropped from the front; maxLen == 0
// means unbounded. The input slice is never mutated, so the same inputs
// always produce the same output.
func AppendSeries[E seriesEntry[E]](prev []E, entry E, dedupKeys []string, maxLen int, dedup bool) []E {
	if dedup && len(prev) > 0 && entry.FieldsEqual(prev[len(prev)-1], dedupKeys) {
		return prev
	}
	out := make([]E, 0, len(prev)+1)
	out = append(out, prev...)
	out = append(out, entry)
	if maxLen > 0 && len(out) > maxLen {
		out = out[len(out)-maxLen:]
	}
	return out
}
