package track

import (
	"github.com/modtrack/modtrack/internal/models"
	"github.com/modtrack/modtrack/pkg/config"
)

// ReconcilePost merges a previously persisted row (nil on first
// observation) with a fresh observation into the row to persist. Pure
// function of its inputs: no clock reads, no I/O.
//
// first_seen is set once and carried forward. removed_at and locked_at
// timestamp the first not-removed→removed / not-locked→locked transition
// and are never cleared or moved by later observations, even when the
// item is observed un-removed or unlocked again. Every other field takes
// the fresh observation's value.
func ReconcilePost(prev *models.Post, fresh models.Post, now int64, series config.SeriesConfig) models.Post {
	row := fresh
	row.LastChecked = now

	var base models.PostSeries
	if prev == nil {
		row.FirstSeen = now
	} else {
		base = prev.Series
		row.FirstSeen = prev.FirstSeen

		row.RemovedAt = prev.RemovedAt
		if prev.RemovedAt == nil && prev.RemovedByCategory == nil && fresh.RemovedByCategory != nil {
			ts := now
			row.RemovedAt = &ts
		}

		row.LockedAt = prev.LockedAt
		if prev.LockedAt == nil && !prev.Locked && fresh.Locked {
			ts := now
			row.LockedAt = &ts
		}
	}

	row.Series = AppendSeries(base, row.Snapshot(now), PostDedupKeys, series.PostMaxLen, series.PostDedup)
	return row
}

// ReconcileComment merges a previously persisted comment with a fresh
// observation. Comments carry no transition timestamps; all fields are
// last-write-wins. bump controls whether this observation may append to
// the series: the comment-tree fetcher grants it at most once per run
// per identifier via the RunState guard.
func ReconcileComment(prev *models.Comment, fresh models.Comment, now int64, series config.SeriesConfig, bump bool) models.Comment {
	row := fresh
	row.LastChecked = now

	var base models.CommentSeries
	if prev != nil {
		base = prev.Series
	}
	if bump {
		row.Series = AppendSeries(base, row.Snapshot(now), CommentDedupKeys, series.CommentMaxLen, series.CommentDedup)
	} else {
		row.Series = base
	}
	return row
}
