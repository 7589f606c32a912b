// Package report produces the human-readable heuristic summary from
// read-only aggregate SQL over the primary store.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
)

// CategoryCount is a removal count grouped by remover class.
type CategoryCount struct {
	Category string `db:"category" json:"category"`
	Count    int    `db:"cnt" json:"count"`
}

// GroupRemoval is per-domain or per-flair removal stats.
type GroupRemoval struct {
	Key     string `db:"key" json:"key"`
	Total   int    `db:"total" json:"total"`
	Removed int    `db:"removed" json:"removed"`
}

// Report aggregates moderation activity inside a window.
type Report struct {
	Since            int64           `json:"since"`
	TotalPosts       int             `json:"total_posts"`
	RemovedPosts     int             `json:"removed_posts"`
	LockedPosts      int             `json:"locked_posts"`
	RemovedComments  int             `json:"removed_comments"`
	AvgSecsToRemoval int64           `json:"avg_seconds_to_removal"`
	ByCategory       []CategoryCount `json:"by_category"`
	ByDomain         []GroupRemoval  `json:"by_domain"`
	ByFlair          []GroupRemoval  `json:"by_flair"`
}

// Build runs the aggregate queries for posts created at or after since.
func Build(ctx context.Context, db *sqlx.DB, since int64) (*Report, error) {
	r := &Report{Since: since}

	err := db.GetContext(ctx, &r.TotalPosts,
		"SELECT COUNT(*) FROM posts WHERE created_utc >= ?", since)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	err = db.GetContext(ctx, &r.RemovedPosts,
		"SELECT COUNT(*) FROM posts WHERE created_utc >= ? AND removed_at IS NOT NULL", since)
	if err != nil {
		return nil, fmt.Errorf("count removed posts: %w", err)
	}

	err = db.GetContext(ctx, &r.LockedPosts,
		"SELECT COUNT(*) FROM posts WHERE created_utc >= ? AND locked_at IS NOT NULL", since)
	if err != nil {
		return nil, fmt.Errorf("count locked posts: %w", err)
	}

	err = db.GetContext(ctx, &r.RemovedComments,
		"SELECT COUNT(*) FROM comments WHERE created_utc >= ? AND removed_by_category IS NOT NULL", since)
	if err != nil {
		return nil, fmt.Errorf("count removed comments: %w", err)
	}

	err = db.GetContext(ctx, &r.AvgSecsToRemoval, `
		SELECT CAST(COALESCE(AVG(removed_at - created_utc), 0) AS INTEGER)
		FROM posts WHERE created_utc >= ? AND removed_at IS NOT NULL`, since)
	if err != nil {
		return nil, fmt.Errorf("avg time to removal: %w", err)
	}

	err = db.SelectContext(ctx, &r.ByCategory, `
		SELECT removed_by_category AS category, COUNT(*) AS cnt
		FROM posts
		WHERE created_utc >= ? AND removed_by_category IS NOT NULL
		GROUP BY removed_by_category ORDER BY cnt DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("removals by category: %w", err)
	}

	err = db.SelectContext(ctx, &r.ByDomain, `
		SELECT domain AS key, COUNT(*) AS total,
		       SUM(CASE WHEN removed_at IS NOT NULL THEN 1 ELSE 0 END) AS removed
		FROM posts
		WHERE created_utc >= ? AND domain IS NOT NULL
		GROUP BY domain ORDER BY removed DESC, total DESC LIMIT 20`, since)
	if err != nil {
		return nil, fmt.Errorf("removals by domain: %w", err)
	}

	err = db.SelectContext(ctx, &r.ByFlair, `
		SELECT flair AS key, COUNT(*) AS total,
		       SUM(CASE WHEN removed_at IS NOT NULL THEN 1 ELSE 0 END) AS removed
		FROM posts
		WHERE created_utc >= ? AND flair IS NOT NULL
		GROUP BY flair ORDER BY removed DESC, total DESC LIMIT 20`, since)
	if err != nil {
		return nil, fmt.Errorf("removals by flair: %w", err)
	}

	return r, nil
}

// WriteText renders the report as an aligned text table.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "posts tracked:\t%d\n", r.TotalPosts)
	fmt.Fprintf(tw, "posts removed:\t%d\n", r.RemovedPosts)
	fmt.Fprintf(tw, "posts locked:\t%d\n", r.LockedPosts)
	fmt.Fprintf(tw, "comments removed:\t%d\n", r.RemovedComments)
	fmt.Fprintf(tw, "avg time to removal:\t%ds\n", r.AvgSecsToRemoval)

	if len(r.ByCategory) > 0 {
		fmt.Fprintf(tw, "\nremovals by category\n")
		for _, c := range r.ByCategory {
			fmt.Fprintf(tw, "  %s\t%d\n", c.Category, c.Count)
		}
	}
	if len(r.ByDomain) > 0 {
		fmt.Fprintf(tw, "\ndomain\ttotal\tremoved\n")
		for _, g := range r.ByDomain {
			fmt.Fprintf(tw, "  %s\t%d\t%d\n", g.Key, g.Total, g.Removed)
		}
	}
	if len(r.ByFlair) > 0 {
		fmt.Fprintf(tw, "\nflair\ttotal\tremoved\n")
		for _, g := range r.ByFlair {
			fmt.Fprintf(tw, "  %s\t%d\t%d\n", g.Key, g.Total, g.Removed)
		}
	}
	return tw.Flush()
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
