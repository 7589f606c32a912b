package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/modtrack/modtrack/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
    id                  TEXT PRIMARY KEY,
    subreddit           TEXT NOT NULL,
    title               TEXT NOT NULL,
    title_norm          TEXT NOT NULL,
    author              TEXT NOT NULL,
    distinguished       TEXT,
    created_utc         INTEGER NOT NULL,
    score               INTEGER NOT NULL DEFAULT 0,
    upvote_ratio        REAL NOT NULL DEFAULT 0,
    num_comments        INTEGER NOT NULL DEFAULT 0,
    permalink           TEXT NOT NULL,
    url                 TEXT,
    selftext            TEXT,
    domain              TEXT,
    flair               TEXT,
    is_self             BOOLEAN NOT NULL DEFAULT 0,
    crosspost_parent_id TEXT,
    edited_utc          INTEGER,
    removed_by_category TEXT,
    locked              BOOLEAN NOT NULL DEFAULT 0,
    first_seen          INTEGER NOT NULL,
    removed_at          INTEGER,
    locked_at           INTEGER,
    last_checked        INTEGER NOT NULL,
    series              TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_utc);
CREATE INDEX IF NOT EXISTS idx_posts_flair ON posts(flair);
CREATE INDEX IF NOT EXISTS idx_posts_domain ON posts(domain);

CREATE TABLE IF NOT EXISTS comments (
    id                  TEXT PRIMARY KEY,
    post_id             TEXT NOT NULL,
    parent_id           TEXT NOT NULL,
    author              TEXT NOT NULL,
    body                TEXT NOT NULL,
    score               INTEGER NOT NULL DEFAULT 0,
    created_utc         INTEGER NOT NULL,
    edited_utc          INTEGER,
    removed_by_category TEXT,
    distinguished       TEXT,
    is_submitter        BOOLEAN NOT NULL DEFAULT 0,
    collapsed_reason    TEXT,
    last_checked        INTEGER NOT NULL,
    series              TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id);
CREATE INDEX IF NOT EXISTS idx_comments_created ON comments(created_utc);
`

// Primary is the sqlite system of record. Every upsert is a single
// statement, so interrupted runs leave each row either fully old or
// fully new. The COALESCE merge on first_seen/removed_at/locked_at is a
// storage-level safety net behind the tracker's in-memory reconcile.
type Primary struct {
	db *sqlx.DB
}

// OpenPrimary opens the sqlite database and applies the schema.
func OpenPrimary(path string) (*Primary, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Primary{db: db}, nil
}

// Close closes the database
func (p *Primary) Close() error {
	return p.db.Close()
}

// DB exposes the underlying handle for read-only reporting queries.
func (p *Primary) DB() *sqlx.DB {
	return p.db
}

// UpsertPost inserts or updates one post row keyed by id.
func (p *Primary) UpsertPost(ctx context.Context, post *models.Post) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO posts (
			id, subreddit, title, title_norm, author, distinguished, created_utc,
			score, upvote_ratio, num_comments, permalink, url, selftext, domain,
			flair, is_self, crosspost_parent_id, edited_utc, removed_by_category,
			locked, first_seen, removed_at, locked_at, last_checked, series
		) VALUES (
			:id, :subreddit, :title, :title_norm, :author, :distinguished, :created_utc,
			:score, :upvote_ratio, :num_comments, :permalink, :url, :selftext, :domain,
			:flair, :is_self, :crosspost_parent_id, :edited_utc, :removed_by_category,
			:locked, :first_seen, :removed_at, :locked_at, :last_checked, :series
		)
		ON CONFLICT(id) DO UPDATE SET
			subreddit           = excluded.subreddit,
			title               = excluded.title,
			title_norm          = excluded.title_norm,
			author              = excluded.author,
			distinguished       = excluded.distinguished,
			created_utc         = excluded.created_utc,
			score               = excluded.score,
			upvote_ratio        = excluded.upvote_ratio,
			num_comments        = excluded.num_comments,
			permalink           = excluded.permalink,
			url                 = excluded.url,
			selftext            = excluded.selftext,
			domain              = excluded.domain,
			flair               = excluded.flair,
			is_self             = excluded.is_self,
			crosspost_parent_id = excluded.crosspost_parent_id,
			edited_utc          = excluded.edited_utc,
			removed_by_category = excluded.removed_by_category,
			locked              = excluded.locked,
			first_seen          = COALESCE(posts.first_seen, excluded.first_seen),
			removed_at          = COALESCE(posts.removed_at, excluded.removed_at),
			locked_at           = COALESCE(posts.locked_at, excluded.locked_at),
			last_checked        = excluded.last_checked,
			series              = excluded.series
	`, post)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", post.ID, err)
	}
	return nil
}

// GetPost retrieves a post by id, nil when absent.
func (p *Primary) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := p.db.GetContext(ctx, &post, "SELECT * FROM posts WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	return &post, nil
}

// PostIDsSince returns the ids of posts created at or after since,
// newest first.
func (p *Primary) PostIDsSince(ctx context.Context, since int64) ([]string, error) {
	var ids []string
	err := p.db.SelectContext(ctx, &ids,
		"SELECT id FROM posts WHERE created_utc >= ? ORDER BY created_utc DESC", since)
	if err != nil {
		return nil, fmt.Errorf("post ids since %d: %w", since, err)
	}
	return ids, nil
}

// UpsertComment inserts or updates one comment row keyed by id.
func (p *Primary) UpsertComment(ctx context.Context, c *models.Comment) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO comments (
			id, post_id, parent_id, author, body, score, created_utc, edited_utc,
			removed_by_category, distinguished, is_submitter, collapsed_reason,
			last_checked, series
		) VALUES (
			:id, :post_id, :parent_id, :author, :body, :score, :created_utc, :edited_utc,
			:removed_by_category, :distinguished, :is_submitter, :collapsed_reason,
			:last_checked, :series
		)
		ON CONFLICT(id) DO UPDATE SET
			post_id             = excluded.post_id,
			parent_id           = excluded.parent_id,
			author              = excluded.author,
			body                = excluded.body,
			score               = excluded.score,
			created_utc         = excluded.created_utc,
			edited_utc          = excluded.edited_utc,
			removed_by_category = excluded.removed_by_category,
			distinguished       = excluded.distinguished,
			is_submitter        = excluded.is_submitter,
			collapsed_reason    = excluded.collapsed_reason,
			last_checked        = excluded.last_checked,
			series              = excluded.series
	`, c)
	if err != nil {
		return fmt.Errorf("upsert comment %s: %w", c.ID, err)
	}
	return nil
}

// GetComment retrieves a comment by id, nil when absent.
func (p *Primary) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	if err := p.db.GetContext(ctx, &c, "SELECT * FROM comments WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get comment %s: %w", id, err)
	}
	return &c, nil
}
