package track

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/modtrack/modtrack/internal/reddit"
	"github.com/modtrack/modtrack/pkg/telemetry"
)

const listingPageSize = 100

// Scan walks the subreddit's newest-first feed and runs every in-window
// post through the pipeline, then fetches comment trees for posts seen
// for the first time.
//
// The feed is time-ordered, so the first record older than the window
// start ends pagination; records newer than the window end are skipped
// without ending it, because concurrent posting means a late item does
// not imply everything after the cursor is late too.
func (e *Engine) Scan(ctx context.Context) (ScanStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "track.scan")
	defer span.End()

	var stats ScanStats
	now := e.now()
	start, end := e.cfg.Window(now)
	if end < start {
		// Valid no-op window, not an error.
		e.logger.Info("Empty scan window, nothing to do",
			zap.Int64("start", start), zap.Int64("end", end))
		return stats, nil
	}

	e.logger.Info("Starting discovery scan",
		zap.String("subreddit", e.cfg.Subreddit),
		zap.Int64("window_start", start), zap.Int64("window_end", end))

	var newIDs []string
	after := ""

paging:
	for e.cfg.MaxPages <= 0 || stats.Pages < e.cfg.MaxPages {
		listing, err := e.api.NewPosts(ctx, e.cfg.Subreddit, after, listingPageSize)
		if err != nil {
			var authErr *reddit.AuthError
			if errors.As(err, &authErr) {
				return stats, err
			}
			// A dead page loses the cursor; the next scheduled run will
			// cover the gap, and recheck still runs below.
			e.logger.Warn("Listing page fetch failed, ending pagination",
				zap.Int("page", stats.Pages), zap.Error(err))
			break
		}
		stats.Pages++

		for _, rec := range listing.Posts() {
			created := int64(rec.CreatedUTC)
			if created < start {
				break paging
			}
			if created > end {
				continue
			}

			isNew, err := e.processPost(ctx, rec, now)
			if err != nil {
				return stats, err
			}
			stats.Posts++
			if isNew {
				stats.NewPosts++
				newIDs = append(newIDs, rec.ID)
			}
			if e.cfg.MaxItems > 0 && stats.Posts >= e.cfg.MaxItems {
				break paging
			}
		}

		after = listing.Data.After
		if after == "" {
			break
		}
	}

	if e.cfg.FetchComments && len(newIDs) > 0 {
		n, err := e.FetchComments(ctx, newIDs, "scan", "")
		stats.Comments = n
		if err != nil {
			return stats, err
		}
	}

	e.logger.Info("Discovery scan finished",
		zap.Int("pages", stats.Pages), zap.Int("posts", stats.Posts),
		zap.Int("new_posts", stats.NewPosts), zap.Int("comments", stats.Comments))

	return stats, nil
}
