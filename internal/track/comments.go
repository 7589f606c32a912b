package track

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/modtrack/modtrack/internal/reddit"
	"github.com/modtrack/modtrack/pkg/telemetry"
)

// FetchComments fetches and merges comment trees for a set of parent
// posts and runs every comment through the pipeline. Returns how many
// comments were persisted.
//
// Posts are processed in groups of the configured concurrency: all
// fetches in a group run in parallel and the whole group is awaited
// before the next starts. Per-post fetch failures are logged and skipped;
// only credential and primary-store failures propagate.
//
// When extraSort is given, each post's tree is fetched under the default
// sort and again under extraSort; the two are merged by identifier with
// the later fetch winning field conflicts. The RunState guard ensures a
// comment's series grows by at most one entry per run no matter how many
// trees it appears in.
func (e *Engine) FetchComments(ctx context.Context, postIDs []string, phase, extraSort string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "track.fetch_comments")
	defer span.End()

	logger := e.logger.With(zap.String("phase", phase))
	now := e.now()

	limit := e.cfg.CommentLimit
	if phase == "recheck" {
		limit = e.cfg.RecheckLimit
	}

	width := e.cfg.Concurrency
	if width <= 0 {
		width = 1
	}

	total := 0
	for groupStart := 0; groupStart < len(postIDs); groupStart += width {
		groupEnd := groupStart + width
		if groupEnd > len(postIDs) {
			groupEnd = len(postIDs)
		}
		group := postIDs[groupStart:groupEnd]

		type fetchResult struct {
			postID string
			recs   []reddit.CommentRecord
			err    error
		}
		results := make([]fetchResult, len(group))

		var wg sync.WaitGroup
		for i, postID := range group {
			wg.Add(1)
			go func(i int, postID string) {
				defer wg.Done()
				recs, err := e.fetchMergedTree(ctx, postID, extraSort, limit)
				results[i] = fetchResult{postID: postID, recs: recs, err: err}
			}(i, postID)
		}
		wg.Wait()

		for _, res := range results {
			if res.err != nil {
				var authErr *reddit.AuthError
				if errors.As(res.err, &authErr) {
					return total, res.err
				}
				logger.Warn("Comment tree fetch failed",
					zap.String("post_id", res.postID), zap.Error(res.err))
				continue
			}

			for _, rec := range res.recs {
				bump := e.run.MarkBumped(rec.ID)

				draft := reddit.NormalizeComment(rec)
				prev, err := e.reader.GetComment(ctx, draft.ID)
				if err != nil {
					return total, err
				}

				row := ReconcileComment(prev, draft, now, e.series, bump)
				if err := e.sink.PersistComment(ctx, &row); err != nil {
					return total, err
				}
				total++
			}
		}
	}

	return total, nil
}

// fetchMergedTree fetches the default-sort tree and, when extraSort is
// given, the extra-sort tree, merging them by comment id.
func (e *Engine) fetchMergedTree(ctx context.Context, postID, extraSort string, limit int) ([]reddit.CommentRecord, error) {
	recs, err := e.api.CommentTree(ctx, postID, "", limit)
	if err != nil {
		return nil, err
	}
	if extraSort == "" {
		return recs, nil
	}

	extra, err := e.api.CommentTree(ctx, postID, extraSort, limit)
	if err != nil {
		var authErr *reddit.AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		// The default-sort tree alone is still worth persisting.
		e.logger.Warn("Extra sort fetch failed, using default sort only",
			zap.String("post_id", postID), zap.String("sort", extraSort), zap.Error(err))
		return recs, nil
	}

	return mergeComments(recs, extra), nil
}

// mergeComments unions two flattened trees by identifier; entries from
// the second fetch overwrite matching ids from the first.
func mergeComments(first, second []reddit.CommentRecord) []reddit.CommentRecord {
	out := make([]reddit.CommentRecord, len(first))
	copy(out, first)

	index := make(map[string]int, len(out))
	for i, rec := range out {
		index[rec.ID] = i
	}
	for _, rec := range second {
		if i, ok := index[rec.ID]; ok {
			out[i] = rec
		} else {
			index[rec.ID] = len(out)
			out = append(out, rec)
		}
	}
	return out
}
