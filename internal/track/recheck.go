package track

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/modtrack/modtrack/internal/reddit"
	"github.com/modtrack/modtrack/pkg/telemetry"
)

// Recheck re-observes every post still inside the window, regardless of
// which run discovered it.
//
// The candidate set is the union of in-window ids from the primary store
// and, when reachable, the mirror. The union matters: a fresh primary
// file (new volume, wiped disk) with a populated mirror must still
// recheck the mirror's rows or removal transitions on them are silently
// lost. Candidates are re-fetched through the batched by-id endpoint and
// their comment trees re-walked with "new" as the extra sort so recent
// replies surface alongside the confidence ordering.
func (e *Engine) Recheck(ctx context.Context, windowStart int64) (RecheckStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "track.recheck")
	defer span.End()

	var stats RecheckStats
	now := e.now()

	candidates, err := e.candidateIDs(ctx, windowStart)
	if err != nil {
		return stats, err
	}
	if e.cfg.RecheckMax > 0 && len(candidates) > e.cfg.RecheckMax {
		candidates = candidates[:e.cfg.RecheckMax]
	}
	stats.Candidates = len(candidates)

	e.logger.Info("Starting recheck",
		zap.Int64("window_start", windowStart), zap.Int("candidates", stats.Candidates))

	for batchStart := 0; batchStart < len(candidates); batchStart += reddit.InfoBatchSize {
		batchEnd := batchStart + reddit.InfoBatchSize
		if batchEnd > len(candidates) {
			batchEnd = len(candidates)
		}
		batch := candidates[batchStart:batchEnd]

		fullnames := make([]string, len(batch))
		for i, id := range batch {
			fullnames[i] = reddit.Fullname(id)
		}

		listing, err := e.api.InfoByIDs(ctx, fullnames)
		if err != nil {
			var authErr *reddit.AuthError
			if errors.As(err, &authErr) {
				return stats, err
			}
			stats.FailedBatches++
			e.logger.Warn("Recheck batch failed",
				zap.Int("batch_start", batchStart), zap.Int("size", len(batch)), zap.Error(err))
			continue
		}

		for _, rec := range listing.Posts() {
			if _, err := e.processPost(ctx, rec, now); err != nil {
				return stats, err
			}
			stats.Refetched++
		}
	}

	if e.cfg.RecheckComments && len(candidates) > 0 {
		n, err := e.FetchComments(ctx, candidates, "recheck", "new")
		stats.Comments = n
		if err != nil {
			return stats, err
		}
	}

	e.logger.Info("Recheck finished",
		zap.Int("candidates", stats.Candidates), zap.Int("refetched", stats.Refetched),
		zap.Int("comments", stats.Comments), zap.Int("failed_batches", stats.FailedBatches))

	return stats, nil
}

// candidateIDs unions in-window post ids across the primary store and
// the mirror, primary order first. A mirror read failure degrades to
// primary-only; a primary read failure is fatal.
func (e *Engine) candidateIDs(ctx context.Context, windowStart int64) ([]string, error) {
	ids, err := e.reader.PostIDsSince(ctx, windowStart)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	if e.mirror != nil {
		mirrorIDs, err := e.mirror.PostIDsSince(ctx, windowStart)
		if err != nil {
			e.logger.Warn("Mirror unreachable during recheck, using primary ids only",
				zap.Error(err))
		} else {
			for _, id := range mirrorIDs {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
	}

	return ids, nil
}
