package track

import (
	"testing"

	"github.com/modtrack/modtrack/internal/models"
	"github.com/modtrack/modtrack/pkg/config"
)

var testSeriesCfg = config.SeriesConfig{
	PostMaxLen:    96,
	PostDedup:     true,
	CommentMaxLen: 48,
	CommentDedup:  true,
}

func strPtr(s string) *string { return &s }

func freshPost(id string, removed bool) models.Post {
	p := models.Post{
		ID:          id,
		Title:       "a title",
		Author:      "someone",
		Subreddit:   "golang",
		CreatedUTC:  1000,
		Score:       10,
		UpvoteRatio: 0.95,
		NumComments: 3,
	}
	if removed {
		p.RemovedByCategory = strPtr("moderator")
	}
	return p
}

func TestReconcilePostFirstObservation(t *testing.T) {
	got := ReconcilePost(nil, freshPost("p1", false), 2000, testSeriesCfg)

	if got.FirstSeen != 2000 {
		t.Errorf("FirstSeen = %d, want 2000", got.FirstSeen)
	}
	if got.RemovedAt != nil || got.LockedAt != nil {
		t.Errorf("transition timestamps set on first observation: %v %v", got.RemovedAt, got.LockedAt)
	}
	if len(got.Series) != 1 {
		t.Errorf("series length = %d, want 1", len(got.Series))
	}
	if got.LastChecked != 2000 {
		t.Errorf("LastChecked = %d, want 2000", got.LastChecked)
	}
}

func TestReconcilePostFirstSeenImmutable(t *testing.T) {
	first := ReconcilePost(nil, freshPost("p1", false), 2000, testSeriesCfg)
	second := ReconcilePost(&first, freshPost("p1", false), 3000, testSeriesCfg)

	if second.FirstSeen != 2000 {
		t.Errorf("FirstSeen moved to %d after re-observation, want 2000", second.FirstSeen)
	}
}

func TestReconcilePostRemovalTransition(t *testing.T) {
	visible := ReconcilePost(nil, freshPost("p1", false), 1000, testSeriesCfg)

	removed := ReconcilePost(&visible, freshPost("p1", true), 2000, testSeriesCfg)
	if removed.RemovedAt == nil || *removed.RemovedAt != 2000 {
		t.Fatalf("RemovedAt = %v, want 2000", removed.RemovedAt)
	}

	// Observed removed again later: the timestamp stays at the first
	// transition.
	still := ReconcilePost(&removed, freshPost("p1", true), 3000, testSeriesCfg)
	if still.RemovedAt == nil || *still.RemovedAt != 2000 {
		t.Errorf("RemovedAt moved to %v on re-observation, want 2000", still.RemovedAt)
	}
}

func TestReconcilePostRemovalNeverCleared(t *testing.T) {
	visible := ReconcilePost(nil, freshPost("p1", false), 1000, testSeriesCfg)
	removed := ReconcilePost(&visible, freshPost("p1", true), 2000, testSeriesCfg)

	// Moderator approval makes the item visible again. The fresh flag
	// clears but the historical timestamp stands.
	restored := ReconcilePost(&removed, freshPost("p1", false), 3000, testSeriesCfg)
	if restored.RemovedByCategory != nil {
		t.Errorf("RemovedByCategory = %v, want nil after restore", restored.RemovedByCategory)
	}
	if restored.RemovedAt == nil || *restored.RemovedAt != 2000 {
		t.Errorf("RemovedAt = %v after restore, want 2000", restored.RemovedAt)
	}

	// A second removal after the restore still keeps the original
	// timestamp.
	again := ReconcilePost(&restored, freshPost("p1", true), 4000, testSeriesCfg)
	if again.RemovedAt == nil || *again.RemovedAt != 2000 {
		t.Errorf("RemovedAt = %v after second removal, want 2000", again.RemovedAt)
	}
}

func TestReconcilePostAlreadyRemovedOnFirstSight(t *testing.T) {
	// First ever observation is already removed: there was no observed
	// transition, so no timestamp is recorded.
	got := ReconcilePost(nil, freshPost("p1", true), 2000, testSeriesCfg)
	if got.RemovedAt != nil {
		t.Errorf("RemovedAt = %v for first-sight removed post, want nil", got.RemovedAt)
	}

	// And later re-observations of the same removed row never invent one.
	later := ReconcilePost(&got, freshPost("p1", true), 3000, testSeriesCfg)
	if later.RemovedAt != nil {
		t.Errorf("RemovedAt = %v invented on re-observation, want nil", later.RemovedAt)
	}
}

func TestReconcilePostLockTransition(t *testing.T) {
	visible := ReconcilePost(nil, freshPost("p1", false), 1000, testSeriesCfg)

	lockedFresh := freshPost("p1", false)
	lockedFresh.Locked = true
	locked := ReconcilePost(&visible, lockedFresh, 2000, testSeriesCfg)
	if locked.LockedAt == nil || *locked.LockedAt != 2000 {
		t.Fatalf("LockedAt = %v, want 2000", locked.LockedAt)
	}

	unlockedFresh := freshPost("p1", false)
	unlocked := ReconcilePost(&locked, unlockedFresh, 3000, testSeriesCfg)
	if unlocked.Locked {
		t.Errorf("Locked flag should follow fresh observation")
	}
	if unlocked.LockedAt == nil || *unlocked.LockedAt != 2000 {
		t.Errorf("LockedAt = %v after unlock, want 2000", unlocked.LockedAt)
	}
}

func TestReconcilePostIdempotent(t *testing.T) {
	first := ReconcilePost(nil, freshPost("p1", false), 1000, testSeriesCfg)

	// The same observation applied repeatedly at later times converges:
	// metric fields unchanged, series deduped, timestamps stable.
	once := ReconcilePost(&first, freshPost("p1", false), 2000, testSeriesCfg)
	twice := ReconcilePost(&once, freshPost("p1", false), 3000, testSeriesCfg)

	if len(twice.Series) != len(first.Series) {
		t.Errorf("series grew on identical observations: %d -> %d", len(first.Series), len(twice.Series))
	}
	if twice.FirstSeen != first.FirstSeen {
		t.Errorf("FirstSeen drifted: %d -> %d", first.FirstSeen, twice.FirstSeen)
	}
	if twice.Score != first.Score || twice.NumComments != first.NumComments {
		t.Errorf("metric fields drifted on identical observations")
	}
}

func TestReconcileCommentBumpGuard(t *testing.T) {
	fresh := models.Comment{ID: "c1", PostID: "p1", Author: "someone", Score: 4, CreatedUTC: 500}

	first := ReconcileComment(nil, fresh, 1000, testSeriesCfg, true)
	if len(first.Series) != 1 {
		t.Fatalf("series length = %d, want 1", len(first.Series))
	}

	// Same run, seen again under a second sort order: no bump, the
	// series is carried unchanged even though the score changed.
	fresh.Score = 9
	second := ReconcileComment(&first, fresh, 1000, testSeriesCfg, false)
	if len(second.Series) != 1 {
		t.Errorf("series length = %d after unbumped observation, want 1", len(second.Series))
	}
	if second.Score != 9 {
		t.Errorf("Score = %d, want fresh value 9", second.Score)
	}

	// Next run bumps again.
	third := ReconcileComment(&second, fresh, 2000, testSeriesCfg, true)
	if len(third.Series) != 2 {
		t.Errorf("series length = %d after next-run bump, want 2", len(third.Series))
	}
}
