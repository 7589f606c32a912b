package track

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/modtrack/modtrack/internal/models"
	"github.com/modtrack/modtrack/internal/reddit"
	"github.com/modtrack/modtrack/pkg/config"
	"github.com/modtrack/modtrack/pkg/logging"
)

// API is the slice of the Reddit client the engine uses.
type API interface {
	NewPosts(ctx context.Context, subreddit, after string, limit int) (*reddit.Listing, error)
	CommentTree(ctx context.Context, postID, sort string, limit int) ([]reddit.CommentRecord, error)
	InfoByIDs(ctx context.Context, fullnames []string) (*reddit.Listing, error)
}

// Reader is the primary-store read surface the engine needs.
type Reader interface {
	GetPost(ctx context.Context, id string) (*models.Post, error)
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	PostIDsSince(ctx context.Context, since int64) ([]string, error)
}

// MirrorReader is the mirror-store read surface used by recheck.
type MirrorReader interface {
	PostIDsSince(ctx context.Context, since int64) ([]string, error)
}

// Writer persists reconciled rows.
type Writer interface {
	PersistPost(ctx context.Context, post *models.Post) error
	PersistComment(ctx context.Context, c *models.Comment) error
}

// Engine drives one ingestion run: the forward discovery scan and the
// backward recheck pass. One Engine value corresponds to exactly one
// invocation; the embedded RunState is therefore run-scoped by
// construction.
type Engine struct {
	cfg    config.TrackerConfig
	series config.SeriesConfig
	api    API
	reader Reader
	mirror MirrorReader // nil when no mirror is configured
	sink   Writer
	run    *RunState
	logger *zap.Logger
	now    func() int64
}

// NewEngine creates an engine for a single run. mirror may be nil.
func NewEngine(cfg config.TrackerConfig, series config.SeriesConfig, api API, reader Reader, mirror MirrorReader, sink Writer) *Engine {
	return &Engine{
		cfg:    cfg,
		series: series,
		api:    api,
		reader: reader,
		mirror: mirror,
		sink:   sink,
		run:    NewRunState(),
		logger: logging.WithComponent("tracker"),
		now:    func() int64 { return time.Now().Unix() },
	}
}

// ScanStats summarizes the forward discovery pass.
type ScanStats struct {
	Pages    int
	Posts    int
	NewPosts int
	Comments int
}

// RecheckStats summarizes the backward recheck pass.
type RecheckStats struct {
	Candidates    int
	Refetched     int
	Comments      int
	FailedBatches int
}

// processPost runs one fresh observation through the reconcile/persist
// pipeline. Returns whether the post was seen for the first time.
func (e *Engine) processPost(ctx context.Context, rec reddit.PostRecord, now int64) (bool, error) {
	draft := reddit.NormalizePost(rec)

	prev, err := e.reader.GetPost(ctx, draft.ID)
	if err != nil {
		return false, err
	}

	row := ReconcilePost(prev, draft, now, e.series)
	if err := e.sink.PersistPost(ctx, &row); err != nil {
		return false, err
	}
	return prev == nil, nil
}
