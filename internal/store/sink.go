package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/modtrack/modtrack/internal/models"
	"github.com/modtrack/modtrack/pkg/logging"
)

// mirrorWriter is the write surface the sink needs from the mirror.
type mirrorWriter interface {
	UpsertPost(ctx context.Context, post *models.Post) error
	UpsertComment(ctx context.Context, c *models.Comment) error
}

// Sink writes each row to the primary store synchronously and then
// best-effort to the mirror. A primary failure is returned to the
// caller; a mirror failure is logged with the row id and swallowed.
// Ordering guarantee: the primary upsert completes before the mirror
// upsert is attempted.
type Sink struct {
	primary    *Primary
	mirror     mirrorWriter
	logger     *zap.Logger
	mirrorErrs int
}

// NewSink creates a sink. mirror may be nil.
func NewSink(primary *Primary, mirror *Mirror) *Sink {
	s := &Sink{
		primary: primary,
		logger:  logging.WithComponent("storage-sink"),
	}
	if mirror != nil {
		s.mirror = mirror
	}
	return s
}

// PersistPost upserts a post into the primary store and mirrors it.
func (s *Sink) PersistPost(ctx context.Context, post *models.Post) error {
	if err := s.primary.UpsertPost(ctx, post); err != nil {
		return fmt.Errorf("primary: %w", err)
	}
	if s.mirror != nil {
		if err := s.mirror.UpsertPost(ctx, post); err != nil {
			s.mirrorErrs++
			s.logger.Warn("Mirror write failed",
				zap.String("post_id", post.ID), zap.Error(err))
		}
	}
	return nil
}

// PersistComment upserts a comment into the primary store and mirrors it.
func (s *Sink) PersistComment(ctx context.Context, c *models.Comment) error {
	if err := s.primary.UpsertComment(ctx, c); err != nil {
		return fmt.Errorf("primary: %w", err)
	}
	if s.mirror != nil {
		if err := s.mirror.UpsertComment(ctx, c); err != nil {
			s.mirrorErrs++
			s.logger.Warn("Mirror write failed",
				zap.String("comment_id", c.ID), zap.Error(err))
		}
	}
	return nil
}

// MirrorActive reports whether a mirror is configured at all.
func (s *Sink) MirrorActive() bool {
	return s.mirror != nil
}

// MirrorErrors returns how many mirror writes failed during this run.
func (s *Sink) MirrorErrors() int {
	return s.mirrorErrs
}
