package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/modtrack/modtrack/internal/models"
	"github.com/modtrack/modtrack/pkg/config"
	"github.com/modtrack/modtrack/pkg/logging"
)

// zapWriter adapts zap.Logger to the gorm logger.Writer interface
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

// Mirror is the optional postgres replica of the primary store. It is
// advisory: its failures are logged by the sink and never abort a run.
// The series column is jsonb rather than opaque text.
type Mirror struct {
	db *gorm.DB
}

// OpenMirror connects to postgres and migrates the two tables. Returns
// (nil, nil) when the mirror is not configured.
func OpenMirror(cfg *config.PostgresConfig, logLevel string) (*Mirror, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Postgres mirror disabled")
		return nil, nil
	}

	var gormLogLevel logger.LogLevel
	switch logLevel {
	case "DEBUG", "debug":
		gormLogLevel = logger.Info
	case "INFO", "info":
		gormLogLevel = logger.Warn
	default:
		gormLogLevel = logger.Error
	}

	gormLogger := logger.New(
		&zapWriter{logger: logging.GetLogger()},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mirror: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping mirror: %w", err)
	}

	if err := db.AutoMigrate(&models.Post{}, &models.Comment{}); err != nil {
		return nil, fmt.Errorf("failed to migrate mirror schema: %w", err)
	}

	logging.GetLogger().Info("Postgres mirror connection established")

	return &Mirror{db: db}, nil
}

// Close closes the mirror connection
func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// postUpsert preserves already-set transition timestamps on conflict,
// mirroring the primary store's COALESCE merge.
var postUpsert = clause.OnConflict{
	Columns: []clause.Column{{Name: "id"}},
	DoUpdates: clause.Assignments(map[string]interface{}{
		"subreddit":           gorm.Expr("EXCLUDED.subreddit"),
		"title":               gorm.Expr("EXCLUDED.title"),
		"title_norm":          gorm.Expr("EXCLUDED.title_norm"),
		"author":              gorm.Expr("EXCLUDED.author"),
		"distinguished":       gorm.Expr("EXCLUDED.distinguished"),
		"created_utc":         gorm.Expr("EXCLUDED.created_utc"),
		"score":               gorm.Expr("EXCLUDED.score"),
		"upvote_ratio":        gorm.Expr("EXCLUDED.upvote_ratio"),
		"num_comments":        gorm.Expr("EXCLUDED.num_comments"),
		"permalink":           gorm.Expr("EXCLUDED.permalink"),
		"url":                 gorm.Expr("EXCLUDED.url"),
		"selftext":            gorm.Expr("EXCLUDED.selftext"),
		"domain":              gorm.Expr("EXCLUDED.domain"),
		"flair":               gorm.Expr("EXCLUDED.flair"),
		"is_self":             gorm.Expr("EXCLUDED.is_self"),
		"crosspost_parent_id": gorm.Expr("EXCLUDED.crosspost_parent_id"),
		"edited_utc":          gorm.Expr("EXCLUDED.edited_utc"),
		"removed_by_category": gorm.Expr("EXCLUDED.removed_by_category"),
		"locked":              gorm.Expr("EXCLUDED.locked"),
		"first_seen":          gorm.Expr("COALESCE(posts.first_seen, EXCLUDED.first_seen)"),
		"removed_at":          gorm.Expr("COALESCE(posts.removed_at, EXCLUDED.removed_at)"),
		"locked_at":           gorm.Expr("COALESCE(posts.locked_at, EXCLUDED.locked_at)"),
		"last_checked":        gorm.Expr("EXCLUDED.last_checked"),
		"series":              gorm.Expr("EXCLUDED.series"),
	}),
}

// UpsertPost mirrors one post row.
func (m *Mirror) UpsertPost(ctx context.Context, post *models.Post) error {
	if err := m.db.WithContext(ctx).Clauses(postUpsert).Create(post).Error; err != nil {
		return fmt.Errorf("mirror upsert post %s: %w", post.ID, err)
	}
	return nil
}

// UpsertComment mirrors one comment row.
func (m *Mirror) UpsertComment(ctx context.Context, c *models.Comment) error {
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(c).Error
	if err != nil {
		return fmt.Errorf("mirror upsert comment %s: %w", c.ID, err)
	}
	return nil
}

// PostIDsSince returns mirror-side post ids created at or after since.
func (m *Mirror) PostIDsSince(ctx context.Context, since int64) ([]string, error) {
	var ids []string
	err := m.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("created_utc >= ?", since).
		Order("created_utc DESC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("mirror post ids since %d: %w", since, err)
	}
	return ids, nil
}
