package models

// Post represents a tracked submission in the watched subreddit.
//
// FirstSeen, RemovedAt and LockedAt record one-way transitions: once
// non-null they are never cleared or overwritten by later observations.
// Current moderation state is read from RemovedByCategory / Locked
// instead.
type Post struct {
	ID                string     `db:"id" gorm:"primaryKey;type:varchar(16);column:id"`
	Subreddit         string     `db:"subreddit" gorm:"type:varchar(64);not null;column:subreddit"`
	Title             string     `db:"title" gorm:"type:text;not null;column:title"`
	TitleNorm         string     `db:"title_norm" gorm:"type:text;not null;column:title_norm"`
	Author            string     `db:"author" gorm:"type:varchar(32);not null;column:author"`
	Distinguished     *string    `db:"distinguished" gorm:"type:varchar(16);column:distinguished"`
	CreatedUTC        int64      `db:"created_utc" gorm:"not null;index;column:created_utc"`
	Score             int        `db:"score" gorm:"not null;default:0;column:score"`
	UpvoteRatio       float64    `db:"upvote_ratio" gorm:"not null;default:0;column:upvote_ratio"`
	NumComments       int        `db:"num_comments" gorm:"not null;default:0;column:num_comments"`
	Permalink         string     `db:"permalink" gorm:"type:text;not null;column:permalink"`
	URL               *string    `db:"url" gorm:"type:text;column:url"`
	SelfText          *string    `db:"selftext" gorm:"type:text;column:selftext"`
	Domain            *string    `db:"domain" gorm:"type:varchar(255);index;column:domain"`
	Flair             *string    `db:"flair" gorm:"type:varchar(64);index;column:flair"`
	IsSelf            bool       `db:"is_self" gorm:"not null;default:false;column:is_self"`
	CrosspostParentID *string    `db:"crosspost_parent_id" gorm:"type:varchar(16);column:crosspost_parent_id"`
	EditedUTC         *int64     `db:"edited_utc" gorm:"column:edited_utc"`
	RemovedByCategory *string    `db:"removed_by_category" gorm:"type:varchar(32);column:removed_by_category"`
	Locked            bool       `db:"locked" gorm:"not null;default:false;column:locked"`
	FirstSeen         int64      `db:"first_seen" gorm:"not null;column:first_seen"`
	RemovedAt         *int64     `db:"removed_at" gorm:"column:removed_at"`
	LockedAt          *int64     `db:"locked_at" gorm:"column:locked_at"`
	LastChecked       int64      `db:"last_checked" gorm:"not null;column:last_checked"`
	Series            PostSeries `db:"series" gorm:"type:jsonb;column:series"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}

// Snapshot returns the series entry describing this observation.
func (p *Post) Snapshot(ts int64) SeriesEntry {
	return SeriesEntry{
		TS:          ts,
		Score:       p.Score,
		UpvoteRatio: p.UpvoteRatio,
		NumComments: p.NumComments,
		Locked:      p.Locked,
		Removed:     p.RemovedByCategory != nil,
	}
}
