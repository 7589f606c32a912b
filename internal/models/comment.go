package models

// Comment represents one comment under a tracked post. ParentID is the
// thread edge: a t1_/t3_ fullname pointing at either another comment or
// the post itself.
type Comment struct {
	ID                string        `db:"id" gorm:"primaryKey;type:varchar(16);column:id"`
	PostID            string        `db:"post_id" gorm:"type:varchar(16);not null;index;column:post_id"`
	ParentID          string        `db:"parent_id" gorm:"type:varchar(20);not null;column:parent_id"`
	Author            string        `db:"author" gorm:"type:varchar(32);not null;column:author"`
	Body              string        `db:"body" gorm:"type:text;not null;column:body"`
	Score             int           `db:"score" gorm:"not null;default:0;column:score"`
	CreatedUTC        int64         `db:"created_utc" gorm:"not null;index;column:created_utc"`
	EditedUTC         *int64        `db:"edited_utc" gorm:"column:edited_utc"`
	RemovedByCategory *string       `db:"removed_by_category" gorm:"type:varchar(32);column:removed_by_category"`
	Distinguished     *string       `db:"distinguished" gorm:"type:varchar(16);column:distinguished"`
	IsSubmitter       bool          `db:"is_submitter" gorm:"not null;default:false;column:is_submitter"`
	CollapsedReason   *string       `db:"collapsed_reason" gorm:"type:varchar(64);column:collapsed_reason"`
	LastChecked       int64         `db:"last_checked" gorm:"not null;column:last_checked"`
	Series            CommentSeries `db:"series" gorm:"type:jsonb;column:series"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "comments"
}

// Snapshot returns the series entry describing this observation.
func (c *Comment) Snapshot(ts int64) CommentSeriesEntry {
	return CommentSeriesEntry{TS: ts, Score: c.Score}
}
