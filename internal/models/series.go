package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SeriesEntry is one point-in-time snapshot of a post's metrics. Entries
// are structural snapshots, not deltas.
type SeriesEntry struct {
	TS          int64   `json:"ts"`
	Score       int     `json:"score"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	NumComments int     `json:"num_comments"`
	Locked      bool    `json:"locked"`
	Removed     bool    `json:"removed"`
}

// FieldsEqual reports whether e and o agree on every named field.
// Unknown key names are ignored.
func (e SeriesEntry) FieldsEqual(o SeriesEntry, keys []string) bool {
	for _, k := range keys {
		switch k {
		case "ts":
			if e.TS != o.TS {
				return false
			}
		case "score":
			if e.Score != o.Score {
				return false
			}
		case "upvote_ratio":
			if e.UpvoteRatio != o.UpvoteRatio {
				return false
			}
		case "num_comments":
			if e.NumComments != o.NumComments {
				return false
			}
		case "locked":
			if e.Locked != o.Locked {
				return false
			}
		case "removed":
			if e.Removed != o.Removed {
				return false
			}
		}
	}
	return true
}

// CommentSeriesEntry is one point-in-time snapshot of a comment's score.
type CommentSeriesEntry struct {
	TS    int64 `json:"ts"`
	Score int   `json:"score"`
}

// FieldsEqual reports whether e and o agree on every named field.
func (e CommentSeriesEntry) FieldsEqual(o CommentSeriesEntry, keys []string) bool {
	for _, k := range keys {
		switch k {
		case "ts":
			if e.TS != o.TS {
				return false
			}
		case "score":
			if e.Score != o.Score {
				return false
			}
		}
	}
	return true
}

// PostSeries is the bounded snapshot log stored with each post. It is
// serialized as JSON at the storage boundary: a text column on sqlite,
// jsonb on postgres.
type PostSeries []SeriesEntry

// Value implements driver.Valuer
func (s PostSeries) Value() (driver.Value, error) {
	if s == nil {
		s = PostSeries{}
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *PostSeries) Scan(value interface{}) error {
	return scanSeries(value, s)
}

// CommentSeries is the bounded snapshot log stored with each comment.
type CommentSeries []CommentSeriesEntry

// Value implements driver.Valuer
func (s CommentSeries) Value() (driver.Value, error) {
	if s == nil {
		s = CommentSeries{}
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *CommentSeries) Scan(value interface{}) error {
	return scanSeries(value, s)
}

func scanSeries(value, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported series column type %T", value)
	}
}
