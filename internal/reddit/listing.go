package reddit

import (
	"encoding/json"
)

// Listing is the standard envelope the API wraps every feed in.
type Listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []Child `json:"children"`
	} `json:"data"`
}

// Child is one element of a listing. Data stays raw until the kind is
// known: t3 = post, t1 = comment, more = collapsed continuation stub.
type Child struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// PostRecord is the wire shape of a submission.
type PostRecord struct {
	ID                string     `json:"id"`
	Subreddit         string     `json:"subreddit"`
	Title             string     `json:"title"`
	Author            string     `json:"author"`
	Distinguished     *string    `json:"distinguished"`
	CreatedUTC        float64    `json:"created_utc"`
	Score             int        `json:"score"`
	UpvoteRatio       float64    `json:"upvote_ratio"`
	NumComments       int        `json:"num_comments"`
	Permalink         string     `json:"permalink"`
	URL               string     `json:"url"`
	Selftext          string     `json:"selftext"`
	LinkFlairText     *string    `json:"link_flair_text"`
	IsSelf            bool       `json:"is_self"`
	CrosspostParent   string     `json:"crosspost_parent"`
	Edited            EditedTime `json:"edited"`
	RemovedByCategory *string    `json:"removed_by_category"`
	Locked            bool       `json:"locked"`
}

// CommentRecord is the wire shape of a comment. Replies holds the nested
// listing envelope, or the empty string when there are none.
type CommentRecord struct {
	ID                string          `json:"id"`
	LinkID            string          `json:"link_id"`
	ParentID          string          `json:"parent_id"`
	Author            string          `json:"author"`
	Body              string          `json:"body"`
	Score             int             `json:"score"`
	CreatedUTC        float64         `json:"created_utc"`
	Edited            EditedTime      `json:"edited"`
	RemovedByCategory *string         `json:"removed_by_category"`
	Distinguished     *string         `json:"distinguished"`
	IsSubmitter       bool            `json:"is_submitter"`
	CollapsedReason   *string         `json:"collapsed_reason"`
	Replies           json.RawMessage `json:"replies"`
}

// EditedTime handles the API's edited field, which is either false or an
// epoch-seconds float.
type EditedTime struct {
	TS *int64
}

// UnmarshalJSON implements json.Unmarshaler
func (e *EditedTime) UnmarshalJSON(data []byte) error {
	var ts float64
	if err := json.Unmarshal(data, &ts); err != nil {
		// false, null, or anything non-numeric means not edited
		e.TS = nil
		return nil
	}
	v := int64(ts)
	e.TS = &v
	return nil
}

// MarshalJSON implements json.Marshaler
func (e EditedTime) MarshalJSON() ([]byte, error) {
	if e.TS == nil {
		return []byte("false"), nil
	}
	return json.Marshal(*e.TS)
}

// flattenComments walks the reply trees depth-first and returns every t1
// record. "more" stubs carry no comment data and are skipped.
func flattenComments(children []Child) []CommentRecord {
	var out []CommentRecord
	for _, child := range children {
		if child.Kind != "t1" {
			continue
		}
		var rec CommentRecord
		if err := json.Unmarshal(child.Data, &rec); err != nil {
			continue
		}
		replies := rec.Replies
		rec.Replies = nil
		out = append(out, rec)

		var nested Listing
		if len(replies) > 0 && replies[0] == '{' {
			if err := json.Unmarshal(replies, &nested); err == nil {
				out = append(out, flattenComments(nested.Data.Children)...)
			}
		}
	}
	return out
}

// Posts decodes every t3 child of the listing.
func (l *Listing) Posts() []PostRecord {
	var out []PostRecord
	for _, child := range l.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var rec PostRecord
		if err := json.Unmarshal(child.Data, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}
