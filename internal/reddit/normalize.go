package reddit

import (
	"net/url"
	"strings"

	"github.com/modtrack/modtrack/internal/models"
)

// NormalizePost converts a wire record into an item draft: permalink made
// absolute, outbound URL and domain extracted for link posts only, title
// normalized for duplicate matching. Transition timestamps and the series
// are left zero; the tracker owns those.
func NormalizePost(rec PostRecord) models.Post {
	p := models.Post{
		ID:                rec.ID,
		Subreddit:         rec.Subreddit,
		Title:             rec.Title,
		TitleNorm:         NormalizeTitle(rec.Title),
		Author:            rec.Author,
		Distinguished:     rec.Distinguished,
		CreatedUTC:        int64(rec.CreatedUTC),
		Score:             rec.Score,
		UpvoteRatio:       rec.UpvoteRatio,
		NumComments:       rec.NumComments,
		Permalink:         "https://www.reddit.com" + rec.Permalink,
		IsSelf:            rec.IsSelf,
		EditedUTC:         rec.Edited.TS,
		RemovedByCategory: rec.RemovedByCategory,
		Locked:            rec.Locked,
	}

	if rec.Selftext != "" {
		body := rec.Selftext
		p.SelfText = &body
	}

	if !rec.IsSelf && rec.URL != "" && !strings.HasPrefix(rec.URL, "/r/") {
		u := rec.URL
		p.URL = &u
		if d := ExtractDomain(u); d != "" {
			p.Domain = &d
		}
	}

	if rec.LinkFlairText != nil && *rec.LinkFlairText != "" {
		p.Flair = rec.LinkFlairText
	}

	if id := strings.TrimPrefix(rec.CrosspostParent, "t3_"); id != "" && id != rec.CrosspostParent {
		p.CrosspostParentID = &id
	}

	return p
}

// NormalizeComment converts a wire record into a comment draft.
func NormalizeComment(rec CommentRecord) models.Comment {
	return models.Comment{
		ID:                rec.ID,
		PostID:            strings.TrimPrefix(rec.LinkID, "t3_"),
		ParentID:          rec.ParentID,
		Author:            rec.Author,
		Body:              rec.Body,
		Score:             rec.Score,
		CreatedUTC:        int64(rec.CreatedUTC),
		EditedUTC:         rec.Edited.TS,
		RemovedByCategory: rec.RemovedByCategory,
		Distinguished:     rec.Distinguished,
		IsSubmitter:       rec.IsSubmitter,
		CollapsedReason:   rec.CollapsedReason,
	}
}

// NormalizeTitle lowercases and collapses all whitespace runs to single
// spaces.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

// ExtractDomain returns the registrable-ish host of a URL without a
// leading www.
func ExtractDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// Fullname prefixes a bare post id for the by-id lookup endpoint.
func Fullname(postID string) string {
	return "t3_" + postID
}
