package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/modtrack/modtrack/pkg/config"
	"github.com/modtrack/modtrack/pkg/logging"
	"github.com/modtrack/modtrack/pkg/telemetry"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 20 * time.Second
)

// Client issues authenticated requests against the Reddit API with a
// per-call timeout, exponential backoff with jitter, and class-specific
// retry behavior:
//
//   - network errors, timeouts, 429 and 5xx retry up to MaxRetries;
//   - 401/403 with an auth-shaped body forces one token refresh and one
//     extra attempt outside the retry budget;
//   - any other 401/403 is a fatal *AuthError;
//   - other statuses fail immediately with *FetchError.
type Client struct {
	httpc      *http.Client
	tokens     *TokenSource
	apiBase    string
	userAgent  string
	maxRetries int
	timeout    time.Duration
	logger     *zap.Logger
}

// NewClient creates a new API client
func NewClient(cfg *config.RedditConfig, tokens *TokenSource) *Client {
	return &Client{
		httpc:      &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
		logger:     logging.WithComponent("reddit-client"),
	}
}

// getJSON fetches apiBase+path and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	fullURL := c.apiBase + path
	if len(q) > 0 {
		fullURL += "?" + q.Encode()
	}

	var (
		lastErr     error
		lastStatus  int
		attempts    int
		authRetried bool
	)

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempts > 0 {
			if err := c.sleep(ctx, backoff(attempt)); err != nil {
				return err
			}
		}
		attempts++

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		body, status, err := c.doGET(ctx, fullURL, token)
		lastStatus = status
		switch {
		case err == nil && status >= 200 && status < 300:
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			return nil

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			if !authRetried && isAuthFailure(status, body) {
				// One forced refresh plus one extra attempt, not counted
				// against the generic retry budget.
				authRetried = true
				attempt--
				c.tokens.Invalidate(ctx)
				c.logger.Warn("Authorization failure, refreshing token",
					zap.Int("status", status), zap.String("url", fullURL))
				continue
			}
			return &AuthError{Status: status, Msg: truncateBody(body)}

		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("http status %d", status)
			c.logger.Debug("Retryable status", zap.Int("status", status),
				zap.Int("attempt", attempt), zap.String("url", fullURL))

		case err != nil:
			// Network-level failure, including the per-call timeout.
			lastErr = err
			c.logger.Debug("Transient network error", zap.Error(err),
				zap.Int("attempt", attempt), zap.String("url", fullURL))

		default:
			return &FetchError{URL: fullURL, Status: status, Attempts: attempts,
				Err: fmt.Errorf("http status %d", status)}
		}
	}

	return &FetchError{URL: fullURL, Status: lastStatus, Attempts: attempts, Err: lastErr}
}

func (c *Client) doGET(ctx context.Context, fullURL, token string) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff returns min(cap, base*2^attempt) plus up to 250ms of jitter.
func backoff(attempt int) time.Duration {
	d := backoffBase << uint(attempt)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	return d + time.Duration(rand.Int63n(int64(250*time.Millisecond)))
}

// isAuthFailure distinguishes an expired/invalid token (refreshable)
// from a genuine permission denial on the same status codes.
func isAuthFailure(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	lower := bytes.ToLower(body)
	return bytes.Contains(lower, []byte("invalid_token")) ||
		bytes.Contains(lower, []byte("unauthorized")) ||
		bytes.Contains(lower, []byte("user_required"))
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}

// NewPosts fetches one page of the newest submissions in a subreddit.
// after is the opaque forward cursor from the previous page, empty for
// the first page.
func (c *Client) NewPosts(ctx context.Context, subreddit, after string, limit int) (*Listing, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.new_posts")
	defer span.End()

	q := url.Values{"limit": {fmt.Sprint(limit)}, "raw_json": {"1"}}
	if after != "" {
		q.Set("after", after)
	}

	var out Listing
	if err := c.getJSON(ctx, "/r/"+url.PathEscape(subreddit)+"/new.json", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CommentTree fetches the comment tree of a post under one sort order
// and returns the flattened comments.
func (c *Client) CommentTree(ctx context.Context, postID, sort string, limit int) ([]CommentRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.comment_tree")
	defer span.End()

	q := url.Values{"raw_json": {"1"}}
	if sort != "" {
		q.Set("sort", sort)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}

	// The endpoint returns a two-element array: the post listing and the
	// top-level comment listing.
	var payload []Listing
	if err := c.getJSON(ctx, "/comments/"+url.PathEscape(postID)+".json", q, &payload); err != nil {
		return nil, err
	}
	if len(payload) < 2 {
		return nil, fmt.Errorf("comment tree %s: unexpected payload shape", postID)
	}

	return flattenComments(payload[1].Data.Children), nil
}

// InfoByIDs fetches up to 100 posts by fullname (t3_ prefixed id) in a
// single batched call.
func (c *Client) InfoByIDs(ctx context.Context, fullnames []string) (*Listing, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.info_by_ids")
	defer span.End()

	if len(fullnames) == 0 {
		return nil, fmt.Errorf("no fullnames provided")
	}
	if len(fullnames) > InfoBatchSize {
		return nil, fmt.Errorf("too many fullnames: %d (max %d)", len(fullnames), InfoBatchSize)
	}

	q := url.Values{"id": {strings.Join(fullnames, ",")}, "raw_json": {"1"}}

	var out Listing
	if err := c.getJSON(ctx, "/api/info.json", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InfoBatchSize is the maximum ids accepted by /api/info per call.
const InfoBatchSize = 100
