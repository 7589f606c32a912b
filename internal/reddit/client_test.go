package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/modtrack/modtrack/pkg/config"
	"github.com/modtrack/modtrack/pkg/logging"
)

func TestMain(m *testing.M) {
	logging.Logger = zap.NewNop()
	os.Exit(m.Run())
}

// newAuthServer serves the token endpoint, handing out tok-1, tok-2, ...
// on successive refreshes.
func newAuthServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var refreshes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/access_token" {
			http.NotFound(w, r)
			return
		}
		if _, _, ok := r.BasicAuth(); !ok {
			http.Error(w, "missing basic auth", http.StatusUnauthorized)
			return
		}
		n := atomic.AddInt32(&refreshes, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv, &refreshes
}

func newTestClient(t *testing.T, apiHandler http.Handler, maxRetries int) (*Client, *TokenSource) {
	t.Helper()
	authSrv, _ := newAuthServer(t)
	apiSrv := httptest.NewServer(apiHandler)
	t.Cleanup(apiSrv.Close)

	cfg := &config.RedditConfig{
		APIBase:      apiSrv.URL,
		AuthBase:     authSrv.URL,
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "refresh",
		UserAgent:    "modtrack-test/0.1",
		Timeout:      5 * time.Second,
		MaxRetries:   maxRetries,
	}
	tokens := NewTokenSource(cfg, nil)
	return NewClient(cfg, tokens), tokens
}

const emptyListing = `{"kind":"Listing","data":{"after":"","children":[]}}`

func TestGetJSONRetriesTransientStatuses(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
	}{
		{"retries 500", []int{500, 200}},
		{"retries 502", []int{502, 200}},
		{"retries 429", []int{429, 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				status := tt.statuses[int(n)-1]
				if status != 200 {
					w.WriteHeader(status)
					return
				}
				fmt.Fprint(w, emptyListing)
			})

			c, _ := newTestClient(t, handler, 3)
			if _, err := c.NewPosts(context.Background(), "golang", "", 100); err != nil {
				t.Fatalf("NewPosts: %v", err)
			}
			if got := atomic.LoadInt32(&calls); got != int32(len(tt.statuses)) {
				t.Errorf("API hit %d times, want %d", got, len(tt.statuses))
			}
		})
	}
}

func TestGetJSONRefreshesTokenOn401(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") == "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Unauthorized","error":401}`)
			return
		}
		fmt.Fprint(w, emptyListing)
	})

	// MaxRetries 1: the refresh attempt must not consume the budget.
	c, _ := newTestClient(t, handler, 1)
	if _, err := c.NewPosts(context.Background(), "golang", "", 100); err != nil {
		t.Fatalf("NewPosts after refresh: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("API hit %d times, want 2 (failed + refreshed)", got)
	}
}

func TestGetJSONAuthErrorAfterFailedRefresh(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Unauthorized","error":401}`)
	})

	c, _ := newTestClient(t, handler, 3)
	_, err := c.NewPosts(context.Background(), "golang", "", 100)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", authErr.Status)
	}
}

func TestGetJSONPermissionDenialIsImmediatelyFatal(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"you are banned from this community"}`)
	})

	c, _ := newTestClient(t, handler, 5)
	_, err := c.NewPosts(context.Background(), "golang", "", 100)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
	// A 403 without an auth-shaped body is a denial, not a stale token:
	// no refresh, no second attempt.
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("API hit %d times, want 1", got)
	}
}

func TestGetJSONExhaustsRetryBudget(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	c, _ := newTestClient(t, handler, 2)
	_, err := c.NewPosts(context.Background(), "golang", "", 100)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want FetchError", err)
	}
	if fetchErr.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", fetchErr.Attempts)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("API hit %d times, want 2", got)
	}
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	c, _ := newTestClient(t, handler, 5)
	_, err := c.NewPosts(context.Background(), "golang", "", 100)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want FetchError", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("API hit %d times, want 1", got)
	}
}

func TestNewPostsRequestShape(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/golang/new.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("limit") != "100" || q.Get("after") != "t3_abc" || q.Get("raw_json") != "1" {
			t.Errorf("query = %v", q)
		}
		if r.Header.Get("User-Agent") != "modtrack-test/0.1" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, emptyListing)
	})

	c, _ := newTestClient(t, handler, 1)
	if _, err := c.NewPosts(context.Background(), "golang", "t3_abc", 100); err != nil {
		t.Fatalf("NewPosts: %v", err)
	}
}

func TestCommentTreeFlattensNestedReplies(t *testing.T) {
	payload := `[
	  {"kind":"Listing","data":{"after":"","children":[{"kind":"t3","data":{"id":"p1"}}]}},
	  {"kind":"Listing","data":{"after":"","children":[
	    {"kind":"t1","data":{"id":"c1","link_id":"t3_p1","parent_id":"t3_p1","author":"a","body":"top","score":5,"created_utc":1000,"edited":false,
	      "replies":{"kind":"Listing","data":{"children":[
	        {"kind":"t1","data":{"id":"c2","link_id":"t3_p1","parent_id":"t1_c1","author":"b","body":"nested","score":2,"created_utc":1100,"edited":1234.0,"replies":""}}
	      ]}}}},
	    {"kind":"more","data":{"count":12,"children":["c9","c10"]}}
	  ]}}
	]`
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/comments/p1.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("sort") != "new" {
			t.Errorf("sort = %q, want new", r.URL.Query().Get("sort"))
		}
		fmt.Fprint(w, payload)
	})

	c, _ := newTestClient(t, handler, 1)
	recs, err := c.CommentTree(context.Background(), "p1", "new", 500)
	if err != nil {
		t.Fatalf("CommentTree: %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("got %d comments, want 2 (nested flattened, more stub skipped)", len(recs))
	}
	if recs[0].ID != "c1" || recs[1].ID != "c2" {
		t.Errorf("ids = %s,%s, want c1,c2", recs[0].ID, recs[1].ID)
	}
	if recs[0].Edited.TS != nil {
		t.Errorf("unedited comment has Edited.TS = %v", *recs[0].Edited.TS)
	}
	if recs[1].Edited.TS == nil || *recs[1].Edited.TS != 1234 {
		t.Errorf("edited comment TS = %v, want 1234", recs[1].Edited.TS)
	}
}

func TestInfoByIDsBatchLimits(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("API should not be hit for invalid batches")
	}), 1)

	if _, err := c.InfoByIDs(context.Background(), nil); err == nil {
		t.Errorf("empty batch should error")
	}

	big := make([]string, InfoBatchSize+1)
	for i := range big {
		big[i] = Fullname(fmt.Sprintf("p%d", i))
	}
	if _, err := c.InfoByIDs(context.Background(), big); err == nil {
		t.Errorf("oversized batch should error")
	}
}

func TestTokenSourceReusesTokenUntilInvalidated(t *testing.T) {
	authSrv, refreshes := newAuthServer(t)
	cfg := &config.RedditConfig{
		AuthBase:     authSrv.URL,
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "refresh",
		UserAgent:    "modtrack-test/0.1",
		Timeout:      5 * time.Second,
	}
	ts := NewTokenSource(cfg, nil)

	ctx := context.Background()
	tok1, err := ts.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	tok2, err := ts.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok1 != tok2 {
		t.Errorf("token changed between calls: %q vs %q", tok1, tok2)
	}
	if got := atomic.LoadInt32(refreshes); got != 1 {
		t.Errorf("token endpoint hit %d times, want 1", got)
	}

	ts.Invalidate(ctx)
	tok3, err := ts.Token(ctx)
	if err != nil {
		t.Fatalf("Token after Invalidate: %v", err)
	}
	if tok3 == tok1 {
		t.Errorf("Invalidate did not force a refresh")
	}
	if got := atomic.LoadInt32(refreshes); got != 2 {
		t.Errorf("token endpoint hit %d times, want 2", got)
	}
}

func TestTokenSourceRefreshRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.RedditConfig{
		AuthBase:     srv.URL,
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "revoked",
		UserAgent:    "modtrack-test/0.1",
		Timeout:      5 * time.Second,
	}
	ts := NewTokenSource(cfg, nil)

	_, err := ts.Token(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
}
