package track

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/modtrack/modtrack/internal/models"
	"github.com/modtrack/modtrack/internal/reddit"
	"github.com/modtrack/modtrack/pkg/config"
)

// fakeAPI serves canned listings and delegates comment trees and by-id
// lookups to per-test closures.
type fakeAPI struct {
	mu sync.Mutex

	pages     []*reddit.Listing
	pageErrs  map[int]error
	pageCalls int

	treeFunc func(postID, sort string, limit int) ([]reddit.CommentRecord, error)
	infoFunc func(fullnames []string) (*reddit.Listing, error)
}

func (f *fakeAPI) NewPosts(ctx context.Context, subreddit, after string, limit int) (*reddit.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := f.pageCalls
	f.pageCalls++
	if err, ok := f.pageErrs[page]; ok {
		return nil, err
	}
	if page >= len(f.pages) {
		return &reddit.Listing{}, nil
	}
	return f.pages[page], nil
}

func (f *fakeAPI) CommentTree(ctx context.Context, postID, sort string, limit int) ([]reddit.CommentRecord, error) {
	if f.treeFunc == nil {
		return nil, nil
	}
	return f.treeFunc(postID, sort, limit)
}

func (f *fakeAPI) InfoByIDs(ctx context.Context, fullnames []string) (*reddit.Listing, error) {
	if f.infoFunc == nil {
		return &reddit.Listing{}, nil
	}
	return f.infoFunc(fullnames)
}

// fakeStore is an in-memory Reader+Writer.
type fakeStore struct {
	mu       sync.Mutex
	posts    map[string]models.Post
	comments map[string]models.Comment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:    make(map[string]models.Post),
		comments: make(map[string]models.Comment),
	}
}

func (s *fakeStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *fakeStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *fakeStore) PostIDsSince(ctx context.Context, since int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, p := range s.posts {
		if p.CreatedUTC >= since {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fakeStore) PersistPost(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.ID] = *post
	return nil
}

func (s *fakeStore) PersistComment(ctx context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[c.ID] = *c
	return nil
}

// fakeMirror is a MirrorReader with canned ids or a canned error.
type fakeMirror struct {
	ids []string
	err error
}

func (m *fakeMirror) PostIDsSince(ctx context.Context, since int64) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.ids, nil
}

func newTestEngine(cfg config.TrackerConfig, api API, store *fakeStore, mirror MirrorReader, now int64) *Engine {
	return &Engine{
		cfg:    cfg,
		series: testSeriesCfg,
		api:    api,
		reader: store,
		mirror: mirror,
		sink:   store,
		run:    NewRunState(),
		logger: zap.NewNop(),
		now:    func() int64 { return now },
	}
}

func postChild(t *testing.T, rec reddit.PostRecord) reddit.Child {
	t.Helper()
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal post record: %v", err)
	}
	return reddit.Child{Kind: "t3", Data: raw}
}

func makeListing(t *testing.T, after string, recs ...reddit.PostRecord) *reddit.Listing {
	t.Helper()
	l := &reddit.Listing{Kind: "Listing"}
	l.Data.After = after
	for _, rec := range recs {
		l.Data.Children = append(l.Data.Children, postChild(t, rec))
	}
	return l
}

func wirePost(id string, created float64) reddit.PostRecord {
	return reddit.PostRecord{
		ID:         id,
		Subreddit:  "golang",
		Title:      "Title " + id,
		Author:     "someone",
		CreatedUTC: created,
		Score:      1,
		Permalink:  "/r/golang/comments/" + id + "/title/",
		IsSelf:     true,
	}
}
