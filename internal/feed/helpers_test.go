package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389-research/circle/internal/format"
	"github.com/2389-research/circle/internal/models"
	"github.com/2389-research/circle/internal/storage"
	"github.com/2389-research/circle/internal/storage/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakePosts is the in-memory backend with overridable calls and injectable failures.
type fakePosts struct {
	*memory.Store

	mu              sync.Mutex
	postsByUser     func(ctx context.Context, userID string, q storage.PostQuery) ([]models.PostRecord, error)
	postsByInterest func(ctx context.Context, interestID string, q storage.PostQuery) ([]models.PostRecord, error)
	recommendedErr  error
	likeErr         error
	unlikeErr       error
	commentErr      error
	beforeLike      func(ctx context.Context)
	userCalls       int
}

func (f *fakePosts) PostsByUser(ctx context.Context, userID string, q storage.PostQuery) ([]models.PostRecord, error) {
	f.mu.Lock()
	f.userCalls++
	fn := f.postsByUser
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, userID, q)
	}
	return f.Store.PostsByUser(ctx, userID, q)
}

func (f *fakePosts) PostsByInterest(ctx context.Context, interestID string, q storage.PostQuery) ([]models.PostRecord, error) {
	if f.postsByInterest != nil {
		return f.postsByInterest(ctx, interestID, q)
	}
	return f.Store.PostsByInterest(ctx, interestID, q)
}

func (f *fakePosts) RecommendedPosts(ctx context.Context, userID string, limit int) ([]models.PostRecord, error) {
	if f.recommendedErr != nil {
		return nil, f.recommendedErr
	}
	return f.Store.RecommendedPosts(ctx, userID, limit)
}

func (f *fakePosts) LikePost(ctx context.Context, userID, postID string) error {
	if f.beforeLike != nil {
		f.beforeLike(ctx)
	}
	if f.likeErr != nil {
		return f.likeErr
	}
	return f.Store.LikePost(ctx, userID, postID)
}

func (f *fakePosts) UnlikePost(ctx context.Context, userID, postID string) error {
	if f.unlikeErr != nil {
		return f.unlikeErr
	}
	return f.Store.UnlikePost(ctx, userID, postID)
}

func (f *fakePosts) CreateComment(ctx context.Context, c *models.CommentRecord) error {
	if f.commentErr != nil {
		return f.commentErr
	}
	return f.Store.CreateComment(ctx, c)
}

func (f *fakePosts) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userCalls
}

type harness struct {
	t      *testing.T
	mem    *memory.Store
	posts  *fakePosts
	clock  *testClock
	store  *Store
	viewer Viewer
}

var testViewer = Viewer{
	ID:          "viewer",
	DisplayName: "Vera Viewer",
	AvatarURL:   "https://example.com/vera.png",
	InterestIDs: []string{"climbing"},
}

func newHarness(t *testing.T, viewer Viewer, opts ...Option) *harness {
	t.Helper()
	mem := memory.New()
	clock := &testClock{t: time.Now()}
	mem.SetClock(clock.Now)
	mem.AddProfile(models.Profile{ID: viewer.ID, DisplayName: viewer.DisplayName, AvatarURL: viewer.AvatarURL})
	mem.AddInterest(models.Interest{ID: "climbing", Name: "Climbing"})
	mem.AddInterest(models.Interest{ID: "baking", Name: "Baking"})

	posts := &fakePosts{Store: mem}
	formatter := format.New(mem, format.WithClock(clock.Now), format.WithBatchWait(time.Millisecond))
	opts = append([]Option{WithClock(clock.Now), WithShuffle(func(int, func(i, j int)) {})}, opts...)

	return &harness{
		t:      t,
		mem:    mem,
		posts:  posts,
		clock:  clock,
		store:  New(posts, StaticViewer(viewer), formatter, opts...),
		viewer: viewer,
	}
}

// addPost stores a note created age ago.
func (h *harness) addPost(id, userID, interestID string, age time.Duration) models.PostRecord {
	h.t.Helper()
	rec := models.PostRecord{
		ID:         id,
		UserID:     userID,
		InterestID: interestID,
		Type:       models.PostTypeNote,
		Body:       "post " + id,
		CreatedAt:  h.clock.Now().Add(-age),
	}
	require.NoError(h.t, h.mem.CreatePost(context.Background(), &rec))
	return rec
}

func records(ids ...string) []models.PostRecord {
	out := make([]models.PostRecord, len(ids))
	for i, id := range ids {
		out[i] = models.PostRecord{ID: id, UserID: "author", Type: models.PostTypeNote}
	}
	return out
}

func postIDs(st State) []string {
	var ids []string
	for _, p := range st.Posts() {
		ids = append(ids, p.ID)
	}
	return ids
}

// recorder collects listener calls.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) listen(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}
