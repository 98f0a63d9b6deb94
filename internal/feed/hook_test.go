package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/circle/internal/models"
)

func TestActivateFetchesWhenEmpty(t *testing.T) {
	h := newHarness(t, testViewer)
	h.addPost("p1", "alex", "climbing", time.Hour)

	var views []View
	hook := h.store.Bind(Home, "", OnChange(func(v View) { views = append(views, v) }))
	require.NoError(t, hook.Activate(context.Background()))
	defer hook.Deactivate()

	v := hook.View()
	assert.False(t, v.Loading)
	require.Len(t, v.Feed, 2)
	assert.True(t, v.Feed[0].IsCarousel())
	assert.Equal(t, "p1", v.Feed[1].ID())
	assert.NotEmpty(t, views)
}

func TestStaleness(t *testing.T) {
	h := newHarness(t, testViewer)
	hook := h.store.Bind(OwnProfile, "")

	h.store.Update(OwnProfile, func(st State) State {
		st = seeded("p1")(st)
		st.Timestamp = h.clock.Now().Add(-6 * time.Minute)
		return st
	})
	assert.True(t, hook.Stale())

	h.store.Update(OwnProfile, func(st State) State {
		st.Timestamp = h.clock.Now().Add(-4 * time.Minute)
		return st
	})
	assert.False(t, hook.Stale())

	h.store.Update(OwnProfile, seeded())
	assert.True(t, hook.Stale(), "an empty feed is always stale")
}

func TestStalenessOtherProfileMismatch(t *testing.T) {
	h := newHarness(t, testViewer)
	h.store.Update(OtherProfile, func(st State) State {
		st = seeded("p1")(st)
		st.UserID = "u1"
		st.Timestamp = h.clock.Now()
		return st
	})

	assert.False(t, h.store.Bind(OtherProfile, "u1").Stale())
	assert.True(t, h.store.Bind(OtherProfile, "u2").Stale())
}

func TestActivateSkipsFreshFeed(t *testing.T) {
	h := newHarness(t, testViewer)
	h.store.Update(OwnProfile, func(st State) State {
		st = seeded("cached")(st)
		st.Timestamp = h.clock.Now().Add(-time.Minute)
		return st
	})

	hook := h.store.Bind(OwnProfile, "")
	require.NoError(t, hook.Activate(context.Background()))
	defer hook.Deactivate()

	assert.Equal(t, 0, h.posts.calls())
	assert.Equal(t, []string{"cached"}, h.store.Get(OwnProfile).IDs())
}

func TestInvalidateMakesFeedStale(t *testing.T) {
	h := newHarness(t, testViewer)
	h.store.Update(OwnProfile, func(st State) State {
		st = seeded("cached")(st)
		st.Timestamp = h.clock.Now()
		return st
	})
	hook := h.store.Bind(OwnProfile, "")
	require.False(t, hook.Stale())

	hook.Invalidate()
	assert.True(t, hook.Stale())
}

func TestProfileSwitchInvalidation(t *testing.T) {
	h := newHarness(t, testViewer)
	h.addPost("u1-post", "u1", "climbing", time.Hour)
	h.addPost("u2-post", "u2", "climbing", time.Hour)
	ctx := context.Background()

	first := h.store.Bind(OtherProfile, "u1")
	require.NoError(t, first.Activate(ctx))
	assert.Equal(t, []string{"u1-post"}, h.store.Get(OtherProfile).IDs())
	first.Deactivate()

	var sawU1 bool
	second := h.store.Bind(OtherProfile, "u2", OnChange(func(v View) {
		for _, it := range v.Feed {
			if it.ID() == "u1-post" {
				sawU1 = true
			}
		}
	}))
	require.NoError(t, second.Activate(ctx))
	defer second.Deactivate()

	st := h.store.Get(OtherProfile)
	assert.Equal(t, "u2", st.UserID)
	assert.Equal(t, []string{"u2-post"}, st.IDs())
	assert.False(t, sawU1)
}

func TestDeactivateStopsNotifications(t *testing.T) {
	h := newHarness(t, testViewer)
	calls := 0
	hook := h.store.Bind(OwnProfile, "", OnChange(func(View) { calls++ }))
	require.NoError(t, hook.Activate(context.Background()))
	hook.Deactivate()
	hook.Deactivate()
	before := calls

	h.store.Update(OwnProfile, seeded("x", "y"))
	assert.Equal(t, before, calls)
}

func TestHungFetchIsRetried(t *testing.T) {
	h := newHarness(t, testViewer)
	fn, entered, release := gatedUser(records("stuck"), records("retried"))
	h.posts.postsByUser = fn
	defer close(release)

	hook := h.store.Bind(OwnProfile, "", WithHungAfter(20*time.Millisecond))
	go func() { _ = hook.Activate(context.Background()) }()
	<-entered
	defer hook.Deactivate()

	require.Eventually(t, func() bool {
		st := h.store.Get(OwnProfile)
		return !st.IsLoading && len(st.Items) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"retried"}, h.store.Get(OwnProfile).IDs())
}

func TestLoadMoreSkipsWithoutMoreContent(t *testing.T) {
	h := newHarness(t, testViewer)
	h.store.Update(OwnProfile, seeded("a"))
	hook := h.store.Bind(OwnProfile, "")

	require.NoError(t, hook.LoadMore(context.Background()))
	assert.Equal(t, 0, h.posts.calls())
}

func TestHandleLikePost(t *testing.T) {
	h := newHarness(t, testViewer)
	h.addPost("p1", "alex", "climbing", time.Hour)
	ctx := context.Background()
	hook := h.store.Bind(Home, "")
	require.NoError(t, hook.Activate(ctx))
	defer hook.Deactivate()

	require.NoError(t, hook.HandleLikePost(ctx, "p1"))
	p1, _ := h.store.Get(Home).Find("p1")
	assert.Equal(t, 1, p1.Likes)
	assert.True(t, p1.IsLiked)
	assert.True(t, hook.View().LikedPosts["p1"])

	liked, err := h.mem.LikedPostIDs(ctx, testViewer.ID, []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, liked)

	require.NoError(t, hook.HandleLikePost(ctx, "p1"))
	p1, _ = h.store.Get(Home).Find("p1")
	assert.Equal(t, 0, p1.Likes)
	assert.False(t, p1.IsLiked)
	assert.False(t, h.store.IsLiked("p1"))
}

func TestHandleLikePostRevertsOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := newHarness(t, testViewer, WithMetrics(m))
	h.addPost("p1", "alex", "climbing", time.Hour)
	ctx := context.Background()

	var alerts []error
	hook := h.store.Bind(Home, "", OnAlert(func(err error) { alerts = append(alerts, err) }))
	require.NoError(t, hook.Activate(ctx))
	defer hook.Deactivate()

	beforeLiked := h.store.LikedPosts()
	before, _ := h.store.Get(Home).Find("p1")

	h.posts.likeErr = errors.New("rate limited")
	err := hook.HandleLikePost(ctx, "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	after, _ := h.store.Get(Home).Find("p1")
	assert.Equal(t, before.Likes, after.Likes)
	assert.Equal(t, before.IsLiked, after.IsLiked)
	assert.Equal(t, beforeLiked, h.store.LikedPosts())
	require.Len(t, alerts, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Reverts.WithLabelValues("like")))
}

func TestHandleLikePostRevertsUnlike(t *testing.T) {
	h := newHarness(t, testViewer)
	h.addPost("p1", "alex", "climbing", time.Hour)
	ctx := context.Background()
	require.NoError(t, h.mem.LikePost(ctx, testViewer.ID, "p1"))

	hook := h.store.Bind(Home, "")
	require.NoError(t, hook.Activate(ctx))
	defer hook.Deactivate()
	require.True(t, h.store.IsLiked("p1"))

	h.posts.unlikeErr = errors.New("offline")
	require.Error(t, hook.HandleLikePost(ctx, "p1"))

	p1, _ := h.store.Get(Home).Find("p1")
	assert.Equal(t, 1, p1.Likes)
	assert.True(t, p1.IsLiked)
	assert.True(t, h.store.IsLiked("p1"))
}

func TestHandleLikePostRevertsAcrossRefetch(t *testing.T) {
	h := newHarness(t, testViewer)
	h.addPost("p1", "alex", "climbing", time.Hour)
	ctx := context.Background()
	hook := h.store.Bind(Home, "")
	require.NoError(t, hook.Activate(ctx))
	defer hook.Deactivate()

	before, _ := h.store.Get(Home).Find("p1")
	h.posts.beforeLike = func(ctx context.Context) {
		require.NoError(t, h.store.FetchPage(ctx, Home, "", FetchOptions{Force: true}))
		mid, _ := h.store.Get(Home).Find("p1")
		assert.Equal(t, before.Likes+1, mid.Likes)
		assert.True(t, mid.IsLiked)
	}
	h.posts.likeErr = errors.New("offline")
	require.Error(t, hook.HandleLikePost(ctx, "p1"))

	after, _ := h.store.Get(Home).Find("p1")
	assert.Equal(t, before.Likes, after.Likes)
	assert.False(t, after.IsLiked)
	assert.False(t, h.store.IsLiked("p1"))
}

func TestHandleLikePostKeepsCountAcrossRefetch(t *testing.T) {
	h := newHarness(t, testViewer)
	h.addPost("p1", "alex", "climbing", time.Hour)
	ctx := context.Background()
	hook := h.store.Bind(Home, "")
	require.NoError(t, hook.Activate(ctx))
	defer hook.Deactivate()

	h.posts.beforeLike = func(ctx context.Context) {
		require.NoError(t, h.store.FetchPage(ctx, Home, "", FetchOptions{Force: true}))
	}
	require.NoError(t, hook.HandleLikePost(ctx, "p1"))

	p1, _ := h.store.Get(Home).Find("p1")
	assert.Equal(t, 1, p1.Likes)
	assert.True(t, p1.IsLiked)

	h.posts.beforeLike = nil
	require.NoError(t, hook.Refresh(ctx))
	p1, _ = h.store.Get(Home).Find("p1")
	assert.Equal(t, 1, p1.Likes)
}

func TestHandleLikePostRequiresViewer(t *testing.T) {
	h := newHarness(t, Viewer{})
	hook := h.store.Bind(Home, "")
	assert.ErrorIs(t, hook.HandleLikePost(context.Background(), "p1"), ErrNoViewer)
	assert.False(t, h.store.IsLiked("p1"))
}

func TestCrossFeedLikeConsistency(t *testing.T) {
	h := newHarness(t, testViewer)
	h.addPost("p1", testViewer.ID, "climbing", time.Hour)
	ctx := context.Background()

	home := h.store.Bind(Home, "")
	require.NoError(t, home.Activate(ctx))
	defer home.Deactivate()

	var mu sync.Mutex
	var ownViews []View
	own := h.store.Bind(OwnProfile, "", OnChange(func(v View) {
		mu.Lock()
		ownViews = append(ownViews, v)
		mu.Unlock()
	}))
	require.NoError(t, own.Activate(ctx))
	defer own.Deactivate()

	require.NoError(t, home.HandleLikePost(ctx, "p1"))

	ownView := own.View()
	require.Len(t, ownView.Feed, 1)
	assert.Equal(t, 1, ownView.Feed[0].Post.Likes)
	assert.True(t, ownView.Feed[0].Post.IsLiked)

	mu.Lock()
	defer mu.Unlock()
	last := ownViews[len(ownViews)-1]
	assert.Equal(t, 1, last.Feed[0].Post.Likes)
}

func TestHookAddNewPost(t *testing.T) {
	h := newHarness(t, testViewer)
	ctx := context.Background()
	hook := h.store.Bind(Home, "")
	require.NoError(t, hook.Activate(ctx))
	defer hook.Deactivate()

	hook.AddNewPost(models.Post{PostBase: models.PostBase{ID: "fresh"}, Type: models.PostTypeNote})
	assert.Equal(t, []string{CarouselID, "fresh"}, h.store.Get(Home).IDs())
}

func TestCreatePost(t *testing.T) {
	h := newHarness(t, testViewer)
	ctx := context.Background()
	require.NoError(t, h.store.FetchPage(ctx, Home, "", FetchOptions{}))

	rec := models.NewPostRecord("", "climbing", models.PostTypeNote, "", "new route")
	post, err := h.store.CreatePost(ctx, rec)
	require.NoError(t, err)

	assert.Equal(t, testViewer.ID, post.AuthorID)
	assert.Equal(t, "Vera Viewer", post.AuthorName)
	assert.Equal(t, "Climbing", post.Interest)
	assert.Equal(t, []string{CarouselID, rec.ID}, h.store.Get(Home).IDs())
	assert.Equal(t, []string{rec.ID}, h.store.Get(OwnProfile).IDs())
}
