// ABOUTME: Per-consumer binding to one feed: subscription, auto-refresh and actions.
// ABOUTME: Likes are applied optimistically across every feed and reverted on failure.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/2389-research/circle/internal/models"
)

// Defaults for hook refresh behaviour.
const (
	DefaultStaleAfter = 5 * time.Minute
	DefaultHungAfter  = 5 * time.Second
)

// View is what a consumer renders.
type View struct {
	Feed           []Item
	Loading        bool
	IsLoadingMore  bool
	HasMoreContent bool
	Error          string
	LikedPosts     map[string]bool
}

// Hook binds a consumer to one feed of a Store.
type Hook struct {
	store     *Store
	kind      Kind
	profileID string

	onChange   func(View)
	onAlert    func(error)
	staleAfter time.Duration
	hungAfter  time.Duration

	mu          sync.Mutex
	active      bool
	unsubscribe func()
	watchdog    *time.Timer
	cancel      context.CancelFunc
	selection   CommentSelection
}

// HookOption configures a Hook.
type HookOption func(*Hook)

// OnChange is called with a fresh View whenever the bound feed or the open
// comment selection changes.
func OnChange(fn func(View)) HookOption {
	return func(h *Hook) {
		h.onChange = fn
	}
}

// OnAlert is called when a like or comment could not be saved.
func OnAlert(fn func(error)) HookOption {
	return func(h *Hook) {
		h.onAlert = fn
	}
}

// WithStaleAfter sets how old a feed may get before activation refetches it.
func WithStaleAfter(d time.Duration) HookOption {
	return func(h *Hook) {
		h.staleAfter = d
	}
}

// WithHungAfter sets how long a first load may stay pending before it is
// retried with force.
func WithHungAfter(d time.Duration) HookOption {
	return func(h *Hook) {
		h.hungAfter = d
	}
}

// Bind creates a hook for a feed. profileID is required for OtherProfile
// and ignored otherwise.
func (s *Store) Bind(kind Kind, profileID string, opts ...HookOption) *Hook {
	kind.mustBeValid()
	if kind != OtherProfile {
		profileID = ""
	}
	h := &Hook{
		store:      s,
		kind:       kind,
		profileID:  profileID,
		staleAfter: DefaultStaleAfter,
		hungAfter:  DefaultHungAfter,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Kind returns the bound feed.
func (h *Hook) Kind() Kind {
	return h.kind
}

// Activate subscribes to the feed and fetches the first page if the cached
// one is stale. It blocks until that fetch finishes. A watchdog retries with
// force if the feed is still on its first load after the hung timeout.
func (h *Hook) Activate(ctx context.Context) error {
	h.mu.Lock()
	if h.active {
		h.mu.Unlock()
		return nil
	}
	h.active = true
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.unsubscribe = h.store.Subscribe(h.kind, func(State) { h.emit() })
	if h.hungAfter > 0 {
		h.watchdog = time.AfterFunc(h.hungAfter, func() { h.retryHung(bg) })
	}
	h.mu.Unlock()

	if h.kind == OtherProfile {
		h.store.resetOther(h.profileID)
	}
	if !h.Stale() {
		return nil
	}
	return h.store.FetchPage(ctx, h.kind, h.profileID, FetchOptions{})
}

// Deactivate unsubscribes and stops the watchdog. It is safe to call more
// than once.
func (h *Hook) Deactivate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
	if h.watchdog != nil {
		h.watchdog.Stop()
		h.watchdog = nil
	}
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.active = false
}

func (h *Hook) retryHung(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	st := h.store.Get(h.kind)
	if !st.IsLoading || !st.Timestamp.IsZero() {
		return
	}
	glog.Warningf("feed %s: first load still pending after %s, retrying", h.kind, h.hungAfter)
	if err := h.store.FetchPage(ctx, h.kind, h.profileID, FetchOptions{Force: true}); err != nil {
		glog.V(1).Infof("feed %s: hung retry: %v", h.kind, err)
	}
}

// Stale reports whether the bound feed needs a refetch: it is older than
// the stale timeout, empty, or (OtherProfile) holds another profile.
func (h *Hook) Stale() bool {
	st := h.store.Get(h.kind)
	if h.kind == OtherProfile && st.UserID != h.profileID {
		return true
	}
	if len(st.Items) == 0 {
		return true
	}
	return h.store.now().Sub(st.Timestamp) > h.staleAfter
}

// View returns the current snapshot for rendering.
func (h *Hook) View() View {
	st := h.store.Get(h.kind)
	if h.kind == OtherProfile && st.UserID != h.profileID {
		st = State{IsLoading: true}
	}
	return View{
		Feed:           st.Items,
		Loading:        st.IsLoading,
		IsLoadingMore:  st.IsLoadingMore,
		HasMoreContent: st.HasMore,
		Error:          st.Error,
		LikedPosts:     h.store.LikedPosts(),
	}
}

func (h *Hook) emit() {
	if h.onChange != nil {
		h.onChange(h.View())
	}
}

func (h *Hook) alert(err error) {
	if h.onAlert != nil {
		h.onAlert(err)
	}
}

// LoadMore fetches the next page when there is one and nothing is loading.
func (h *Hook) LoadMore(ctx context.Context) error {
	st := h.store.Get(h.kind)
	if !st.HasMore || st.IsLoading || st.IsLoadingMore {
		return nil
	}
	return h.store.FetchPage(ctx, h.kind, h.profileID, FetchOptions{LoadMore: true})
}

// Refresh reloads the first page.
func (h *Hook) Refresh(ctx context.Context) error {
	return h.store.FetchPage(ctx, h.kind, h.profileID, FetchOptions{})
}

// ForceRefresh reloads the first page, skipping readiness checks.
func (h *Hook) ForceRefresh(ctx context.Context) error {
	return h.store.FetchPage(ctx, h.kind, h.profileID, FetchOptions{Force: true})
}

// Invalidate marks the bound feed stale.
func (h *Hook) Invalidate() {
	h.store.Invalidate(h.kind)
}

// AddNewPost shows a just-created post on Home and OwnProfile.
func (h *Hook) AddNewPost(post models.Post) {
	h.store.AddNewPost(post)
}

// HandleLikePost toggles the viewer's like on postID. The liked set and
// every cached like count change immediately; if saving fails both are put
// back exactly and the error is alerted and returned.
func (h *Hook) HandleLikePost(ctx context.Context, postID string) error {
	viewer, err := h.store.viewer.Viewer(ctx)
	if err != nil || viewer.ID == "" {
		h.alert(ErrNoViewer)
		return ErrNoViewer
	}

	s := h.store
	wasLiked := s.IsLiked(postID)
	delta, action := 1, "like"
	if wasLiked {
		delta, action = -1, "unlike"
	}
	s.beginLike(postID, delta)
	defer s.endLike(postID, delta)

	s.SetLiked(postID, !wasLiked)
	s.MutatePostEverywhere(postID, func(p models.Post) models.Post {
		p.Likes += delta
		p.IsLiked = !wasLiked
		return p
	})

	if wasLiked {
		err = s.posts.UnlikePost(ctx, viewer.ID, postID)
	} else {
		err = s.posts.LikePost(ctx, viewer.ID, postID)
	}
	if err == nil {
		return nil
	}

	// Only copies still carrying the optimistic state are put back.
	s.SetLiked(postID, wasLiked)
	s.MutatePostEverywhere(postID, func(p models.Post) models.Post {
		if p.IsLiked != !wasLiked {
			return p
		}
		p.Likes -= delta
		p.IsLiked = wasLiked
		return p
	})
	s.metrics.reverted(action)
	err = fmt.Errorf("failed to %s post: %w", action, err)
	glog.Errorf("feed: %v", err)
	h.alert(err)
	return err
}
