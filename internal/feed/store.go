// ABOUTME: Process-wide feed cache: three feeds, the liked-post set and subscribers.
// ABOUTME: All mutation goes through Update so subscribers see every meaningful change.
package feed

import (
	"math/rand/v2"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/singleflight"

	"github.com/2389-research/circle/internal/format"
	"github.com/2389-research/circle/internal/models"
	"github.com/2389-research/circle/internal/storage"
)

// Defaults for fetch sizing.
const (
	DefaultPageSize   = 10
	DefaultMaxAgeDays = 30
)

// Listener receives a copy of a feed's state after it changes.
type Listener func(State)

// Store caches the feeds and fans changes out to subscribers.
type Store struct {
	posts     storage.Posts
	viewer    ViewerSource
	formatter *format.Formatter

	now        func() time.Time
	pageSize   int
	maxAgeDays int
	shuffle    func(n int, swap func(i, j int))
	metrics    *Metrics

	flight singleflight.Group

	mu           sync.Mutex
	feeds        [numKinds]State
	generation   [numKinds]uint64
	listeners    [numKinds]map[int]Listener
	nextListener int
	liked        map[string]struct{}
	pendingLikes map[string]int
	likeDeltas   map[string]int
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for timestamps and staleness.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithPageSize sets how many posts each source is asked for per page.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithMaxAgeDays limits interest posts on the home feed to the last n days.
func WithMaxAgeDays(n int) Option {
	return func(s *Store) {
		s.maxAgeDays = n
	}
}

// WithShuffle replaces the shuffle applied to the gathered home feed.
func WithShuffle(shuffle func(n int, swap func(i, j int))) Option {
	return func(s *Store) {
		s.shuffle = shuffle
	}
}

// WithMetrics records fetch and mutation counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates a store. Home and OwnProfile start empty and loading.
func New(posts storage.Posts, viewer ViewerSource, formatter *format.Formatter, opts ...Option) *Store {
	s := &Store{
		posts:        posts,
		viewer:       viewer,
		formatter:    formatter,
		now:          time.Now,
		pageSize:     DefaultPageSize,
		maxAgeDays:   DefaultMaxAgeDays,
		shuffle:      rand.Shuffle,
		liked:        make(map[string]struct{}),
		pendingLikes: make(map[string]int),
		likeDeltas:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.feeds[Home] = initialState()
	s.feeds[OwnProfile] = initialState()
	for k := range s.listeners {
		s.listeners[k] = make(map[int]Listener)
	}
	return s
}

// Get returns a copy of a feed's state.
func (s *Store) Get(kind Kind) State {
	kind.mustBeValid()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds[kind].Clone()
}

// Update replaces a feed's state with fn's result. Subscribers are notified
// only when the item IDs, flags, page, error or profile changed. fn runs with
// the store locked and must not call back into it.
func (s *Store) Update(kind Kind, fn func(State) State) {
	kind.mustBeValid()
	if s.update(kind, fn) {
		s.notify(kind)
	}
}

func (s *Store) update(kind Kind, fn func(State) State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.feeds[kind]
	next := fn(prev.Clone())
	s.feeds[kind] = next
	return changed(prev, next)
}

// notify calls the feed's listeners with the current state, on the
// caller's goroutine. The listener set is copied first so listeners may
// subscribe or unsubscribe while being called.
func (s *Store) notify(kind Kind) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.listeners[kind]))
	for id := range s.listeners[kind] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, len(ids))
	for i, id := range ids {
		listeners[i] = s.listeners[kind][id]
	}
	state := s.feeds[kind].Clone()
	s.mu.Unlock()

	s.metrics.notified(kind)
	glog.V(2).Infof("feed %s: notifying %d listeners", kind, len(listeners))
	for _, l := range listeners {
		l(state.Clone())
	}
}

// Subscribe registers l for changes to a feed. The returned function
// removes it and is safe to call more than once.
func (s *Store) Subscribe(kind Kind, l Listener) (unsubscribe func()) {
	kind.mustBeValid()
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[kind][id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners[kind], id)
			s.mu.Unlock()
		})
	}
}

// SetLiked adds or removes postID from the liked set and returns the new
// membership. It does not notify.
func (s *Store) SetLiked(postID string, liked bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLikedLocked(postID, liked)
	return liked
}

func (s *Store) setLikedLocked(postID string, liked bool) bool {
	_, was := s.liked[postID]
	if was == liked {
		return false
	}
	if liked {
		s.liked[postID] = struct{}{}
	} else {
		delete(s.liked, postID)
	}
	return true
}

// IsLiked reports whether the viewer likes postID.
func (s *Store) IsLiked(postID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.liked[postID]
	return ok
}

// LikedPosts returns a copy of the liked set.
func (s *Store) LikedPosts() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.liked))
	for id := range s.liked {
		out[id] = true
	}
	return out
}

// beginLike marks a like toggle on postID as in flight, so a fetch that
// resolves meanwhile keeps the optimistic liked state and count.
func (s *Store) beginLike(postID string, delta int) {
	s.mu.Lock()
	s.pendingLikes[postID]++
	s.likeDeltas[postID] += delta
	s.mu.Unlock()
}

func (s *Store) endLike(postID string, delta int) {
	s.mu.Lock()
	if s.pendingLikes[postID]--; s.pendingLikes[postID] <= 0 {
		delete(s.pendingLikes, postID)
	}
	if s.likeDeltas[postID] -= delta; s.likeDeltas[postID] == 0 {
		delete(s.likeDeltas, postID)
	}
	s.mu.Unlock()
}

// pendingLikeDeltas returns the like count changes not yet saved, by post.
func (s *Store) pendingLikeDeltas() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.likeDeltas))
	for id, d := range s.likeDeltas {
		out[id] = d
	}
	return out
}

// MutatePostEverywhere applies fn to every cached copy of postID and
// notifies each feed whose copy actually changed.
func (s *Store) MutatePostEverywhere(postID string, fn func(models.Post) models.Post) {
	var touched []Kind

	s.mu.Lock()
	for _, kind := range Kinds() {
		items := s.feeds[kind].Items
		for i := range items {
			if items[i].IsCarousel() || items[i].Post.ID != postID {
				continue
			}
			next := fn(items[i].Post.Clone())
			if reflect.DeepEqual(items[i].Post, next) {
				continue
			}
			// Items is copied before writing so states handed out earlier stay intact.
			updated := make([]Item, len(items))
			copy(updated, items)
			updated[i] = PostItem(next)
			s.feeds[kind].Items = updated
			touched = append(touched, kind)
			break
		}
	}
	s.mu.Unlock()

	for _, kind := range touched {
		s.notify(kind)
	}
}

// AddNewPost puts a freshly created post at the top of Home, after the
// carousel, and at the top of OwnProfile. OtherProfile is left alone.
func (s *Store) AddNewPost(post models.Post) {
	for _, kind := range []Kind{Home, OwnProfile} {
		s.Update(kind, func(st State) State {
			items := make([]Item, 0, len(st.Items)+1)
			at := 0
			if len(st.Items) > 0 && st.Items[0].IsCarousel() {
				items = append(items, st.Items[0])
				at = 1
			}
			items = append(items, PostItem(post.Clone()))
			for _, it := range st.Items[at:] {
				if it.ID() != post.ID {
					items = append(items, it)
				}
			}
			st.Items = items
			return st
		})
	}
}

// Invalidate marks a feed as needing a refresh without notifying anyone.
func (s *Store) Invalidate(kind Kind) {
	kind.mustBeValid()
	s.mu.Lock()
	s.feeds[kind].Timestamp = time.Time{}
	s.mu.Unlock()
}

// resetOther clears OtherProfile when it holds a different profile.
func (s *Store) resetOther(profileID string) {
	s.Update(OtherProfile, func(st State) State {
		if st.UserID == profileID {
			return st
		}
		glog.V(1).Infof("feed %s: switching profile %q -> %q", OtherProfile, st.UserID, profileID)
		return State{IsLoading: true, UserID: profileID}
	})
}
