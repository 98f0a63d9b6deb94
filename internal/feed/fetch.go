// ABOUTME: Page fetching: preconditions, source fan-out, de-duplication and merge.
// ABOUTME: Failures land on the feed's Error field; prior items stay visible.
package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/2389-research/circle/internal/models"
	"github.com/2389-research/circle/internal/storage"
)

// FetchOptions selects which page to fetch and whether to skip preconditions.
type FetchOptions struct {
	LoadMore bool
	Force    bool
}

// FetchPage loads the first or next page of a feed and merges it into the
// store. profileID is only used by OtherProfile. Identical unforced
// requests that overlap share one fetch. The returned error is also
// recorded on the feed.
func (s *Store) FetchPage(ctx context.Context, kind Kind, profileID string, opts FetchOptions) error {
	kind.mustBeValid()
	if opts.Force {
		return s.fetch(ctx, kind, profileID, opts)
	}

	key := fmt.Sprintf("%s/%s/%t", kind, profileID, opts.LoadMore)
	_, err, shared := s.flight.Do(key, func() (any, error) {
		return nil, s.fetch(ctx, kind, profileID, opts)
	})
	if shared {
		glog.V(2).Infof("feed %s: joined in-flight fetch %s", kind, key)
	}
	return err
}

func (s *Store) fetch(ctx context.Context, kind Kind, profileID string, opts FetchOptions) error {
	viewer, err := s.viewer.Viewer(ctx)
	if err != nil && !errors.Is(err, ErrNoViewer) {
		glog.Warningf("feed %s: resolving viewer: %v", kind, err)
	}

	if !opts.Force {
		if reason := notReady(kind, viewer, profileID); reason != "" {
			glog.V(1).Infof("feed %s: not ready: %s", kind, reason)
			s.Update(kind, func(st State) State {
				st.IsLoading = false
				return st
			})
			s.metrics.fetched(kind, resultNotReady)
			return nil
		}
	}

	page, gen := s.begin(kind, profileID, opts.LoadMore)
	glog.V(1).Infof("feed %s: fetching page %d (force=%t)", kind, page, opts.Force)

	items, err := s.load(ctx, kind, viewer, profileID, page)
	if err != nil {
		err = fmt.Errorf("failed to load posts: %w", err)
		s.fail(kind, profileID, gen, opts.LoadMore, err)
		return err
	}
	s.merge(kind, profileID, gen, page, opts.LoadMore, items)
	return nil
}

// notReady explains why a feed cannot be fetched yet, or returns "".
func notReady(kind Kind, v Viewer, profileID string) string {
	switch kind {
	case Home:
		if v.ID == "" {
			return "no viewer"
		}
		if len(v.InterestIDs) == 0 {
			return "no interests"
		}
	case OwnProfile:
		if v.ID == "" {
			return "no viewer"
		}
	case OtherProfile:
		if profileID == "" {
			return "no profile id"
		}
	}
	return ""
}

// begin sets the loading flag and returns the page to fetch along with
// the feed generation the result must still match when it lands.
func (s *Store) begin(kind Kind, profileID string, loadMore bool) (page int, gen uint64) {
	s.Update(kind, func(st State) State {
		if kind == OtherProfile && st.UserID != profileID {
			st = State{UserID: profileID}
		}
		if loadMore {
			st.IsLoadingMore = true
			page = st.Page + 1
		} else {
			st.IsLoading = true
			page = 1
			s.generation[kind]++
		}
		st.Error = ""
		gen = s.generation[kind]
		return st
	})
	return page, gen
}

// current reports whether a fetch started at gen may still write its result.
// Must be called with s.mu held.
func (s *Store) current(kind Kind, st State, profileID string, gen uint64) bool {
	if s.generation[kind] != gen {
		return false
	}
	return kind != OtherProfile || st.UserID == profileID
}

func (s *Store) fail(kind Kind, profileID string, gen uint64, loadMore bool, err error) {
	stale := false
	s.Update(kind, func(st State) State {
		if !s.current(kind, st, profileID, gen) {
			stale = true
			if loadMore {
				st.IsLoadingMore = false
			}
			return st
		}
		st.Error = err.Error()
		st.IsLoading = false
		st.IsLoadingMore = false
		return st
	})
	if stale {
		s.metrics.fetched(kind, resultDiscarded)
		return
	}
	glog.Warningf("feed %s: %v", kind, err)
	s.metrics.fetched(kind, resultError)
}

func (s *Store) merge(kind Kind, profileID string, gen uint64, page int, loadMore bool, items []Item) {
	stale := false
	s.Update(kind, func(st State) State {
		if !s.current(kind, st, profileID, gen) {
			stale = true
			if loadMore {
				st.IsLoadingMore = false
			}
			return st
		}

		if loadMore {
			added := 0
			for _, it := range items {
				if st.has(it.ID()) {
					continue
				}
				st.Items = append(st.Items, it)
				added++
			}
			st.Page = page
			st.HasMore = added >= s.pageSize/2
		} else {
			merged := make([]Item, 0, len(items)+1)
			if kind == Home {
				merged = append(merged, CarouselItem())
			}
			st.Items = append(merged, items...)
			st.Page = 1
			st.HasMore = len(items) >= s.pageSize
		}
		st.IsLoading = false
		st.IsLoadingMore = false
		st.Timestamp = s.now()
		return st
	})

	if stale {
		glog.V(1).Infof("feed %s: discarding superseded page %d", kind, page)
		s.metrics.fetched(kind, resultDiscarded)
		return
	}
	s.metrics.fetched(kind, resultOK)
}

// load gathers, de-duplicates and formats one page.
func (s *Store) load(ctx context.Context, kind Kind, v Viewer, profileID string, page int) ([]Item, error) {
	var (
		records []models.PostRecord
		err     error
	)
	switch kind {
	case Home:
		records, err = s.gatherHome(ctx, v, page)
	case OwnProfile:
		records, err = s.posts.PostsByUser(ctx, v.ID, storage.PostQuery{Limit: s.pageSize, Page: page})
	case OtherProfile:
		records, err = s.posts.PostsByUser(ctx, profileID, storage.PostQuery{Limit: s.pageSize, Page: page})
	}
	if err != nil {
		return nil, err
	}

	records = dedupe(records)
	s.syncLikes(ctx, v, records)

	posts := s.formatter.Format(ctx, records)
	liked := s.LikedPosts()
	deltas := s.pendingLikeDeltas()
	items := make([]Item, len(posts))
	for i, p := range posts {
		p.IsLiked = liked[p.ID]
		p.Likes = max(p.Likes+deltas[p.ID], 0)
		items[i] = PostItem(p)
	}
	return items, nil
}

// gatherHome fans out to the recommender, every followed interest and every
// friend, then shuffles the union. The recommender is consulted on the
// first page only, and its failures are logged rather than returned.
func (s *Store) gatherHome(ctx context.Context, v Viewer, page int) ([]models.PostRecord, error) {
	interestQuery := storage.PostQuery{Limit: s.pageSize, Page: page, MaxAgeDays: s.maxAgeDays, Random: true}
	friendQuery := storage.PostQuery{Limit: s.pageSize, Page: page, MaxAgeDays: s.maxAgeDays}

	sources := make([][]models.PostRecord, 1+len(v.InterestIDs)+len(v.FriendIDs))
	g, gctx := errgroup.WithContext(ctx)

	if page == 1 {
		g.Go(func() error {
			recs, err := s.posts.RecommendedPosts(gctx, v.ID, s.pageSize)
			if err != nil {
				glog.Warningf("feed %s: recommendations unavailable: %v", Home, err)
				return nil
			}
			sources[0] = recs
			return nil
		})
	}
	for i, interestID := range v.InterestIDs {
		g.Go(func() error {
			recs, err := s.posts.PostsByInterest(gctx, interestID, interestQuery)
			if err != nil {
				return fmt.Errorf("interest %s: %w", interestID, err)
			}
			sources[1+i] = recs
			return nil
		})
	}
	for i, friendID := range v.FriendIDs {
		g.Go(func() error {
			recs, err := s.posts.PostsByUser(gctx, friendID, friendQuery)
			if err != nil {
				return fmt.Errorf("friend %s: %w", friendID, err)
			}
			sources[1+len(v.InterestIDs)+i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.PostRecord
	for _, recs := range sources {
		all = append(all, recs...)
	}
	s.shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all, nil
}

// dedupe keeps one record per ID: the last one seen, at the position the
// ID first appeared.
func dedupe(records []models.PostRecord) []models.PostRecord {
	index := make(map[string]int, len(records))
	out := make([]models.PostRecord, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// syncLikes brings the liked set in line with the backend for the fetched
// posts, except posts with a like toggle still in flight.
func (s *Store) syncLikes(ctx context.Context, v Viewer, records []models.PostRecord) {
	if v.ID == "" || len(records) == 0 {
		return
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	likedIDs, err := s.posts.LikedPostIDs(ctx, v.ID, ids)
	if err != nil {
		glog.Warningf("feed: liked posts unavailable: %v", err)
		return
	}
	liked := make(map[string]bool, len(likedIDs))
	for _, id := range likedIDs {
		liked[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if s.pendingLikes[id] > 0 {
			continue
		}
		s.setLikedLocked(id, liked[id])
	}
}
