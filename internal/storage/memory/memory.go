// ABOUTME: In-memory backend holding posts, comments, likes and the user directory.
// ABOUTME: Used for local demos from YAML fixtures and as the test double for feeds.
package memory

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389-research/circle/internal/models"
	"github.com/2389-research/circle/internal/storage"
)

// Store is a concurrency-safe in-memory storage.Backend.
type Store struct {
	mu          sync.RWMutex
	posts       map[string]*models.PostRecord
	comments    map[string][]models.CommentRecord // by post ID
	likes       map[string]map[string]struct{}    // post ID -> user IDs
	profiles    map[string]models.Profile
	interests   map[string]models.Interest
	follows     map[string][]string            // user ID -> interest IDs
	friends     map[string]map[string]struct{} // accepted friendships, both directions
	attendees   map[string][]string            // post ID -> user IDs
	recommended map[string][]string            // user ID -> post IDs
	now         func() time.Time
}

var _ storage.Backend = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		posts:       make(map[string]*models.PostRecord),
		comments:    make(map[string][]models.CommentRecord),
		likes:       make(map[string]map[string]struct{}),
		profiles:    make(map[string]models.Profile),
		interests:   make(map[string]models.Interest),
		follows:     make(map[string][]string),
		friends:     make(map[string]map[string]struct{}),
		attendees:   make(map[string][]string),
		recommended: make(map[string][]string),
		now:         time.Now,
	}
}

// AddProfile registers a user profile.
func (s *Store) AddProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

// AddInterest registers an interest.
func (s *Store) AddInterest(i models.Interest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interests[i.ID] = i
}

// Follow makes userID follow the given interests.
func (s *Store) Follow(userID string, interestIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.follows[userID] = append(s.follows[userID], interestIDs...)
}

// Befriend records an accepted friendship between a and b.
func (s *Store) Befriend(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if s.friends[pair[0]] == nil {
			s.friends[pair[0]] = make(map[string]struct{})
		}
		s.friends[pair[0]][pair[1]] = struct{}{}
	}
}

// Attend adds userID to an event's attendee list.
func (s *Store) Attend(postID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendees[postID] = append(s.attendees[postID], userID)
}

// Recommend sets the recommended post IDs for userID.
func (s *Store) Recommend(userID string, postIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommended[userID] = postIDs
}

// CreatePost stores a post.
func (s *Store) CreatePost(ctx context.Context, p *models.PostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if p.Type == "" {
		p.Type = models.PostTypeNote
	}
	cp := *p
	s.posts[p.ID] = &cp
	return nil
}

// PostsByUser returns a page of userID's posts, newest first.
func (s *Store) PostsByUser(ctx context.Context, userID string, q storage.PostQuery) ([]models.PostRecord, error) {
	return s.listPosts(q, func(p *models.PostRecord) bool { return p.UserID == userID }), nil
}

// PostsByInterest returns a page of posts filed under interestID.
func (s *Store) PostsByInterest(ctx context.Context, interestID string, q storage.PostQuery) ([]models.PostRecord, error) {
	return s.listPosts(q, func(p *models.PostRecord) bool { return p.InterestID == interestID }), nil
}

func (s *Store) listPosts(q storage.PostQuery, keep func(*models.PostRecord) bool) []models.PostRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if q.MaxAgeDays > 0 {
		cutoff = s.now().AddDate(0, 0, -q.MaxAgeDays)
	}

	var matched []models.PostRecord
	for _, p := range s.posts {
		if !keep(p) {
			continue
		}
		if !cutoff.IsZero() && p.CreatedAt.Before(cutoff) {
			continue
		}
		matched = append(matched, *p)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	offset := q.Offset()
	if offset >= len(matched) {
		return nil
	}
	matched = matched[offset:]

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}

	if q.Random {
		rand.Shuffle(len(matched), func(i, j int) { matched[i], matched[j] = matched[j], matched[i] })
	}
	return matched
}

// RecommendedPosts returns the posts recommended for userID, in recommendation order.
func (s *Store) RecommendedPosts(ctx context.Context, userID string, limit int) ([]models.PostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.PostRecord
	for _, id := range s.recommended[userID] {
		if limit > 0 && len(out) >= limit {
			break
		}
		if p, ok := s.posts[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// CommentsByPost returns every comment on postID, newest first.
func (s *Store) CommentsByPost(ctx context.Context, postID string) ([]models.CommentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.posts[postID]; !ok {
		return nil, storage.ErrNotFound
	}
	return s.sortedComments(postID), nil
}

func (s *Store) sortedComments(postID string) []models.CommentRecord {
	comments := make([]models.CommentRecord, len(s.comments[postID]))
	copy(comments, s.comments[postID])
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
	return comments
}

// CreateComment stores a comment and bumps the post's comment count.
func (s *Store) CreateComment(ctx context.Context, c *models.CommentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[c.PostID]
	if !ok {
		return storage.ErrNotFound
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.comments[c.PostID] = append(s.comments[c.PostID], *c)
	post.CommentCount++
	return nil
}

// LikePost records a like and bumps the post's like count.
func (s *Store) LikePost(ctx context.Context, userID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return storage.ErrNotFound
	}
	if s.likes[postID] == nil {
		s.likes[postID] = make(map[string]struct{})
	}
	if _, liked := s.likes[postID][userID]; liked {
		return nil
	}
	s.likes[postID][userID] = struct{}{}
	post.LikeCount++
	return nil
}

// UnlikePost removes a like and decrements the post's like count.
func (s *Store) UnlikePost(ctx context.Context, userID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return storage.ErrNotFound
	}
	if _, liked := s.likes[postID][userID]; !liked {
		return nil
	}
	delete(s.likes[postID], userID)
	if post.LikeCount > 0 {
		post.LikeCount--
	}
	return nil
}

// LikedPostIDs returns the subset of postIDs liked by userID.
func (s *Store) LikedPostIDs(ctx context.Context, userID string, postIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, id := range postIDs {
		if _, ok := s.likes[id][userID]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Profiles returns the known profiles among ids.
func (s *Store) Profiles(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Profile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// Interests returns the known interests among ids.
func (s *Store) Interests(ctx context.Context, ids []string) (map[string]models.Interest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Interest, len(ids))
	for _, id := range ids {
		if i, ok := s.interests[id]; ok {
			out[id] = i
		}
	}
	return out, nil
}

// Attendees returns the attendee profiles of each event in postIDs.
func (s *Store) Attendees(ctx context.Context, postIDs []string) (map[string][]models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]models.Profile)
	for _, postID := range postIDs {
		for _, userID := range s.attendees[postID] {
			p, ok := s.profiles[userID]
			if !ok {
				p = models.Profile{ID: userID}
			}
			out[postID] = append(out[postID], p)
		}
	}
	return out, nil
}

// CommentsForPosts returns the comments of each post in postIDs, newest first.
func (s *Store) CommentsForPosts(ctx context.Context, postIDs []string) (map[string][]models.CommentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]models.CommentRecord)
	for _, postID := range postIDs {
		if len(s.comments[postID]) > 0 {
			out[postID] = s.sortedComments(postID)
		}
	}
	return out, nil
}

// InterestIDsForUser returns the interests userID follows.
func (s *Store) InterestIDsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.follows[userID]...), nil
}

// FriendIDs returns userID's accepted friends, sorted.
func (s *Store) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.friends[userID]))
	for id := range s.friends[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Close clears the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = make(map[string]*models.PostRecord)
	s.comments = make(map[string][]models.CommentRecord)
	s.likes = make(map[string]map[string]struct{})
	return nil
}
