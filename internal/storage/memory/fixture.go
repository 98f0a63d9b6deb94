// ABOUTME: YAML fixture loading for the in-memory backend.
// ABOUTME: Seeds profiles, interests, friendships, posts, comments and likes from one file.
package memory

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/circle/internal/models"
)

// Fixture is the on-disk shape of a seed file.
type Fixture struct {
	Profiles        []models.Profile       `yaml:"profiles"`
	Interests       []models.Interest      `yaml:"interests"`
	Follows         map[string][]string    `yaml:"follows"`     // user ID -> interest IDs
	Friendships     [][]string             `yaml:"friendships"` // accepted pairs
	Posts           []models.PostRecord    `yaml:"posts"`
	Comments        []models.CommentRecord `yaml:"comments"`
	Likes           map[string][]string    `yaml:"likes"`     // post ID -> user IDs
	Attendees       map[string][]string    `yaml:"attendees"` // post ID -> user IDs
	Recommendations map[string][]string    `yaml:"recommendations"`
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &f, nil
}

// NewFromFixture creates a store seeded from the fixture at path.
func NewFromFixture(path string) (*Store, error) {
	f, err := LoadFixture(path)
	if err != nil {
		return nil, err
	}
	s := New()
	s.Seed(f)
	return s, nil
}

// Seed loads every record of f into the store. Counters on posts are
// recomputed from the seeded comments and likes.
func (s *Store) Seed(f *Fixture) {
	for _, p := range f.Profiles {
		s.AddProfile(p)
	}
	for _, i := range f.Interests {
		s.AddInterest(i)
	}
	for user, interests := range f.Follows {
		s.Follow(user, interests...)
	}
	for _, pair := range f.Friendships {
		if len(pair) == 2 {
			s.Befriend(pair[0], pair[1])
		}
	}
	for user, posts := range f.Recommendations {
		s.Recommend(user, posts...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range f.Posts {
		p := f.Posts[i]
		if p.Type == "" {
			p.Type = models.PostTypeNote
		}
		p.LikeCount = 0
		p.CommentCount = 0
		s.posts[p.ID] = &p
	}
	for _, c := range f.Comments {
		post, ok := s.posts[c.PostID]
		if !ok {
			continue
		}
		s.comments[c.PostID] = append(s.comments[c.PostID], c)
		post.CommentCount++
	}
	for postID, users := range f.Likes {
		post, ok := s.posts[postID]
		if !ok {
			continue
		}
		if s.likes[postID] == nil {
			s.likes[postID] = make(map[string]struct{})
		}
		for _, u := range users {
			if _, dup := s.likes[postID][u]; !dup {
				s.likes[postID][u] = struct{}{}
				post.LikeCount++
			}
		}
	}
	for postID, users := range f.Attendees {
		s.attendees[postID] = append(s.attendees[postID], users...)
	}
}

// SetClock replaces the store's time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
