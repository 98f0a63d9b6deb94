// ABOUTME: Feed state and items, including the home carousel placeholder.
// ABOUTME: States are copied on every read so callers never share slices with the store.
package feed

import (
	"slices"
	"time"

	"github.com/2389-research/circle/internal/models"
)

// CarouselID is the item ID of the carousel placeholder.
const CarouselID = "carousel"

// ItemKind tags what an Item holds.
type ItemKind int

const (
	ItemPost ItemKind = iota
	ItemCarousel
)

// Item is one entry of a feed: either a post or the carousel placeholder
// that sits at the top of the home feed.
type Item struct {
	Kind ItemKind
	Post models.Post
}

// PostItem wraps a post.
func PostItem(p models.Post) Item {
	return Item{Kind: ItemPost, Post: p}
}

// CarouselItem returns the carousel placeholder.
func CarouselItem() Item {
	return Item{Kind: ItemCarousel}
}

// ID returns the item's identity within a feed.
func (i Item) ID() string {
	if i.Kind == ItemCarousel {
		return CarouselID
	}
	return i.Post.ID
}

// IsCarousel reports whether the item is the carousel placeholder.
func (i Item) IsCarousel() bool {
	return i.Kind == ItemCarousel
}

// State is the cached contents of one feed.
type State struct {
	Items         []Item
	IsLoading     bool
	IsLoadingMore bool
	HasMore       bool
	Error         string
	Page          int       // last page loaded, 1-based; 0 before the first load
	Timestamp     time.Time // last successful load; zero when never loaded or invalidated
	UserID        string    // profile the items belong to (OtherProfile only)
}

// initialState is how Home and OwnProfile start: empty and loading.
func initialState() State {
	return State{IsLoading: true}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	if s.Items != nil {
		out.Items = make([]Item, len(s.Items))
		for i, it := range s.Items {
			out.Items[i] = Item{Kind: it.Kind, Post: it.Post.Clone()}
		}
	}
	return out
}

// Posts returns the feed's posts without the carousel placeholder.
func (s State) Posts() []models.Post {
	posts := make([]models.Post, 0, len(s.Items))
	for _, it := range s.Items {
		if !it.IsCarousel() {
			posts = append(posts, it.Post)
		}
	}
	return posts
}

// Find returns the post with the given ID.
func (s State) Find(postID string) (models.Post, bool) {
	for _, it := range s.Items {
		if !it.IsCarousel() && it.Post.ID == postID {
			return it.Post, true
		}
	}
	return models.Post{}, false
}

// IDs returns the item IDs in order.
func (s State) IDs() []string {
	ids := make([]string, len(s.Items))
	for i, it := range s.Items {
		ids[i] = it.ID()
	}
	return ids
}

func (s State) has(id string) bool {
	for _, it := range s.Items {
		if it.ID() == id {
			return true
		}
	}
	return false
}

// changed reports whether b differs from a in anything a subscriber reacts to.
// Post contents and the timestamp are not compared.
func changed(a, b State) bool {
	return a.IsLoading != b.IsLoading ||
		a.IsLoadingMore != b.IsLoadingMore ||
		a.HasMore != b.HasMore ||
		a.Error != b.Error ||
		a.Page != b.Page ||
		a.UserID != b.UserID ||
		!slices.Equal(a.IDs(), b.IDs())
}
