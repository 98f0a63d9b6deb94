// ABOUTME: Interface definitions for post, comment, like and directory storage.
// ABOUTME: Defines the contract every backend (remote, postgres, memory) implements.
package storage

import (
	"context"
	"errors"

	"github.com/2389-research/circle/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// PostQuery configures pagination and filtering for post listings.
type PostQuery struct {
	Limit      int
	Page       int  // 1-based
	MaxAgeDays int  // 0 means no age limit
	Random     bool // shuffle the page for variety
}

// Offset returns the row offset for the query's page.
func (q PostQuery) Offset() int {
	if q.Page <= 1 || q.Limit <= 0 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// Posts defines operations on posts, comments and likes.
type Posts interface {
	// PostsByUser returns a page of posts authored by userID, newest first.
	PostsByUser(ctx context.Context, userID string, q PostQuery) ([]models.PostRecord, error)

	// PostsByInterest returns a page of posts filed under interestID.
	PostsByInterest(ctx context.Context, interestID string, q PostQuery) ([]models.PostRecord, error)

	// RecommendedPosts returns up to limit posts picked for userID.
	RecommendedPosts(ctx context.Context, userID string, limit int) ([]models.PostRecord, error)

	// CommentsByPost returns every comment on a post, newest first.
	CommentsByPost(ctx context.Context, postID string) ([]models.CommentRecord, error)

	// CreateComment stores a comment. ID and CreatedAt are filled in when empty.
	CreateComment(ctx context.Context, c *models.CommentRecord) error

	// LikePost records that userID likes postID. Liking twice is a no-op.
	LikePost(ctx context.Context, userID, postID string) error

	// UnlikePost removes a like. Unliking a post that is not liked is a no-op.
	UnlikePost(ctx context.Context, userID, postID string) error

	// LikedPostIDs returns the subset of postIDs liked by userID.
	LikedPostIDs(ctx context.Context, userID string, postIDs []string) ([]string, error)

	// CreatePost stores a post. ID and CreatedAt are filled in when empty.
	CreatePost(ctx context.Context, p *models.PostRecord) error
}

// Directory resolves the records joined onto posts, in batches.
// Missing keys are simply absent from the returned maps.
type Directory interface {
	Profiles(ctx context.Context, ids []string) (map[string]models.Profile, error)
	Interests(ctx context.Context, ids []string) (map[string]models.Interest, error)
	Attendees(ctx context.Context, postIDs []string) (map[string][]models.Profile, error)
	CommentsForPosts(ctx context.Context, postIDs []string) (map[string][]models.CommentRecord, error)

	// InterestIDsForUser returns the interests userID follows.
	InterestIDsForUser(ctx context.Context, userID string) ([]string, error)

	// FriendIDs returns the users with an accepted friendship with userID.
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// Backend is a complete storage implementation.
type Backend interface {
	Posts
	Directory

	// Close releases any resources held by the backend.
	Close() error
}
