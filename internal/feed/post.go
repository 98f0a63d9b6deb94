// ABOUTME: Creating a post as the viewer and placing it on the viewer's feeds.
package feed

import (
	"context"
	"fmt"

	"github.com/2389-research/circle/internal/models"
)

// CreatePost saves rec as the viewer's post, formats it, and puts it at the
// top of Home and OwnProfile.
func (s *Store) CreatePost(ctx context.Context, rec *models.PostRecord) (models.Post, error) {
	viewer, err := s.viewer.Viewer(ctx)
	if err != nil || viewer.ID == "" {
		return models.Post{}, ErrNoViewer
	}
	rec.UserID = viewer.ID
	if err := s.posts.CreatePost(ctx, rec); err != nil {
		return models.Post{}, fmt.Errorf("failed to create post: %w", err)
	}

	formatted := s.formatter.Format(ctx, []models.PostRecord{*rec})
	if len(formatted) == 0 {
		return models.Post{}, fmt.Errorf("failed to format post %s", rec.ID)
	}
	post := formatted[0]
	s.AddNewPost(post)
	return post, nil
}
