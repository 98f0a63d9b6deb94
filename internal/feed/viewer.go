// ABOUTME: The identity collaborator: who is viewing and what they follow.
// ABOUTME: Fetch preconditions and optimistic mutations both depend on it.
package feed

import (
	"context"
	"errors"
)

// ErrNoViewer is returned when no viewer is signed in.
var ErrNoViewer = errors.New("no viewer signed in")

// Viewer is the signed-in user as the feeds see them.
type Viewer struct {
	ID          string
	DisplayName string
	AvatarURL   string
	InterestIDs []string
	FriendIDs   []string
}

// ViewerSource supplies the current viewer. Implementations return
// ErrNoViewer when nobody is signed in.
type ViewerSource interface {
	Viewer(ctx context.Context) (Viewer, error)
}

// StaticViewer is a ViewerSource that always returns the same viewer.
type StaticViewer Viewer

// Viewer returns v, or ErrNoViewer when v has no ID.
func (v StaticViewer) Viewer(ctx context.Context) (Viewer, error) {
	if v.ID == "" {
		return Viewer{}, ErrNoViewer
	}
	return Viewer(v), nil
}
