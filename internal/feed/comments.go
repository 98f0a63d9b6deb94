// ABOUTME: The open comments view of a hook and its optimistic comment posting.
// ABOUTME: A pending comment carries a temporary ID until the backend stores it.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/2389-research/circle/internal/format"
	"github.com/2389-research/circle/internal/models"
)

var (
	// ErrNoComments is returned when adding a comment with no post selected.
	ErrNoComments = errors.New("no post selected for comments")

	// ErrEmptyComment is returned for blank comment text.
	ErrEmptyComment = errors.New("comment is empty")
)

// tempCommentPrefix marks comment IDs that have not been stored yet.
const tempCommentPrefix = "temp-"

// CommentSelection is the comments view a hook currently has open.
type CommentSelection struct {
	PostID   string
	Comments []models.Comment
	Count    int
	Loading  bool
}

// Open reports whether a post is selected.
func (c CommentSelection) Open() bool {
	return c.PostID != ""
}

func (c CommentSelection) clone() CommentSelection {
	out := c
	out.Comments = append([]models.Comment(nil), c.Comments...)
	return out
}

// Comments returns a copy of the open selection.
func (h *Hook) Comments() CommentSelection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selection.clone()
}

// setSelection applies fn to the selection and emits a change.
func (h *Hook) setSelection(fn func(*CommentSelection)) {
	h.mu.Lock()
	fn(&h.selection)
	h.mu.Unlock()
	h.emit()
}

// OpenComments selects postID and loads its comments, newest first.
func (h *Hook) OpenComments(ctx context.Context, postID string) error {
	h.setSelection(func(sel *CommentSelection) {
		*sel = CommentSelection{PostID: postID, Loading: true}
	})

	records, err := h.store.posts.CommentsByPost(ctx, postID)
	if err != nil {
		h.setSelection(func(sel *CommentSelection) {
			if sel.PostID == postID {
				sel.Loading = false
			}
		})
		err = fmt.Errorf("failed to load comments: %w", err)
		h.alert(err)
		return err
	}

	comments := h.store.formatter.FormatComments(ctx, records)
	h.setSelection(func(sel *CommentSelection) {
		if sel.PostID != postID {
			return
		}
		sel.Comments = comments
		sel.Count = len(comments)
		sel.Loading = false
	})
	return nil
}

// CloseComments clears the selection.
func (h *Hook) CloseComments() {
	h.setSelection(func(sel *CommentSelection) {
		*sel = CommentSelection{}
	})
}

// AddComment posts text on the selected post. The comment shows up at once
// in the selection and in every cached copy of the post; if saving fails it
// is removed again, the count restored, and the error alerted and returned.
func (h *Hook) AddComment(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyComment
	}
	postID := h.Comments().PostID
	if postID == "" {
		return ErrNoComments
	}
	viewer, err := h.store.viewer.Viewer(ctx)
	if err != nil || viewer.ID == "" {
		h.alert(ErrNoViewer)
		return ErrNoViewer
	}

	s := h.store
	now := s.now()
	name := viewer.DisplayName
	if name == "" {
		name = format.UnknownUser
	}
	pending := models.Comment{
		ID:           tempCommentPrefix + uuid.NewString(),
		PostID:       postID,
		AuthorID:     viewer.ID,
		AuthorName:   name,
		AuthorAvatar: viewer.AvatarURL,
		Content:      text,
		TimeAgo:      format.RelativeTime(now, now),
		CreatedAt:    now,
		Pending:      true,
	}

	h.setSelection(func(sel *CommentSelection) {
		if sel.PostID == postID {
			sel.Comments = append([]models.Comment{pending}, sel.Comments...)
			sel.Count++
		}
	})
	s.MutatePostEverywhere(postID, func(p models.Post) models.Post {
		p.Comments = append([]models.Comment{pending}, p.Comments...)
		p.CommentCount++
		return p
	})

	rec := &models.CommentRecord{PostID: postID, UserID: viewer.ID, Content: text}
	if err := s.posts.CreateComment(ctx, rec); err != nil {
		h.setSelection(func(sel *CommentSelection) {
			if sel.PostID == postID {
				if rest, ok := removeComment(sel.Comments, pending.ID); ok {
					sel.Comments = rest
					sel.Count--
				}
			}
		})
		s.MutatePostEverywhere(postID, func(p models.Post) models.Post {
			if rest, ok := removeComment(p.Comments, pending.ID); ok {
				p.Comments = rest
				p.CommentCount--
			}
			return p
		})
		s.metrics.reverted("comment")
		err = fmt.Errorf("failed to add comment: %w", err)
		glog.Errorf("feed: %v", err)
		h.alert(err)
		return err
	}

	stored := pending
	stored.ID = rec.ID
	stored.CreatedAt = rec.CreatedAt
	stored.TimeAgo = format.RelativeTime(rec.CreatedAt, s.now())
	stored.Pending = false

	h.setSelection(func(sel *CommentSelection) {
		replaceComment(sel.Comments, pending.ID, stored)
	})
	s.MutatePostEverywhere(postID, func(p models.Post) models.Post {
		replaceComment(p.Comments, pending.ID, stored)
		return p
	})
	return nil
}

func removeComment(comments []models.Comment, id string) ([]models.Comment, bool) {
	for i, c := range comments {
		if c.ID == id {
			return append(comments[:i:i], comments[i+1:]...), true
		}
	}
	return comments, false
}

func replaceComment(comments []models.Comment, id string, with models.Comment) {
	for i, c := range comments {
		if c.ID == id {
			comments[i] = with
			return
		}
	}
}
