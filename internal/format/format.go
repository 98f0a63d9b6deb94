// ABOUTME: Turns stored post records into display-ready notes and events.
// ABOUTME: Joins authors, interests, comments and attendees through batched loaders.
package format

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/graph-gophers/dataloader/v7"

	"github.com/2389-research/circle/internal/models"
	"github.com/2389-research/circle/internal/storage"
)

// Placeholder values used when a joined record is missing.
const (
	UnknownUser     = "Unknown User"
	DefaultInterest = "General"
)

// maxAttendeeAvatars caps the avatar strip shown on an event.
const maxAttendeeAvatars = 5

// Formatter converts post records into models.Post values.
type Formatter struct {
	dir  storage.Directory
	now  func() time.Time
	wait time.Duration
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithClock sets the time source used for relative times and event status.
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) {
		f.now = now
	}
}

// WithBatchWait sets how long loaders collect keys before issuing a batch.
func WithBatchWait(d time.Duration) Option {
	return func(f *Formatter) {
		f.wait = d
	}
}

// New creates a Formatter backed by dir.
func New(dir storage.Directory, opts ...Option) *Formatter {
	f := &Formatter{
		dir:  dir,
		now:  time.Now,
		wait: 2 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// loaders holds the per-call batched lookups. A fresh set is built for each
// Format call so nothing is cached across fetches.
type loaders struct {
	profiles  *dataloader.Loader[string, models.Profile]
	interests *dataloader.Loader[string, models.Interest]
	attendees *dataloader.Loader[string, []models.Profile]
	comments  *dataloader.Loader[string, []models.CommentRecord]
}

func (f *Formatter) newLoaders() *loaders {
	return &loaders{
		profiles: dataloader.NewBatchedLoader(
			batchRecords(f.dir.Profiles),
			dataloader.WithWait[string, models.Profile](f.wait),
		),
		interests: dataloader.NewBatchedLoader(
			batchRecords(f.dir.Interests),
			dataloader.WithWait[string, models.Interest](f.wait),
		),
		attendees: dataloader.NewBatchedLoader(
			batchLists(f.dir.Attendees),
			dataloader.WithWait[string, []models.Profile](f.wait),
		),
		comments: dataloader.NewBatchedLoader(
			batchLists(f.dir.CommentsForPosts),
			dataloader.WithWait[string, []models.CommentRecord](f.wait),
		),
	}
}

// batchRecords adapts a map-returning directory lookup to a dataloader batch
// function. Keys absent from the map resolve to storage.ErrNotFound.
func batchRecords[V any](lookup func(context.Context, []string) (map[string]V, error)) dataloader.BatchFunc[string, V] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[V] {
		results := make([]*dataloader.Result[V], len(keys))
		found, err := lookup(ctx, keys)
		for i, key := range keys {
			switch v, ok := found[key]; {
			case err != nil:
				results[i] = &dataloader.Result[V]{Error: err}
			case !ok:
				results[i] = &dataloader.Result[V]{Error: fmt.Errorf("%s: %w", key, storage.ErrNotFound)}
			default:
				results[i] = &dataloader.Result[V]{Data: v}
			}
		}
		return results
	}
}

// batchLists is batchRecords for one-to-many lookups; absent keys are empty lists.
func batchLists[V any](lookup func(context.Context, []string) (map[string][]V, error)) dataloader.BatchFunc[string, []V] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[[]V] {
		results := make([]*dataloader.Result[[]V], len(keys))
		found, err := lookup(ctx, keys)
		for i, key := range keys {
			if err != nil {
				results[i] = &dataloader.Result[[]V]{Error: err}
				continue
			}
			results[i] = &dataloader.Result[[]V]{Data: found[key]}
		}
		return results
	}
}

// pending is the set of thunks issued for one record.
type pending struct {
	author    dataloader.Thunk[models.Profile]
	interest  dataloader.Thunk[models.Interest]
	comments  dataloader.Thunk[[]models.CommentRecord]
	attendees dataloader.Thunk[[]models.Profile]
}

// Format converts records into posts, preserving order. Failed or missing
// joins degrade to placeholder values; a record never fails as a whole.
func (f *Formatter) Format(ctx context.Context, records []models.PostRecord) []models.Post {
	if len(records) == 0 {
		return nil
	}
	l := f.newLoaders()

	// Issue every load before resolving any so each loader sends one batch.
	thunks := make([]pending, len(records))
	for i := range records {
		r := &records[i]
		thunks[i].author = l.profiles.Load(ctx, r.UserID)
		if r.InterestID != "" {
			thunks[i].interest = l.interests.Load(ctx, r.InterestID)
		}
		thunks[i].comments = l.comments.Load(ctx, r.ID)
		if r.IsEvent() {
			thunks[i].attendees = l.attendees.Load(ctx, r.ID)
		}
	}

	// Comment authors are a second round, keyed by the comments just loaded.
	commentAuthors := make(map[string]dataloader.Thunk[models.Profile])
	commentsByPost := make([][]models.CommentRecord, len(records))
	for i := range records {
		comments, err := thunks[i].comments()
		if err != nil {
			glog.Warningf("format: comments for post %s unavailable: %v", records[i].ID, err)
			continue
		}
		commentsByPost[i] = comments
		for _, c := range comments {
			if _, ok := commentAuthors[c.UserID]; !ok {
				commentAuthors[c.UserID] = l.profiles.Load(ctx, c.UserID)
			}
		}
	}

	now := f.now()
	posts := make([]models.Post, len(records))
	for i := range records {
		r := &records[i]
		post := models.Post{
			Type: r.Type,
			PostBase: models.PostBase{
				ID:           r.ID,
				AuthorID:     r.UserID,
				Title:        r.Title,
				Body:         r.Body,
				ImageURL:     r.ImageURL,
				Likes:        r.LikeCount,
				CommentCount: r.CommentCount,
				TimeAgo:      RelativeTime(r.CreatedAt, now),
				CreatedAt:    r.CreatedAt,
			},
		}
		if post.Type == "" {
			post.Type = models.PostTypeNote
		}

		post.AuthorName, post.AuthorAvatar = resolveProfile(thunks[i].author)
		post.Interest = DefaultInterest
		if thunks[i].interest != nil {
			if interest, err := thunks[i].interest(); err == nil && interest.Name != "" {
				post.Interest = interest.Name
			}
		}

		for _, c := range commentsByPost[i] {
			post.Comments = append(post.Comments, commentFrom(c, commentAuthors[c.UserID], now))
		}
		if post.CommentCount < len(post.Comments) {
			post.CommentCount = len(post.Comments)
		}

		if r.IsEvent() {
			post.Event = eventDetails(r, thunks[i].attendees, now)
		}
		posts[i] = post
	}
	return posts
}

// FormatComments converts comment records, resolving their authors in one batch.
func (f *Formatter) FormatComments(ctx context.Context, records []models.CommentRecord) []models.Comment {
	if len(records) == 0 {
		return nil
	}
	l := f.newLoaders()
	authors := make(map[string]dataloader.Thunk[models.Profile])
	for _, c := range records {
		if _, ok := authors[c.UserID]; !ok {
			authors[c.UserID] = l.profiles.Load(ctx, c.UserID)
		}
	}

	now := f.now()
	out := make([]models.Comment, len(records))
	for i, c := range records {
		out[i] = commentFrom(c, authors[c.UserID], now)
	}
	return out
}

func commentFrom(c models.CommentRecord, author dataloader.Thunk[models.Profile], now time.Time) models.Comment {
	name, avatar := resolveProfile(author)
	return models.Comment{
		ID:           c.ID,
		PostID:       c.PostID,
		AuthorID:     c.UserID,
		AuthorName:   name,
		AuthorAvatar: avatar,
		Content:      c.Content,
		TimeAgo:      RelativeTime(c.CreatedAt, now),
		CreatedAt:    c.CreatedAt,
	}
}

func resolveProfile(thunk dataloader.Thunk[models.Profile]) (name, avatar string) {
	if thunk == nil {
		return UnknownUser, ""
	}
	p, err := thunk()
	if err != nil || p.DisplayName == "" {
		return UnknownUser, p.AvatarURL
	}
	return p.DisplayName, p.AvatarURL
}

func eventDetails(r *models.PostRecord, attendees dataloader.Thunk[[]models.Profile], now time.Time) *models.EventDetails {
	ev := &models.EventDetails{
		Location: r.Location,
		Status:   models.EventUpcoming,
	}
	if r.EventAt != nil {
		ev.Date = r.EventAt.Format("Monday, January 2")
		ev.Time = r.EventAt.Format("3:04 PM")
		ev.Status = EventStatusAt(*r.EventAt, now)
	}
	if r.Cancelled {
		ev.Status = models.EventCancelled
	}

	if attendees != nil {
		people, err := attendees()
		if err != nil {
			glog.Warningf("format: attendees for event %s unavailable: %v", r.ID, err)
		}
		ev.AttendeeCount = len(people)
		for _, p := range people {
			if len(ev.Attendees) == maxAttendeeAvatars {
				break
			}
			ev.Attendees = append(ev.Attendees, p.AvatarURL)
		}
	}
	return ev
}
