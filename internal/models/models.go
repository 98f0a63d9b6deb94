// ABOUTME: Core data models for stored post records and display-ready posts.
// ABOUTME: Raw records come from a backend; Post and Comment are what feeds hold.
package models

import (
	"time"

	"github.com/google/uuid"
)

// PostType distinguishes plain notes from events.
type PostType string

const (
	PostTypeNote  PostType = "note"
	PostTypeEvent PostType = "event"
)

// PostRecord is a post row as stored by a backend.
type PostRecord struct {
	ID           string     `json:"id" yaml:"id"`
	UserID       string     `json:"user_id" yaml:"user_id"`
	InterestID   string     `json:"interest_id,omitempty" yaml:"interest_id,omitempty"`
	Type         PostType   `json:"type" yaml:"type"`
	Title        string     `json:"title,omitempty" yaml:"title,omitempty"`
	Body         string     `json:"body,omitempty" yaml:"body,omitempty"`
	ImageURL     string     `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Location     string     `json:"location,omitempty" yaml:"location,omitempty"`
	EventAt      *time.Time `json:"event_at,omitempty" yaml:"event_at,omitempty"`
	Cancelled    bool       `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	LikeCount    int        `json:"like_count" yaml:"like_count"`
	CommentCount int        `json:"comment_count" yaml:"comment_count"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
}

// IsEvent returns true if the record describes an event.
func (p *PostRecord) IsEvent() bool {
	return p.Type == PostTypeEvent
}

// NewPostRecord creates a note or event record with generated ID and timestamp.
func NewPostRecord(userID, interestID string, postType PostType, title, body string) *PostRecord {
	if postType == "" {
		postType = PostTypeNote
	}
	return &PostRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		InterestID: interestID,
		Type:       postType,
		Title:      title,
		Body:       body,
		CreatedAt:  time.Now(),
	}
}

// CommentRecord is a stored comment row.
type CommentRecord struct {
	ID        string    `json:"id" yaml:"id"`
	PostID    string    `json:"post_id" yaml:"post_id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Profile is the public part of a user account.
type Profile struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`
}

// Interest is a topic posts are filed under and users follow.
type Interest struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// EventStatus is derived from an event's scheduled time.
type EventStatus string

const (
	EventUpcoming   EventStatus = "upcoming"
	EventInProgress EventStatus = "in-progress"
	EventCompleted  EventStatus = "completed"
	EventCancelled  EventStatus = "cancelled"
)

// Comment is a display-ready comment.
type Comment struct {
	ID           string
	PostID       string
	AuthorID     string
	AuthorName   string
	AuthorAvatar string
	Content      string
	TimeAgo      string
	CreatedAt    time.Time
	Pending      bool // optimistic, not yet stored
}

// PostBase holds the fields shared by notes and events.
type PostBase struct {
	ID           string
	AuthorID     string
	AuthorName   string
	AuthorAvatar string
	Interest     string
	TimeAgo      string
	Title        string
	Body         string
	ImageURL     string
	Likes        int
	CommentCount int
	Comments     []Comment
	IsLiked      bool
	CreatedAt    time.Time
}

// EventDetails holds the event-only fields.
type EventDetails struct {
	Location      string
	Date          string
	Time          string
	Attendees     []string // avatar URLs
	AttendeeCount int
	Status        EventStatus
}

// Post is a display-ready note or event. Event is nil for notes.
type Post struct {
	PostBase
	Type  PostType
	Event *EventDetails
}

// Clone returns a deep copy so callers can mutate it freely.
func (p Post) Clone() Post {
	out := p
	if p.Comments != nil {
		out.Comments = make([]Comment, len(p.Comments))
		copy(out.Comments, p.Comments)
	}
	if p.Event != nil {
		ev := *p.Event
		if p.Event.Attendees != nil {
			ev.Attendees = make([]string, len(p.Event.Attendees))
			copy(ev.Attendees, p.Event.Attendees)
		}
		out.Event = &ev
	}
	return out
}
