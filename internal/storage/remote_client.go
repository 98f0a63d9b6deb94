// ABOUTME: HTTP client for a PostgREST (Supabase-style) social backend.
// ABOUTME: Implements Backend over /rest/v1 tables and the recommendation RPC.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389-research/circle/internal/models"
)

// RemoteClient talks to the social backend's REST API.
type RemoteClient struct {
	apiURL      string
	apiKey      string
	accessToken string
	client      *http.Client
	now         func() time.Time
}

var _ Backend = (*RemoteClient)(nil)

// NewRemoteClient creates a remote client. accessToken is the signed-in
// user's session token; when empty the API key is sent as the bearer.
func NewRemoteClient(apiURL, apiKey, accessToken string) *RemoteClient {
	apiURL = strings.TrimRight(apiURL, "/")
	apiURL = strings.TrimSuffix(apiURL, "/rest/v1")
	if accessToken == "" {
		accessToken = apiKey
	}
	return &RemoteClient{
		apiURL:      apiURL,
		apiKey:      apiKey,
		accessToken: accessToken,
		client:      &http.Client{Timeout: 30 * time.Second},
		now:         time.Now,
	}
}

// do sends one request to a REST table or function.
func (r *RemoteClient) do(ctx context.Context, method, path string, query url.Values, body, out any, prefer ...string) error {
	return r.send(ctx, method, "/rest/v1/"+path, query, body, out, prefer...)
}

// send sends one request. body, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded response.
func (r *RemoteClient) send(ctx context.Context, method, path string, query url.Values, body, out any, prefer ...string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := r.apiURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(prefer, ","))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("remote API returned %d: %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// inList renders ids as a PostgREST in.(...) filter value.
func inList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}

func (r *RemoteClient) listPosts(ctx context.Context, column, value string, q PostQuery) ([]models.PostRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	query := url.Values{}
	query.Set("select", "*")
	query.Set(column, "eq."+value)
	query.Set("order", "created_at.desc")
	query.Set("limit", strconv.Itoa(limit))
	if offset := q.Offset(); offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	if q.MaxAgeDays > 0 {
		cutoff := r.now().AddDate(0, 0, -q.MaxAgeDays).UTC()
		query.Set("created_at", "gte."+cutoff.Format(time.RFC3339))
	}

	var posts []models.PostRecord
	if err := r.do(ctx, http.MethodGet, "posts", query, nil, &posts); err != nil {
		return nil, err
	}
	if q.Random {
		rand.Shuffle(len(posts), func(i, j int) { posts[i], posts[j] = posts[j], posts[i] })
	}
	return posts, nil
}

// PostsByUser fetches a page of a user's posts.
func (r *RemoteClient) PostsByUser(ctx context.Context, userID string, q PostQuery) ([]models.PostRecord, error) {
	return r.listPosts(ctx, "user_id", userID, q)
}

// PostsByInterest fetches a page of posts under an interest.
func (r *RemoteClient) PostsByInterest(ctx context.Context, interestID string, q PostQuery) ([]models.PostRecord, error) {
	return r.listPosts(ctx, "interest_id", interestID, q)
}

// recommendPayload is the body of the recommendation RPC.
type recommendPayload struct {
	UserID string `json:"p_user_id"`
	Limit  int    `json:"p_limit"`
}

// RecommendedPosts calls the get_recommended_posts function.
func (r *RemoteClient) RecommendedPosts(ctx context.Context, userID string, limit int) ([]models.PostRecord, error) {
	var posts []models.PostRecord
	err := r.do(ctx, http.MethodPost, "rpc/get_recommended_posts", nil, recommendPayload{UserID: userID, Limit: limit}, &posts)
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// CommentsByPost fetches a post's comments, newest first.
func (r *RemoteClient) CommentsByPost(ctx context.Context, postID string) ([]models.CommentRecord, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("post_id", "eq."+postID)
	query.Set("order", "created_at.desc")

	var comments []models.CommentRecord
	if err := r.do(ctx, http.MethodGet, "comments", query, nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// commentPayload is the insert body for a comment.
type commentPayload struct {
	PostID  string `json:"post_id"`
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

// CreateComment inserts a comment and fills in the stored ID and timestamp.
func (r *RemoteClient) CreateComment(ctx context.Context, c *models.CommentRecord) error {
	var created []models.CommentRecord
	payload := commentPayload{PostID: c.PostID, UserID: c.UserID, Content: c.Content}
	if err := r.do(ctx, http.MethodPost, "comments", nil, payload, &created, "return=representation"); err != nil {
		return err
	}
	if len(created) == 0 {
		return fmt.Errorf("remote API returned no comment")
	}
	c.ID = created[0].ID
	c.CreatedAt = created[0].CreatedAt
	return nil
}

type likeRow struct {
	UserID string `json:"user_id,omitempty"`
	PostID string `json:"post_id"`
}

// LikePost inserts a like, ignoring an existing one.
func (r *RemoteClient) LikePost(ctx context.Context, userID, postID string) error {
	query := url.Values{}
	query.Set("on_conflict", "user_id,post_id")
	return r.do(ctx, http.MethodPost, "likes", query, likeRow{UserID: userID, PostID: postID}, nil,
		"resolution=ignore-duplicates", "return=minimal")
}

// UnlikePost deletes a like.
func (r *RemoteClient) UnlikePost(ctx context.Context, userID, postID string) error {
	query := url.Values{}
	query.Set("user_id", "eq."+userID)
	query.Set("post_id", "eq."+postID)
	return r.do(ctx, http.MethodDelete, "likes", query, nil, nil, "return=minimal")
}

// LikedPostIDs returns which of postIDs userID has liked.
func (r *RemoteClient) LikedPostIDs(ctx context.Context, userID string, postIDs []string) ([]string, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	query := url.Values{}
	query.Set("select", "post_id")
	query.Set("user_id", "eq."+userID)
	query.Set("post_id", inList(postIDs))

	var rows []likeRow
	if err := r.do(ctx, http.MethodGet, "likes", query, nil, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.PostID
	}
	return ids, nil
}

// postPayload is the insert body for a post.
type postPayload struct {
	UserID     string          `json:"user_id"`
	InterestID string          `json:"interest_id,omitempty"`
	Type       models.PostType `json:"type"`
	Title      string          `json:"title,omitempty"`
	Body       string          `json:"body,omitempty"`
	ImageURL   string          `json:"image_url,omitempty"`
	Location   string          `json:"location,omitempty"`
	EventAt    *time.Time      `json:"event_at,omitempty"`
}

// CreatePost inserts a post and copies the stored row back into p.
func (r *RemoteClient) CreatePost(ctx context.Context, p *models.PostRecord) error {
	payload := postPayload{
		UserID:     p.UserID,
		InterestID: p.InterestID,
		Type:       p.Type,
		Title:      p.Title,
		Body:       p.Body,
		ImageURL:   p.ImageURL,
		Location:   p.Location,
		EventAt:    p.EventAt,
	}
	if payload.Type == "" {
		payload.Type = models.PostTypeNote
	}

	var created []models.PostRecord
	if err := r.do(ctx, http.MethodPost, "posts", nil, payload, &created, "return=representation"); err != nil {
		return err
	}
	if len(created) == 0 {
		return fmt.Errorf("remote API returned no post")
	}
	*p = created[0]
	return nil
}

// Profiles fetches profiles by ID.
func (r *RemoteClient) Profiles(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	out := make(map[string]models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := url.Values{}
	query.Set("select", "id,display_name,avatar_url")
	query.Set("id", inList(ids))

	var rows []models.Profile
	if err := r.do(ctx, http.MethodGet, "profiles", query, nil, &rows); err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// Interests fetches interests by ID.
func (r *RemoteClient) Interests(ctx context.Context, ids []string) (map[string]models.Interest, error) {
	out := make(map[string]models.Interest, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := url.Values{}
	query.Set("select", "id,name")
	query.Set("id", inList(ids))

	var rows []models.Interest
	if err := r.do(ctx, http.MethodGet, "interests", query, nil, &rows); err != nil {
		return nil, err
	}
	for _, i := range rows {
		out[i.ID] = i
	}
	return out, nil
}

// attendeeRow is an event_attendees row with its profile embedded.
type attendeeRow struct {
	PostID  string         `json:"post_id"`
	Profile models.Profile `json:"profiles"`
}

// Attendees fetches the attendee profiles of each event.
func (r *RemoteClient) Attendees(ctx context.Context, postIDs []string) (map[string][]models.Profile, error) {
	out := make(map[string][]models.Profile)
	if len(postIDs) == 0 {
		return out, nil
	}
	query := url.Values{}
	query.Set("select", "post_id,profiles(id,display_name,avatar_url)")
	query.Set("post_id", inList(postIDs))

	var rows []attendeeRow
	if err := r.do(ctx, http.MethodGet, "event_attendees", query, nil, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.PostID] = append(out[row.PostID], row.Profile)
	}
	return out, nil
}

// CommentsForPosts fetches the comments of several posts, newest first.
func (r *RemoteClient) CommentsForPosts(ctx context.Context, postIDs []string) (map[string][]models.CommentRecord, error) {
	out := make(map[string][]models.CommentRecord)
	if len(postIDs) == 0 {
		return out, nil
	}
	query := url.Values{}
	query.Set("select", "*")
	query.Set("post_id", inList(postIDs))
	query.Set("order", "created_at.desc")

	var rows []models.CommentRecord
	if err := r.do(ctx, http.MethodGet, "comments", query, nil, &rows); err != nil {
		return nil, err
	}
	for _, c := range rows {
		out[c.PostID] = append(out[c.PostID], c)
	}
	return out, nil
}

// InterestIDsForUser fetches the interests a user follows.
func (r *RemoteClient) InterestIDsForUser(ctx context.Context, userID string) ([]string, error) {
	query := url.Values{}
	query.Set("select", "interest_id")
	query.Set("user_id", "eq."+userID)

	var rows []struct {
		InterestID string `json:"interest_id"`
	}
	if err := r.do(ctx, http.MethodGet, "user_interests", query, nil, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.InterestID
	}
	return ids, nil
}

// FriendIDs fetches a user's accepted friends from either side of the friendship.
func (r *RemoteClient) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	query := url.Values{}
	query.Set("select", "user_id,friend_id")
	query.Set("status", "eq.accepted")
	query.Set("or", fmt.Sprintf("(user_id.eq.%s,friend_id.eq.%s)", userID, userID))

	var rows []struct {
		UserID   string `json:"user_id"`
		FriendID string `json:"friend_id"`
	}
	if err := r.do(ctx, http.MethodGet, "friendships", query, nil, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.UserID == userID {
			ids = append(ids, row.FriendID)
		} else {
			ids = append(ids, row.UserID)
		}
	}
	return ids, nil
}

// AuthSession is the result of a password sign-in.
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID string `json:"id"`
	} `json:"user"`
}

// SignInWithPassword exchanges email and password for a session token.
func (r *RemoteClient) SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error) {
	query := url.Values{}
	query.Set("grant_type", "password")
	body := map[string]string{"email": email, "password": password}

	var session AuthSession
	if err := r.send(ctx, http.MethodPost, "/auth/v1/token", query, body, &session); err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("sign in failed: no access token returned")
	}
	return &session, nil
}

// Ping checks that the API answers with the configured credentials.
func (r *RemoteClient) Ping(ctx context.Context) error {
	query := url.Values{}
	query.Set("select", "id")
	query.Set("limit", "1")
	return r.do(ctx, http.MethodGet, "interests", query, nil, nil)
}

// Close releases idle connections.
func (r *RemoteClient) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
