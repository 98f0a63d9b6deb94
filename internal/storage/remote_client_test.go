// ABOUTME: Tests for the PostgREST client using an httptest server.
// ABOUTME: Covers request shapes, auth headers, decoding and error handling.
package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2389-research/circle/internal/models"
)

func TestRemoteClientHeaders(t *testing.T) {
	var gotKey, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL+"/rest/v1/", "anon-key", "user-token")
	if _, err := client.PostsByUser(context.Background(), "u1", PostQuery{}); err != nil {
		t.Fatalf("PostsByUser error: %v", err)
	}
	if gotKey != "anon-key" {
		t.Errorf("expected apikey 'anon-key', got %q", gotKey)
	}
	if gotAuth != "Bearer user-token" {
		t.Errorf("expected bearer user token, got %q", gotAuth)
	}

	client = NewRemoteClient(server.URL, "anon-key", "")
	if _, err := client.PostsByUser(context.Background(), "u1", PostQuery{}); err != nil {
		t.Fatalf("PostsByUser error: %v", err)
	}
	if gotAuth != "Bearer anon-key" {
		t.Errorf("expected API key as bearer without a session, got %q", gotAuth)
	}
}

func TestRemoteClientPostsByInterest(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/posts" {
			t.Errorf("expected path /rest/v1/posts, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		checks := map[string]string{
			"interest_id": "eq.climbing",
			"order":       "created_at.desc",
			"limit":       "5",
			"offset":      "5",
			"created_at":  "gte.2024-05-11T12:00:00Z",
		}
		for key, want := range checks {
			if got := q.Get(key); got != want {
				t.Errorf("query %s: expected %q, got %q", key, want, got)
			}
		}
		_, _ = w.Write([]byte(`[
			{"id":"p1","user_id":"u1","interest_id":"climbing","type":"note","body":"hi","like_count":2,"comment_count":1,"created_at":"2024-06-09T12:00:00Z"},
			{"id":"p2","user_id":"u2","interest_id":"climbing","type":"event","title":"Meetup","event_at":"2024-06-20T18:00:00Z","location":"Gym","created_at":"2024-06-08T12:00:00Z"}
		]`))
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL, "key", "")
	client.now = func() time.Time { return now }

	posts, err := client.PostsByInterest(context.Background(), "climbing", PostQuery{Limit: 5, Page: 2, MaxAgeDays: 30})
	if err != nil {
		t.Fatalf("PostsByInterest error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].LikeCount != 2 || posts[0].CommentCount != 1 {
		t.Errorf("unexpected counters: %+v", posts[0])
	}
	if !posts[1].IsEvent() || posts[1].EventAt == nil || posts[1].Location != "Gym" {
		t.Errorf("expected decoded event, got %+v", posts[1])
	}
}

func TestRemoteClientRecommendedPosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/rest/v1/rpc/get_recommended_posts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload recommendPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if payload.UserID != "u1" || payload.Limit != 10 {
			t.Errorf("unexpected payload %+v", payload)
		}
		_, _ = w.Write([]byte(`[{"id":"r1","user_id":"u9","type":"note","created_at":"2024-06-09T12:00:00Z"}]`))
	}))
	defer server.Close()

	posts, err := NewRemoteClient(server.URL, "key", "").RecommendedPosts(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("RecommendedPosts error: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != "r1" {
		t.Errorf("unexpected posts %+v", posts)
	}
}

func TestRemoteClientCreateComment(t *testing.T) {
	var receivedBody []byte
	var prefer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/rest/v1/comments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected 'application/json', got %q", ct)
		}
		prefer = r.Header.Get("Prefer")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"c-42","post_id":"p1","user_id":"u1","content":"hello","created_at":"2024-06-10T12:00:00Z"}]`))
	}))
	defer server.Close()

	c := &models.CommentRecord{PostID: "p1", UserID: "u1", Content: "hello"}
	if err := NewRemoteClient(server.URL, "key", "").CreateComment(context.Background(), c); err != nil {
		t.Fatalf("CreateComment error: %v", err)
	}

	if prefer != "return=representation" {
		t.Errorf("expected Prefer return=representation, got %q", prefer)
	}
	var payload commentPayload
	if err := json.Unmarshal(receivedBody, &payload); err != nil {
		t.Fatalf("failed to unmarshal request body: %v", err)
	}
	if payload.Content != "hello" || payload.PostID != "p1" || payload.UserID != "u1" {
		t.Errorf("unexpected payload %+v", payload)
	}
	if c.ID != "c-42" {
		t.Errorf("expected stored ID c-42, got %q", c.ID)
	}
	if c.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be filled in")
	}
}

func TestRemoteClientLikeAndUnlike(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery+" "+r.Header.Get("Prefer"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL, "key", "")
	ctx := context.Background()
	if err := client.LikePost(ctx, "u1", "p1"); err != nil {
		t.Fatalf("LikePost error: %v", err)
	}
	if err := client.UnlikePost(ctx, "u1", "p1"); err != nil {
		t.Fatalf("UnlikePost error: %v", err)
	}

	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}
	if !strings.HasPrefix(requests[0], "POST /rest/v1/likes?on_conflict=user_id%2Cpost_id") ||
		!strings.Contains(requests[0], "resolution=ignore-duplicates") {
		t.Errorf("unexpected like request %q", requests[0])
	}
	if !strings.HasPrefix(requests[1], "DELETE /rest/v1/likes?") ||
		!strings.Contains(requests[1], "post_id=eq.p1") ||
		!strings.Contains(requests[1], "user_id=eq.u1") {
		t.Errorf("unexpected unlike request %q", requests[1])
	}
}

func TestRemoteClientLikedPostIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("post_id"); got != `in.("p1","p2")` {
			t.Errorf("unexpected post_id filter %q", got)
		}
		_, _ = w.Write([]byte(`[{"post_id":"p2"}]`))
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL, "key", "")
	ids, err := client.LikedPostIDs(context.Background(), "u1", []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("LikedPostIDs error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "p2" {
		t.Errorf("expected [p2], got %v", ids)
	}

	ids, err = client.LikedPostIDs(context.Background(), "u1", nil)
	if err != nil || ids != nil {
		t.Errorf("expected no request for empty ids, got %v, %v", ids, err)
	}
}

func TestRemoteClientDirectoryLookups(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/profiles":
			_, _ = w.Write([]byte(`[{"id":"u1","display_name":"Alex","avatar_url":"a.png"}]`))
		case "/rest/v1/event_attendees":
			_, _ = w.Write([]byte(`[
				{"post_id":"e1","profiles":{"id":"u1","display_name":"Alex"}},
				{"post_id":"e1","profiles":{"id":"u2","display_name":"Sam"}}
			]`))
		case "/rest/v1/friendships":
			if got := r.URL.Query().Get("or"); got != "(user_id.eq.me,friend_id.eq.me)" {
				t.Errorf("unexpected or filter %q", got)
			}
			_, _ = w.Write([]byte(`[{"user_id":"me","friend_id":"f1"},{"user_id":"f2","friend_id":"me"}]`))
		case "/rest/v1/user_interests":
			_, _ = w.Write([]byte(`[{"interest_id":"climbing"},{"interest_id":"baking"}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL, "key", "")
	ctx := context.Background()

	profiles, err := client.Profiles(ctx, []string{"u1", "ghost"})
	if err != nil {
		t.Fatalf("Profiles error: %v", err)
	}
	if profiles["u1"].DisplayName != "Alex" {
		t.Errorf("expected Alex, got %+v", profiles["u1"])
	}
	if _, ok := profiles["ghost"]; ok {
		t.Error("expected missing profile to be absent")
	}

	attendees, err := client.Attendees(ctx, []string{"e1"})
	if err != nil {
		t.Fatalf("Attendees error: %v", err)
	}
	if len(attendees["e1"]) != 2 {
		t.Errorf("expected 2 attendees, got %d", len(attendees["e1"]))
	}

	friends, err := client.FriendIDs(ctx, "me")
	if err != nil {
		t.Fatalf("FriendIDs error: %v", err)
	}
	if strings.Join(friends, ",") != "f1,f2" {
		t.Errorf("expected f1,f2, got %v", friends)
	}

	interests, err := client.InterestIDsForUser(ctx, "me")
	if err != nil {
		t.Fatalf("InterestIDsForUser error: %v", err)
	}
	if len(interests) != 2 {
		t.Errorf("expected 2 interests, got %v", interests)
	}
}

func TestRemoteClientCreatePost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload postPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if payload.Type != models.PostTypeNote || payload.Body != "hello" {
			t.Errorf("unexpected payload %+v", payload)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"p-new","user_id":"u1","type":"note","body":"hello","created_at":"2024-06-10T12:00:00Z"}]`))
	}))
	defer server.Close()

	p := &models.PostRecord{UserID: "u1", Body: "hello"}
	if err := NewRemoteClient(server.URL, "key", "").CreatePost(context.Background(), p); err != nil {
		t.Fatalf("CreatePost error: %v", err)
	}
	if p.ID != "p-new" || p.CreatedAt.IsZero() {
		t.Errorf("expected stored row copied back, got %+v", p)
	}
}

func TestRemoteClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"JWT expired"}`))
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL, "key", "stale")
	_, err := client.CommentsByPost(context.Background(), "p1")
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "JWT expired") {
		t.Errorf("expected status and body in error, got %v", err)
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Error("expected Ping to fail")
	}
}

func TestRemoteClientContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRemoteClient(server.URL, "key", "").PostsByUser(ctx, "u1", PostQuery{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRemoteClientSignInWithPassword(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "vera@example.com" || body["password"] != "hunter2" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok","refresh_token":"ref","expires_in":3600,"user":{"id":"u1"}}`))
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL, "key", "")
	session, err := client.SignInWithPassword(context.Background(), "vera@example.com", "hunter2")
	if err != nil {
		t.Fatalf("SignInWithPassword error: %v", err)
	}
	if session.AccessToken != "tok" || session.User.ID != "u1" {
		t.Errorf("unexpected session %+v", session)
	}

	if _, err := client.SignInWithPassword(context.Background(), "vera@example.com", "wrong"); err == nil {
		t.Error("expected error for bad credentials")
	}
}
