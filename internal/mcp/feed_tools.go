// ABOUTME: MCP tool implementations for reading feeds, liking and commenting.
// ABOUTME: Registers read_feed, like_post, read_comments, add_comment and create_post.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/circle/internal/feed"
	"github.com/2389-research/circle/internal/format"
	"github.com/2389-research/circle/internal/models"
)

func (s *Server) registerFeedTools() {
	s.mcp.AddTool(&gomcp.Tool{
		Name:        "read_feed",
		Description: "Read the home feed, your own profile, or another user's profile.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"feed": {"type": "string", "enum": ["home", "own_profile", "other_profile"], "description": "Which feed to read (default home)"},
				"user_id": {"type": "string", "description": "Profile to read when feed is other_profile"},
				"more": {"type": "boolean", "description": "Load the next page before reading"},
				"refresh": {"type": "boolean", "description": "Reload the first page before reading"}
			}
		}`),
	}, s.handleReadFeed)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "like_post",
		Description: "Like a post, or remove your like if you already liked it.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "ID of the post", "minLength": 1}
			},
			"required": ["post_id"]
		}`),
	}, s.handleLikePost)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "read_comments",
		Description: "Read the comments on a post, newest first.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "ID of the post", "minLength": 1}
			},
			"required": ["post_id"]
		}`),
	}, s.handleReadComments)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "add_comment",
		Description: "Comment on a post.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "ID of the post", "minLength": 1},
				"content": {"type": "string", "description": "The comment text", "minLength": 1}
			},
			"required": ["post_id", "content"]
		}`),
	}, s.handleAddComment)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "create_post",
		Description: "Create a note or an event. It appears at the top of your home feed and profile.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"body": {"type": "string", "description": "The content of the post"},
				"title": {"type": "string", "description": "Optional title"},
				"interest_id": {"type": "string", "description": "Interest to file the post under"},
				"location": {"type": "string", "description": "Where the event takes place"},
				"event_at": {"type": "string", "description": "RFC 3339 start time; makes the post an event"}
			}
		}`),
	}, s.handleCreatePost)
}

func (s *Server) handleReadFeed(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Feed    string `json:"feed"`
		UserID  string `json:"user_id"`
		More    bool   `json:"more"`
		Refresh bool   `json:"refresh"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	kind := feed.Home
	if args.Feed != "" {
		k, err := feed.ParseKind(args.Feed)
		if err != nil {
			return toolError("%v", err), nil
		}
		kind = k
	}
	if kind == feed.OtherProfile && args.UserID == "" {
		return toolError("user_id is required for other_profile"), nil
	}

	h, err := s.hook(ctx, kind, args.UserID)
	if err != nil {
		return toolError("failed to load feed: %v", err), nil
	}
	if args.Refresh {
		if err := h.ForceRefresh(ctx); err != nil {
			return toolError("failed to refresh feed: %v", err), nil
		}
	}
	if args.More {
		if err := h.LoadMore(ctx); err != nil {
			return toolError("failed to load more: %v", err), nil
		}
	}

	return textResult(renderView(h.View())), nil
}

func renderView(v feed.View) string {
	if v.Error != "" {
		return "Error: " + v.Error
	}
	var sb strings.Builder
	posts := 0
	for _, item := range v.Feed {
		if item.IsCarousel() {
			continue
		}
		p := item.Post
		p.IsLiked = v.LikedPosts[p.ID]
		sb.WriteString(format.PostText(p))
		posts++
	}
	if posts == 0 {
		if v.Loading {
			return "Feed is still loading."
		}
		return "No posts found."
	}
	if v.HasMoreContent {
		sb.WriteString("---\nMore posts available (use more: true).\n")
	}
	return sb.String()
}

func (s *Server) handleLikePost(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		PostID string `json:"post_id"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.PostID == "" {
		return toolError("post_id is required"), nil
	}

	h, _ := s.hook(ctx, feed.Home, "")
	if err := h.HandleLikePost(ctx, args.PostID); err != nil {
		if errors.Is(err, feed.ErrNoViewer) {
			return toolError("not logged in - run `circle login` first"), nil
		}
		return toolError("%v", err), nil
	}

	if s.store.IsLiked(args.PostID) {
		return textResult(fmt.Sprintf("Liked post %s", args.PostID)), nil
	}
	return textResult(fmt.Sprintf("Removed like from post %s", args.PostID)), nil
}

func (s *Server) handleReadComments(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		PostID string `json:"post_id"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.PostID == "" {
		return toolError("post_id is required"), nil
	}

	h, _ := s.hook(ctx, feed.Home, "")
	if err := h.OpenComments(ctx, args.PostID); err != nil {
		return toolError("%v", err), nil
	}
	sel := h.Comments()
	if len(sel.Comments) == 0 {
		return textResult("No comments yet."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d comments on %s\n", sel.Count, sel.PostID))
	for _, c := range sel.Comments {
		sb.WriteString(format.CommentText(c) + "\n")
	}
	return textResult(sb.String()), nil
}

func (s *Server) handleAddComment(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		PostID  string `json:"post_id"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.PostID == "" {
		return toolError("post_id is required"), nil
	}
	if strings.TrimSpace(args.Content) == "" {
		return toolError("content is required"), nil
	}

	h, _ := s.hook(ctx, feed.Home, "")
	if h.Comments().PostID != args.PostID {
		if err := h.OpenComments(ctx, args.PostID); err != nil {
			return toolError("%v", err), nil
		}
	}
	if err := h.AddComment(ctx, args.Content); err != nil {
		if errors.Is(err, feed.ErrNoViewer) {
			return toolError("not logged in - run `circle login` first"), nil
		}
		return toolError("%v", err), nil
	}
	return textResult(fmt.Sprintf("Comment added to post %s", args.PostID)), nil
}

func (s *Server) handleCreatePost(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Body       string `json:"body"`
		Title      string `json:"title"`
		InterestID string `json:"interest_id"`
		Location   string `json:"location"`
		EventAt    string `json:"event_at"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.Body == "" && args.Title == "" {
		return toolError("body or title is required"), nil
	}

	rec := &models.PostRecord{
		InterestID: args.InterestID,
		Type:       models.PostTypeNote,
		Title:      args.Title,
		Body:       args.Body,
		Location:   args.Location,
	}
	if args.EventAt != "" {
		at, err := time.Parse(time.RFC3339, args.EventAt)
		if err != nil {
			return toolError("invalid event_at: %v", err), nil
		}
		rec.Type = models.PostTypeEvent
		rec.EventAt = &at
	}

	post, err := s.store.CreatePost(ctx, rec)
	if err != nil {
		if errors.Is(err, feed.ErrNoViewer) {
			return toolError("not logged in - run `circle login` first"), nil
		}
		return toolError("%v", err), nil
	}
	return textResult(fmt.Sprintf("Post created (ID: %s)", post.ID)), nil
}

func textResult(text string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: text}},
	}
}

func toolError(msg string, args ...interface{}) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: fmt.Sprintf(msg, args...)}},
		IsError: true,
	}
}
