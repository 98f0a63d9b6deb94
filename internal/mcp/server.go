// ABOUTME: MCP server initialization and configuration for circle.
// ABOUTME: Exposes the cached feeds, likes and comments as tools for AI agents.
package mcp

import (
	"context"
	"fmt"
	"sync"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/circle/internal/feed"
)

// Server wraps the MCP server around a feed store. Each feed is bound once
// and kept active for the life of the server.
type Server struct {
	mcp      *gomcp.Server
	store    *feed.Store
	hookOpts []feed.HookOption

	mu    sync.Mutex
	hooks map[string]*feed.Hook
}

// ServerOption configures optional Server dependencies.
type ServerOption func(*Server)

// WithHookOptions passes opts to every feed the server binds.
func WithHookOptions(opts ...feed.HookOption) ServerOption {
	return func(s *Server) {
		s.hookOpts = append(s.hookOpts, opts...)
	}
}

// NewServer creates an MCP server over store.
func NewServer(store *feed.Store, opts ...ServerOption) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("feed store is required")
	}

	mcpServer := gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "circle",
			Version: "1.0.0",
		},
		nil,
	)

	s := &Server{
		mcp:   mcpServer,
		store: store,
		hooks: make(map[string]*feed.Hook),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerFeedTools()

	return s, nil
}

// hook returns the active hook for kind, binding it on first use.
func (s *Server) hook(ctx context.Context, kind feed.Kind, profileID string) (*feed.Hook, error) {
	key := kind.String()
	if kind == feed.OtherProfile {
		key += "/" + profileID
	}

	s.mu.Lock()
	h, ok := s.hooks[key]
	if !ok {
		// Only one OtherProfile feed is cached at a time.
		if kind == feed.OtherProfile {
			for k, other := range s.hooks {
				if other.Kind() == feed.OtherProfile {
					other.Deactivate()
					delete(s.hooks, k)
				}
			}
		}
		h = s.store.Bind(kind, profileID, s.hookOpts...)
		s.hooks[key] = h
	}
	s.mu.Unlock()

	if !ok {
		return h, h.Activate(ctx)
	}
	if h.Stale() {
		return h, h.Refresh(ctx)
	}
	return h, nil
}

// Serve starts the MCP server in stdio mode.
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()
	return s.mcp.Run(ctx, &gomcp.StdioTransport{})
}

// Close deactivates every bound feed.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, h := range s.hooks {
		h.Deactivate()
		delete(s.hooks, k)
	}
}
