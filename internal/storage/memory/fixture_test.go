package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/circle/internal/storage"
)

func TestNewFromFixture(t *testing.T) {
	s, err := NewFromFixture(filepath.Join("testdata", "demo.yaml"))
	require.NoError(t, err)
	ctx := context.Background()

	posts, err := s.PostsByUser(ctx, "alex", storage.PostQuery{})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "p1", posts[0].ID)
	assert.Equal(t, 2, posts[0].CommentCount)
	assert.Equal(t, 2, posts[0].LikeCount, "duplicate likes are collapsed")
	assert.True(t, posts[1].IsEvent())
	require.NotNil(t, posts[1].EventAt)

	friends, err := s.FriendIDs(ctx, "vera")
	require.NoError(t, err)
	assert.Equal(t, []string{"alex"}, friends)

	interests, err := s.InterestIDsForUser(ctx, "vera")
	require.NoError(t, err)
	assert.Equal(t, []string{"climbing", "baking"}, interests)

	recs, err := s.RecommendedPosts(ctx, "vera", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "p2", recs[0].ID)

	attendees, err := s.Attendees(ctx, []string{"e1"})
	require.NoError(t, err)
	assert.Len(t, attendees["e1"], 3)
}

func TestLoadFixtureErrors(t *testing.T) {
	_, err := LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("posts: {not: [a list"), 0600))
	_, err = LoadFixture(bad)
	assert.Error(t, err)
}
