// ABOUTME: Postgres implementation of storage.Backend on a pgx connection pool.
// ABOUTME: Keeps like and comment counters on the posts row in the same transaction.
package postgres

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/2389-research/circle/internal/models"
	"github.com/2389-research/circle/internal/storage"
)

// Recommender returns post IDs picked for a user, best first.
type Recommender interface {
	RecommendedIDs(ctx context.Context, userID string, limit int) ([]string, error)
}

// Store is a storage.Backend backed by Postgres.
type Store struct {
	pool        *pgxpool.Pool
	recommender Recommender
	now         func() time.Time
}

var _ storage.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRecommender sources RecommendedPosts from r instead of the most-liked fallback.
func WithRecommender(r Recommender) Option {
	return func(s *Store) { s.recommender = r }
}

// WithClock replaces the time source used for defaults and age cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New connects to dsn and applies the schema.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	s := &Store{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const postColumns = `id, user_id, interest_id, type, title, body, image_url, location,
	event_at, cancelled, like_count, comment_count, created_at`

func scanPost(row pgx.Row) (models.PostRecord, error) {
	var p models.PostRecord
	var typ string
	err := row.Scan(&p.ID, &p.UserID, &p.InterestID, &typ, &p.Title, &p.Body, &p.ImageURL,
		&p.Location, &p.EventAt, &p.Cancelled, &p.LikeCount, &p.CommentCount, &p.CreatedAt)
	p.Type = models.PostType(typ)
	return p, err
}

func collectPosts(rows pgx.Rows) ([]models.PostRecord, error) {
	defer rows.Close()
	var out []models.PostRecord
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePost inserts a post.
func (s *Store) CreatePost(ctx context.Context, p *models.PostRecord) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if p.Type == "" {
		p.Type = models.PostTypeNote
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.UserID, p.InterestID, string(p.Type), p.Title, p.Body, p.ImageURL, p.Location,
		p.EventAt, p.Cancelled, p.LikeCount, p.CommentCount, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// PostsByUser returns a page of userID's posts, newest first.
func (s *Store) PostsByUser(ctx context.Context, userID string, q storage.PostQuery) ([]models.PostRecord, error) {
	return s.listPosts(ctx, "user_id", userID, q)
}

// PostsByInterest returns a page of posts filed under interestID.
func (s *Store) PostsByInterest(ctx context.Context, interestID string, q storage.PostQuery) ([]models.PostRecord, error) {
	return s.listPosts(ctx, "interest_id", interestID, q)
}

func (s *Store) listPosts(ctx context.Context, column, value string, q storage.PostQuery) ([]models.PostRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	var cutoff *time.Time
	if q.MaxAgeDays > 0 {
		c := s.now().AddDate(0, 0, -q.MaxAgeDays)
		cutoff = &c
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE `+column+` = $1
		AND ($2::TIMESTAMPTZ IS NULL OR created_at >= $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		value, cutoff, limit, q.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan posts: %w", err)
	}
	if q.Random {
		rand.Shuffle(len(posts), func(i, j int) { posts[i], posts[j] = posts[j], posts[i] })
	}
	return posts, nil
}

// RecommendedPosts returns posts picked for userID. Without a Recommender the
// most-liked posts by other users are returned.
func (s *Store) RecommendedPosts(ctx context.Context, userID string, limit int) ([]models.PostRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	if s.recommender == nil {
		rows, err := s.pool.Query(ctx, `
			SELECT `+postColumns+`
			FROM posts
			WHERE user_id <> $1
			ORDER BY like_count DESC, created_at DESC
			LIMIT $2`, userID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to query recommended posts: %w", err)
		}
		return collectPosts(rows)
	}

	ids, err := s.recommender.RecommendedIDs(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendations: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommended posts: %w", err)
	}
	found, err := collectPosts(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.PostRecord, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]models.PostRecord, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) postExists(ctx context.Context, q interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}, postID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, postID).Scan(&exists)
	return exists, err
}

// CommentsByPost returns every comment on postID, newest first.
func (s *Store) CommentsByPost(ctx context.Context, postID string) ([]models.CommentRecord, error) {
	exists, err := s.postExists(ctx, s.pool, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up post: %w", err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}
	byPost, err := s.CommentsForPosts(ctx, []string{postID})
	if err != nil {
		return nil, err
	}
	return byPost[postID], nil
}

// CreateComment inserts a comment and bumps the post's comment count.
func (s *Store) CreateComment(ctx context.Context, c *models.CommentRecord) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE posts SET comment_count = comment_count + 1 WHERE id = $1`, c.PostID)
		if err != nil {
			return fmt.Errorf("failed to update comment count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO comments (id, post_id, user_id, content, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.PostID, c.UserID, c.Content, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert comment: %w", err)
		}
		return nil
	})
}

// LikePost records a like. Liking twice leaves the count unchanged.
func (s *Store) LikePost(ctx context.Context, userID, postID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		exists, err := s.postExists(ctx, tx, postID)
		if err != nil {
			return fmt.Errorf("failed to look up post: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO likes (user_id, post_id) VALUES ($1, $2)
			ON CONFLICT (user_id, post_id) DO NOTHING`, userID, postID)
		if err != nil {
			return fmt.Errorf("failed to insert like: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE posts SET like_count = like_count + 1 WHERE id = $1`, postID); err != nil {
			return fmt.Errorf("failed to update like count: %w", err)
		}
		return nil
	})
}

// UnlikePost removes a like. Removing a missing like is a no-op.
func (s *Store) UnlikePost(ctx context.Context, userID, postID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM likes WHERE user_id = $1 AND post_id = $2`, userID, postID)
		if err != nil {
			return fmt.Errorf("failed to delete like: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE posts SET like_count = GREATEST(like_count - 1, 0) WHERE id = $1`, postID)
		if err != nil {
			return fmt.Errorf("failed to update like count: %w", err)
		}
		return nil
	})
}

// LikedPostIDs returns the subset of postIDs liked by userID, in input order.
func (s *Store) LikedPostIDs(ctx context.Context, userID string, postIDs []string) ([]string, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT post_id FROM likes WHERE user_id = $1 AND post_id = ANY($2)`, userID, postIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query likes: %w", err)
	}
	liked, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan likes: %w", err)
	}
	set := make(map[string]struct{}, len(liked))
	for _, id := range liked {
		set[id] = struct{}{}
	}
	var out []string
	for _, id := range postIDs {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Profiles returns the known profiles among ids.
func (s *Store) Profiles(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, avatar_url FROM profiles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.Profile, len(ids))
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.AvatarURL); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// Interests returns the known interests among ids.
func (s *Store) Interests(ctx context.Context, ids []string) (map[string]models.Interest, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM interests WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query interests: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.Interest, len(ids))
	for rows.Next() {
		var i models.Interest
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
			return nil, err
		}
		out[i.ID] = i
	}
	return out, rows.Err()
}

// Attendees returns the attendee profiles of each event in postIDs.
func (s *Store) Attendees(ctx context.Context, postIDs []string) (map[string][]models.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.post_id, a.user_id, COALESCE(p.display_name, ''), COALESCE(p.avatar_url, '')
		FROM event_attendees a
		LEFT JOIN profiles p ON p.id = a.user_id
		WHERE a.post_id = ANY($1)
		ORDER BY a.post_id, a.created_at`, postIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendees: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Profile)
	for rows.Next() {
		var postID string
		var p models.Profile
		if err := rows.Scan(&postID, &p.ID, &p.DisplayName, &p.AvatarURL); err != nil {
			return nil, err
		}
		out[postID] = append(out[postID], p)
	}
	return out, rows.Err()
}

// CommentsForPosts returns the comments of each post in postIDs, newest first.
func (s *Store) CommentsForPosts(ctx context.Context, postIDs []string) (map[string][]models.CommentRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, post_id, user_id, content, created_at
		FROM comments
		WHERE post_id = ANY($1)
		ORDER BY created_at DESC`, postIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.CommentRecord)
	for rows.Next() {
		var c models.CommentRecord
		if err := rows.Scan(&c.ID, &c.PostID, &c.UserID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		out[c.PostID] = append(out[c.PostID], c)
	}
	return out, rows.Err()
}

// InterestIDsForUser returns the interests userID follows.
func (s *Store) InterestIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT interest_id FROM user_interests WHERE user_id = $1 ORDER BY created_at, interest_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user interests: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// FriendIDs returns userID's accepted friends, sorted.
func (s *Store) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT CASE WHEN user_id = $1 THEN friend_id ELSE user_id END AS friend
		FROM friendships
		WHERE status = 'accepted' AND (user_id = $1 OR friend_id = $1)
		ORDER BY friend`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query friendships: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
