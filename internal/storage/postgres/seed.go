// ABOUTME: Loads a YAML fixture into Postgres so a fresh database has something to show.
// ABOUTME: Counters on posts are recomputed from the seeded likes and comments.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/2389-research/circle/internal/models"
	"github.com/2389-research/circle/internal/storage/memory"
)

// Seed upserts every record in f inside a single transaction.
func (s *Store) Seed(ctx context.Context, f *memory.Fixture) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range f.Profiles {
			batch.Queue(`
				INSERT INTO profiles (id, display_name, avatar_url) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, avatar_url = EXCLUDED.avatar_url`,
				p.ID, p.DisplayName, p.AvatarURL)
		}
		for _, i := range f.Interests {
			batch.Queue(`
				INSERT INTO interests (id, name) VALUES ($1, $2)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, i.ID, i.Name)
		}
		for user, interests := range f.Follows {
			for _, interest := range interests {
				batch.Queue(`
					INSERT INTO user_interests (user_id, interest_id) VALUES ($1, $2)
					ON CONFLICT DO NOTHING`, user, interest)
			}
		}
		for _, pair := range f.Friendships {
			if len(pair) != 2 {
				continue
			}
			batch.Queue(`
				INSERT INTO friendships (user_id, friend_id, status) VALUES ($1, $2, 'accepted')
				ON CONFLICT (user_id, friend_id) DO UPDATE SET status = 'accepted'`, pair[0], pair[1])
		}
		for _, p := range f.Posts {
			typ := p.Type
			if typ == "" {
				typ = models.PostTypeNote
			}
			batch.Queue(`
				INSERT INTO posts (`+postColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, 0, $11)
				ON CONFLICT (id) DO NOTHING`,
				p.ID, p.UserID, p.InterestID, string(typ), p.Title, p.Body, p.ImageURL, p.Location,
				p.EventAt, p.Cancelled, p.CreatedAt)
		}
		for _, c := range f.Comments {
			batch.Queue(`
				INSERT INTO comments (id, post_id, user_id, content, created_at)
				SELECT $1, id, $3, $4, $5 FROM posts WHERE id = $2
				ON CONFLICT (id) DO NOTHING`,
				c.ID, c.PostID, c.UserID, c.Content, c.CreatedAt)
		}
		for postID, users := range f.Likes {
			for _, u := range users {
				batch.Queue(`
					INSERT INTO likes (user_id, post_id)
					SELECT $1, id FROM posts WHERE id = $2
					ON CONFLICT DO NOTHING`, u, postID)
			}
		}
		for postID, users := range f.Attendees {
			for _, u := range users {
				batch.Queue(`
					INSERT INTO event_attendees (post_id, user_id)
					SELECT id, $2 FROM posts WHERE id = $1
					ON CONFLICT DO NOTHING`, postID, u)
			}
		}
		batch.Queue(`
			UPDATE posts p SET
				like_count = (SELECT count(*) FROM likes l WHERE l.post_id = p.id),
				comment_count = (SELECT count(*) FROM comments c WHERE c.post_id = p.id)`)

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to seed fixture: %w", err)
		}
		return nil
	})
}
