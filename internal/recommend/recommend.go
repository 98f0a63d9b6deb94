// ABOUTME: Redis-backed list of recommended post IDs per user.
// ABOUTME: Written by an offline ranker or the seed command, read by the Postgres backend.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyFmt = "circle:recs:%s"

// Redis stores recommendations as one list per user, best first.
type Redis struct {
	rdb *redis.Client
}

// New wraps an existing client.
func New(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Dial connects to the server at addr and checks it answers.
func Dial(ctx context.Context, addr string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return New(rdb), nil
}

func key(userID string) string { return fmt.Sprintf(keyFmt, userID) }

// RecommendedIDs returns up to limit post IDs for userID. A user with no list
// gets an empty result.
func (r *Redis) RecommendedIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := r.rdb.LRange(ctx, key(userID), 0, int64(limit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read recommendations: %w", err)
	}
	return ids, nil
}

// Set replaces userID's list. A zero ttl keeps it until replaced.
func (r *Redis) Set(ctx context.Context, userID string, postIDs []string, ttl time.Duration) error {
	k := key(userID)
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, k)
	if len(postIDs) > 0 {
		vals := make([]any, len(postIDs))
		for i, id := range postIDs {
			vals[i] = id
		}
		pipe.RPush(ctx, k, vals...)
		if ttl > 0 {
			pipe.Expire(ctx, k, ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store recommendations: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
