// ABOUTME: Resolves the signed-in viewer from the session token and the directory.
// ABOUTME: Resolved viewers are cached for a short TTL to keep fetches cheap.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
	"github.com/jellydator/ttlcache/v3"

	"github.com/2389-research/circle/internal/feed"
	"github.com/2389-research/circle/internal/storage"
)

// Resolver implements feed.ViewerSource.
type Resolver struct {
	sessions *Store
	dir      storage.Directory
	secret   []byte
	cache    *ttlcache.Cache[string, feed.Viewer]
}

var _ feed.ViewerSource = (*Resolver)(nil)

// NewResolver creates a resolver. When secret is non-empty, token
// signatures are verified with it (HS256); otherwise tokens are trusted
// as issued by the backend and only decoded.
func NewResolver(sessions *Store, dir storage.Directory, secret string, ttl time.Duration) *Resolver {
	r := &Resolver{
		sessions: sessions,
		dir:      dir,
		cache:    ttlcache.New[string, feed.Viewer](ttlcache.WithTTL[string, feed.Viewer](ttl)),
	}
	if secret != "" {
		r.secret = []byte(secret)
	}
	return r
}

// Viewer returns the signed-in viewer with their interests and friends.
func (r *Resolver) Viewer(ctx context.Context) (feed.Viewer, error) {
	userID, err := r.UserID()
	if err != nil {
		if errors.Is(err, ErrNotLoggedIn) {
			return feed.Viewer{}, feed.ErrNoViewer
		}
		return feed.Viewer{}, err
	}

	if item := r.cache.Get(userID); item != nil {
		return item.Value(), nil
	}

	v, err := r.resolve(ctx, userID)
	if err != nil {
		return feed.Viewer{}, err
	}
	r.cache.Set(userID, v, ttlcache.DefaultTTL)
	glog.V(1).Infof("session: resolved viewer %s (%d interests, %d friends)", userID, len(v.InterestIDs), len(v.FriendIDs))
	return v, nil
}

// UserID returns the signed-in user's ID from the token subject, or from
// the session file when there is no token.
func (r *Resolver) UserID() (string, error) {
	sess, err := r.sessions.Load()
	if err != nil {
		return "", err
	}
	if sess.AccessToken == "" {
		return sess.UserID, nil
	}
	return Subject(sess.AccessToken, r.secret)
}

func (r *Resolver) resolve(ctx context.Context, userID string) (feed.Viewer, error) {
	v := feed.Viewer{ID: userID}

	profiles, err := r.dir.Profiles(ctx, []string{userID})
	if err != nil {
		return feed.Viewer{}, fmt.Errorf("failed to load profile: %w", err)
	}
	if p, ok := profiles[userID]; ok {
		v.DisplayName = p.DisplayName
		v.AvatarURL = p.AvatarURL
	}

	if v.InterestIDs, err = r.dir.InterestIDsForUser(ctx, userID); err != nil {
		return feed.Viewer{}, fmt.Errorf("failed to load interests: %w", err)
	}
	if v.FriendIDs, err = r.dir.FriendIDs(ctx, userID); err != nil {
		return feed.Viewer{}, fmt.Errorf("failed to load friends: %w", err)
	}
	return v, nil
}

// Forget drops cached viewers, e.g. after following a new interest.
func (r *Resolver) Forget() {
	r.cache.DeleteAll()
}

// Subject extracts the subject claim of a session token. With a secret
// the signature and expiry are verified; without one the token is decoded only.
func Subject(token string, secret []byte) (string, error) {
	var claims jwt.RegisteredClaims
	if len(secret) > 0 {
		_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return "", fmt.Errorf("invalid session token: %w", err)
		}
	} else if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("malformed session token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("session token has no subject")
	}
	return claims.Subject, nil
}
