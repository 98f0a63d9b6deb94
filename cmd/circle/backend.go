// ABOUTME: Opens the configured storage backend for CLI commands.
// ABOUTME: Remote uses the session token, postgres optionally pairs with redis recommendations.
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/2389-research/circle/internal/config"
	"github.com/2389-research/circle/internal/recommend"
	"github.com/2389-research/circle/internal/session"
	"github.com/2389-research/circle/internal/storage"
	"github.com/2389-research/circle/internal/storage/memory"
	"github.com/2389-research/circle/internal/storage/postgres"
)

// backend is the opened storage plus the concrete handles some commands need.
type backend struct {
	storage.Backend
	kind     string
	remote   *storage.RemoteClient
	postgres *postgres.Store
	recs     *recommend.Redis
}

func (b *backend) Close() error {
	err := b.Backend.Close()
	if b.recs != nil {
		err = errors.Join(err, b.recs.Close())
	}
	return err
}

func openBackend(ctx context.Context, cfg config.Config, sessions *session.Store) (*backend, error) {
	switch kind := cfg.BackendKind(); kind {
	case config.BackendRemote:
		token := ""
		if sess, err := sessions.Load(); err == nil {
			token = sess.AccessToken
		} else if !errors.Is(err, session.ErrNotLoggedIn) {
			return nil, err
		}
		rc := storage.NewRemoteClient(cfg.Backend.APIURL, cfg.Backend.APIKey, token)
		return &backend{Backend: rc, kind: kind, remote: rc}, nil

	case config.BackendPostgres:
		b := &backend{kind: kind}
		var opts []postgres.Option
		if cfg.Backend.RedisAddr != "" {
			recs, err := recommend.Dial(ctx, cfg.Backend.RedisAddr)
			if err != nil {
				return nil, err
			}
			b.recs = recs
			opts = append(opts, postgres.WithRecommender(recs))
		}
		pg, err := postgres.New(ctx, cfg.Backend.PostgresDSN, opts...)
		if err != nil {
			if b.recs != nil {
				_ = b.recs.Close()
			}
			return nil, err
		}
		b.Backend, b.postgres = pg, pg
		return b, nil

	default:
		path, err := cfg.GetFixturePath()
		if err != nil {
			return nil, err
		}
		if path == "" {
			glog.Warning("memory backend without a fixture starts empty")
			return &backend{Backend: memory.New(), kind: config.BackendMemory}, nil
		}
		mem, err := memory.NewFromFixture(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load fixture: %w", err)
		}
		return &backend{Backend: mem, kind: config.BackendMemory}, nil
	}
}
