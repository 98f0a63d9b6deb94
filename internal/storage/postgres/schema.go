// ABOUTME: Table definitions for the Postgres backend.
// ABOUTME: Applied idempotently when the store is opened.
package postgres

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	avatar_url   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS interests (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_interests (
	user_id     TEXT NOT NULL,
	interest_id TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, interest_id)
);

CREATE TABLE IF NOT EXISTS friendships (
	user_id   TEXT NOT NULL,
	friend_id TEXT NOT NULL,
	status    TEXT NOT NULL DEFAULT 'pending',
	PRIMARY KEY (user_id, friend_id)
);

CREATE TABLE IF NOT EXISTS posts (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	interest_id   TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL DEFAULT 'note',
	title         TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL DEFAULT '',
	image_url     TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	event_at      TIMESTAMPTZ,
	cancelled     BOOLEAN NOT NULL DEFAULT false,
	like_count    INTEGER NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_user_created ON posts(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_posts_interest_created ON posts(interest_id, created_at DESC);

CREATE TABLE IF NOT EXISTS comments (
	id         TEXT PRIMARY KEY,
	post_id    TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id, created_at DESC);

CREATE TABLE IF NOT EXISTS likes (
	user_id    TEXT NOT NULL,
	post_id    TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, post_id)
);

CREATE TABLE IF NOT EXISTS event_attendees (
	post_id    TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (post_id, user_id)
);
`
