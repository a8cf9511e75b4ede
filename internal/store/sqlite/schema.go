package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the full DDL applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id                  TEXT PRIMARY KEY,
	uid                 TEXT NOT NULL UNIQUE,
	name                TEXT NOT NULL,
	email               TEXT NOT NULL UNIQUE,
	password_hash       TEXT NOT NULL,
	avatar_url          TEXT NOT NULL DEFAULT '',
	notifications_token TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'offline',
	last_seen           DATETIME NOT NULL,
	created_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	user_id    TEXT NOT NULL,
	contact_id TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, contact_id),
	FOREIGN KEY (user_id) REFERENCES users(id),
	FOREIGN KEY (contact_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS pinned_chats (
	user_id TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	PRIMARY KEY (user_id, chat_id)
);

CREATE TABLE IF NOT EXISTS chats (
	id              TEXT PRIMARY KEY,
	is_group        BOOLEAN NOT NULL DEFAULT 0,
	group_name      TEXT NOT NULL DEFAULT '',
	last_message_id TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_members (
	chat_id  TEXT NOT NULL,
	user_id  TEXT NOT NULL,
	is_admin BOOLEAN NOT NULL DEFAULT 0,
	PRIMARY KEY (chat_id, user_id),
	FOREIGN KEY (chat_id) REFERENCES chats(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	chat_id    TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'text',
	content    TEXT NOT NULL DEFAULT '',
	media_url  TEXT NOT NULL DEFAULT '',
	status     INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (chat_id) REFERENCES chats(id)
);

CREATE TABLE IF NOT EXISTS message_reads (
	message_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	PRIMARY KEY (message_id, user_id),
	FOREIGN KEY (message_id) REFERENCES messages(id)
);

CREATE TABLE IF NOT EXISTS message_reactions (
	message_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	emoji      TEXT NOT NULL,
	PRIMARY KEY (message_id, user_id),
	FOREIGN KEY (message_id) REFERENCES messages(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id);
CREATE INDEX IF NOT EXISTS idx_message_reads_user ON message_reads(user_id);
`

// Migrate applies Schema. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
