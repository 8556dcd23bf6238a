package store

import (
	"context"
	"fmt"
)

// Migrate creates the schema and installs the notify triggers. The triggers
// are the real-time contract: any committed write the clients should see
// fires pg_notify on the matching channel within the same transaction, so a
// collaborator writing through this schema can never silently skip the feed.
func (s *Store) Migrate(ctx context.Context) error {
	for _, ddl := range migrations {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              TEXT PRIMARY KEY,
		username        TEXT NOT NULL UNIQUE,
		email           TEXT NOT NULL UNIQUE,
		hashed_password TEXT NOT NULL,
		display_name    TEXT NOT NULL DEFAULT '',
		avatar_url      TEXT,
		is_online       BOOLEAN NOT NULL DEFAULT FALSE,
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		last_seen       TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at      TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		name       TEXT,
		is_group   BOOLEAN NOT NULL DEFAULT FALSE,
		created_by TEXT REFERENCES users(id),
		avatar_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS conversation_participants (
		id              BIGSERIAL PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		user_id         TEXT NOT NULL REFERENCES users(id),
		role            TEXT NOT NULL DEFAULT 'member',
		joined_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_read_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		left_at         TIMESTAMPTZ,
		UNIQUE (conversation_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_user
		ON conversation_participants (user_id) WHERE is_active`,

	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender_id       TEXT NOT NULL REFERENCES users(id),
		content         TEXT NOT NULL,
		message_type    TEXT NOT NULL DEFAULT 'text',
		file_url        TEXT,
		file_name       TEXT,
		file_size       BIGINT,
		is_edited       BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted      BOOLEAN NOT NULL DEFAULT FALSE,
		edited_at       TIMESTAMPTZ,
		deleted_at      TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
		ON messages (conversation_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS message_read_receipts (
		id         BIGSERIAL PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES messages(id),
		user_id    TEXT NOT NULL REFERENCES users(id),
		read_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (message_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS typing_indicators (
		id              BIGSERIAL PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		user_id         TEXT NOT NULL REFERENCES users(id),
		started_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// user_profile keeps credentials out of the payloads that reach clients.
	`CREATE OR REPLACE FUNCTION user_profile(uid TEXT)
	RETURNS JSON AS $$
		SELECT json_build_object(
			'id', u.id, 'username', u.username, 'email', u.email,
			'display_name', u.display_name, 'avatar_url', u.avatar_url,
			'is_online', u.is_online, 'last_seen', u.last_seen,
			'created_at', u.created_at
		) FROM users u WHERE u.id = uid
	$$ LANGUAGE sql`,

	`CREATE OR REPLACE FUNCTION notify_new_message()
	RETURNS TRIGGER AS $$
	BEGIN
		PERFORM pg_notify('new_message', json_build_object(
			'id', NEW.id, 'conversation_id', NEW.conversation_id,
			'sender_id', NEW.sender_id, 'content', NEW.content,
			'message_type', NEW.message_type, 'file_url', NEW.file_url,
			'file_name', NEW.file_name, 'created_at', NEW.created_at,
			'sender', user_profile(NEW.sender_id)
		)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS new_message_trigger ON messages`,
	`CREATE TRIGGER new_message_trigger AFTER INSERT ON messages
		FOR EACH ROW WHEN (NEW.is_deleted = FALSE)
		EXECUTE FUNCTION notify_new_message()`,

	`CREATE OR REPLACE FUNCTION notify_message_edited()
	RETURNS TRIGGER AS $$
	BEGIN
		IF OLD.content != NEW.content AND NEW.is_deleted = FALSE THEN
			PERFORM pg_notify('message_edited', json_build_object(
				'id', NEW.id, 'conversation_id', NEW.conversation_id,
				'content', NEW.content, 'is_edited', NEW.is_edited,
				'edited_at', NEW.edited_at
			)::text);
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS message_edited_trigger ON messages`,
	`CREATE TRIGGER message_edited_trigger AFTER UPDATE ON messages
		FOR EACH ROW EXECUTE FUNCTION notify_message_edited()`,

	`CREATE OR REPLACE FUNCTION notify_message_deleted()
	RETURNS TRIGGER AS $$
	BEGIN
		IF OLD.is_deleted = FALSE AND NEW.is_deleted = TRUE THEN
			PERFORM pg_notify('message_deleted', json_build_object(
				'id', NEW.id, 'conversation_id', NEW.conversation_id,
				'deleted_at', NEW.deleted_at
			)::text);
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS message_deleted_trigger ON messages`,
	`CREATE TRIGGER message_deleted_trigger AFTER UPDATE ON messages
		FOR EACH ROW EXECUTE FUNCTION notify_message_deleted()`,

	`CREATE OR REPLACE FUNCTION notify_typing()
	RETURNS TRIGGER AS $$
	BEGIN
		PERFORM pg_notify('typing_indicator', json_build_object(
			'conversation_id', NEW.conversation_id,
			'user_id', NEW.user_id, 'user', user_profile(NEW.user_id),
			'is_typing', TRUE
		)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS typing_trigger ON typing_indicators`,
	`CREATE TRIGGER typing_trigger AFTER INSERT ON typing_indicators
		FOR EACH ROW EXECUTE FUNCTION notify_typing()`,

	`CREATE OR REPLACE FUNCTION notify_message_read()
	RETURNS TRIGGER AS $$
	BEGIN
		PERFORM pg_notify('message_read', json_build_object(
			'message_id', NEW.message_id, 'user_id', NEW.user_id,
			'read_at', NEW.read_at,
			'conversation_id', (SELECT conversation_id FROM messages WHERE id = NEW.message_id)
		)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS read_receipt_trigger ON message_read_receipts`,
	`CREATE TRIGGER read_receipt_trigger AFTER INSERT ON message_read_receipts
		FOR EACH ROW EXECUTE FUNCTION notify_message_read()`,

	`CREATE OR REPLACE FUNCTION notify_participant_change()
	RETURNS TRIGGER AS $$
	BEGIN
		IF TG_OP = 'INSERT' OR (TG_OP = 'UPDATE' AND OLD.is_active = FALSE AND NEW.is_active = TRUE) THEN
			PERFORM pg_notify('participant_added', json_build_object(
				'conversation_id', NEW.conversation_id,
				'user_id', NEW.user_id, 'user', user_profile(NEW.user_id),
				'role', NEW.role
			)::text);
		ELSIF TG_OP = 'UPDATE' AND OLD.is_active = TRUE AND NEW.is_active = FALSE THEN
			PERFORM pg_notify('participant_removed', json_build_object(
				'conversation_id', NEW.conversation_id,
				'user_id', NEW.user_id
			)::text);
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS participant_change_trigger ON conversation_participants`,
	`CREATE TRIGGER participant_change_trigger
		AFTER INSERT OR UPDATE ON conversation_participants
		FOR EACH ROW EXECUTE FUNCTION notify_participant_change()`,
}
