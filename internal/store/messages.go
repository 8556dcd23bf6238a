package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.message_type,
	m.file_url, m.file_name, m.file_size, m.is_edited, m.edited_at, m.created_at,
	u.id, u.username, u.email, u.display_name, u.avatar_url, u.is_online, u.last_seen, u.created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.MessageType,
		&m.FileURL, &m.FileName, &m.FileSize, &m.IsEdited, &m.EditedAt, &m.CreatedAt,
		&m.Sender.ID, &m.Sender.Username, &m.Sender.Email, &m.Sender.DisplayName,
		&m.Sender.AvatarURL, &m.Sender.IsOnline, &m.Sender.LastSeen, &m.Sender.CreatedAt)
	return m, err
}

// InsertMessage stores a message and bumps the conversation's updated_at in
// the same transaction. The notify trigger fires at commit, so the feed sees
// the message exactly when it becomes durable.
func (s *Store) InsertMessage(ctx context.Context, conversationID, senderID, content, messageType string) (Message, error) {
	if messageType == "" {
		messageType = MessageTypeText
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.participantRole(ctx, tx, conversationID, senderID); err != nil {
		return Message{}, err
	}

	id := uuid.NewString()
	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, message_type)
		VALUES ($1, $2, $3, $4, $5)`,
		id, conversationID, senderID, content, messageType); err != nil {
		return Message{}, fmt.Errorf("store: insert message: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID); err != nil {
		return Message{}, fmt.Errorf("store: bump conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("store: commit: %w", err)
	}
	return s.message(ctx, id)
}

func (s *Store) message(ctx context.Context, id string) (Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("store: load message: %w", err)
	}
	m.ReadBy, err = s.readBy(ctx, id)
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

func (s *Store) readBy(ctx context.Context, messageID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM message_read_receipts WHERE message_id = $1`, messageID)
	if err != nil {
		return nil, fmt.Errorf("store: read receipts: %w", err)
	}
	defer rows.Close()

	readBy := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("store: read receipts: %w", err)
		}
		readBy = append(readBy, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read receipts: %w", err)
	}
	return readBy, nil
}

// ListMessages returns up to limit non-deleted messages in ascending
// creation order. A non-empty before id pages backwards through history.
// This is the pull-side history path; the push channel never replays it.
func (s *Store) ListMessages(ctx context.Context, conversationID, userID string, limit int, before string) ([]Message, error) {
	if _, err := s.participantRole(ctx, s.pool, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1 AND m.is_deleted = FALSE`
	args := []any{conversationID}
	if before != "" {
		query += ` AND m.created_at < (SELECT created_at FROM messages WHERE id = $2)`
		args = append(args, before)
	}
	query += fmt.Sprintf(` ORDER BY m.created_at DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list messages: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}

	// newest-first query, oldest-first response
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	for i := range messages {
		if messages[i].ReadBy, err = s.readBy(ctx, messages[i].ID); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// EditMessage updates content for the sender. The edited trigger fires only
// when the content actually changed.
func (s *Store) EditMessage(ctx context.Context, messageID, userID, content string) (Message, error) {
	var senderID string
	var isDeleted bool
	err := s.pool.QueryRow(ctx, `
		SELECT sender_id, is_deleted FROM messages WHERE id = $1`, messageID).
		Scan(&senderID, &isDeleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("store: load message: %w", err)
	}
	if senderID != userID {
		return Message{}, ErrNotSender
	}
	if isDeleted {
		return Message{}, ErrMessageDeleted
	}

	if _, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET content = $2, is_edited = TRUE, edited_at = now(), updated_at = now()
		WHERE id = $1`, messageID, content); err != nil {
		return Message{}, fmt.Errorf("store: edit message: %w", err)
	}
	return s.message(ctx, messageID)
}

const deletedTombstone = "This message was deleted"

// DeleteMessage soft-deletes the sender's message, replacing its content
// with a tombstone.
func (s *Store) DeleteMessage(ctx context.Context, messageID, userID string) error {
	var senderID string
	err := s.pool.QueryRow(ctx, `
		SELECT sender_id FROM messages WHERE id = $1`, messageID).Scan(&senderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: load message: %w", err)
	}
	if senderID != userID {
		return ErrNotSender
	}

	if _, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET is_deleted = TRUE, deleted_at = now(), content = $2
		WHERE id = $1 AND is_deleted = FALSE`, messageID, deletedTombstone); err != nil {
		return fmt.Errorf("store: delete message: %w", err)
	}
	return nil
}

// MarkRead records a read receipt and advances the reader's last_read_at in
// one transaction; the receipt trigger fires at commit, so durable read
// state is always visible by the time the broadcast exists. Returns false
// when the message was already read.
func (s *Store) MarkRead(ctx context.Context, messageID, userID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var conversationID string
	err = tx.QueryRow(ctx, `
		SELECT conversation_id FROM messages WHERE id = $1`, messageID).Scan(&conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("store: load message: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO message_read_receipts (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("store: insert receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversation_participants SET last_read_at = now()
		WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID); err != nil {
		return false, fmt.Errorf("store: update last_read_at: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("store: commit: %w", err)
	}
	return true, nil
}

// SetTyping records or clears a typing indicator. Only inserts notify; the
// stop case simply clears rows, matching the feed's closed event set.
func (s *Store) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	if _, err := s.participantRole(ctx, s.pool, conversationID, userID); err != nil {
		return err
	}
	if isTyping {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO typing_indicators (conversation_id, user_id)
			VALUES ($1, $2)`, conversationID, userID); err != nil {
			return fmt.Errorf("store: insert typing indicator: %w", err)
		}
		return nil
	}
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM typing_indicators
		WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID); err != nil {
		return fmt.Errorf("store: clear typing indicator: %w", err)
	}
	return nil
}
