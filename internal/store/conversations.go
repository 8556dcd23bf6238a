package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateConversation creates a conversation and its participant rows in one
// transaction. For a direct chat with exactly one other user, an existing
// active 1:1 between the pair is returned instead of a duplicate.
func (s *Store) CreateConversation(ctx context.Context, creatorID string, name *string, isGroup bool, participantIDs []string) (Conversation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Conversation{}, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var activeCount int
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM users WHERE id = ANY($1) AND is_active`,
		participantIDs).Scan(&activeCount); err != nil {
		return Conversation{}, fmt.Errorf("store: verify participants: %w", err)
	}
	if activeCount != len(participantIDs) {
		return Conversation{}, ErrNotFound
	}

	if !isGroup && len(participantIDs) == 1 {
		var existingID string
		err := tx.QueryRow(ctx, `
			SELECT c.id FROM conversations c
			JOIN conversation_participants p ON p.conversation_id = c.id
			WHERE c.is_group = FALSE AND p.is_active AND p.user_id = ANY($1)
			GROUP BY c.id HAVING count(*) = 2
			LIMIT 1`,
			[]string{creatorID, participantIDs[0]}).Scan(&existingID)
		if err == nil {
			if err := tx.Commit(ctx); err != nil {
				return Conversation{}, fmt.Errorf("store: commit: %w", err)
			}
			return s.conversationForUser(ctx, existingID, creatorID)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, fmt.Errorf("store: find direct conversation: %w", err)
		}
	}

	id := uuid.NewString()
	if _, err := tx.Exec(ctx, `
		INSERT INTO conversations (id, name, is_group, created_by)
		VALUES ($1, $2, $3, $4)`, id, name, isGroup, creatorID); err != nil {
		return Conversation{}, fmt.Errorf("store: insert conversation: %w", err)
	}

	creatorRole := RoleMember
	if isGroup {
		creatorRole = RoleAdmin
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id, role)
		VALUES ($1, $2, $3)`, id, creatorID, creatorRole); err != nil {
		return Conversation{}, fmt.Errorf("store: insert creator participant: %w", err)
	}
	for _, userID := range participantIDs {
		if userID == creatorID {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, role)
			VALUES ($1, $2, $3)`, id, userID, RoleMember); err != nil {
			return Conversation{}, fmt.Errorf("store: insert participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Conversation{}, fmt.Errorf("store: commit: %w", err)
	}
	return s.conversationForUser(ctx, id, creatorID)
}

// ListConversations returns the user's active conversations, most recently
// updated first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1 AND p.is_active
		ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: list conversations: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}

	out := make([]Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.conversationForUser(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

func (s *Store) conversationForUser(ctx context.Context, conversationID, userID string) (Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, is_group, avatar_url, created_at, updated_at
		FROM conversations WHERE id = $1`, conversationID).
		Scan(&c.ID, &c.Name, &c.IsGroup, &c.AvatarURL, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("store: load conversation: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.username, u.email, u.display_name, u.avatar_url,
		       u.is_online, u.last_seen, u.created_at, p.role, p.joined_at
		FROM conversation_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1 AND p.is_active`, conversationID)
	if err != nil {
		return Conversation{}, fmt.Errorf("store: load participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.User.ID, &p.User.Username, &p.User.Email, &p.User.DisplayName,
			&p.User.AvatarURL, &p.User.IsOnline, &p.User.LastSeen, &p.User.CreatedAt,
			&p.Role, &p.JoinedAt); err != nil {
			return Conversation{}, fmt.Errorf("store: load participants: %w", err)
		}
		if p.User.ID == userID {
			c.MyRole = p.Role
		}
		c.Participants = append(c.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return Conversation{}, fmt.Errorf("store: load participants: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(*) FROM messages m
		JOIN conversation_participants p
		  ON p.conversation_id = m.conversation_id AND p.user_id = $2
		WHERE m.conversation_id = $1 AND m.created_at > p.last_read_at
		  AND m.sender_id != $2 AND m.is_deleted = FALSE`,
		conversationID, userID).Scan(&c.UnreadCount)
	if err != nil {
		return Conversation{}, fmt.Errorf("store: unread count: %w", err)
	}
	return c, nil
}

// participantRole returns the role of an active participant, or
// ErrNotParticipant.
func (s *Store) participantRole(ctx context.Context, q querier, conversationID, userID string) (string, error) {
	var role string
	err := q.QueryRow(ctx, `
		SELECT role FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2 AND is_active`,
		conversationID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotParticipant
	}
	if err != nil {
		return "", fmt.Errorf("store: participant role: %w", err)
	}
	return role, nil
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IsParticipant reports whether the user is an active participant.
func (s *Store) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	_, err := s.participantRole(ctx, s.pool, conversationID, userID)
	if errors.Is(err, ErrNotParticipant) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetConversation returns one conversation for an active participant. A
// missing conversation reads as ErrNotFound before the membership gate so
// the two failures stay distinguishable.
func (s *Store) GetConversation(ctx context.Context, conversationID, userID string) (Conversation, error) {
	conv, err := s.conversationForUser(ctx, conversationID, userID)
	if err != nil {
		return Conversation{}, err
	}
	ok, err := s.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return Conversation{}, err
	}
	if !ok {
		return Conversation{}, ErrNotParticipant
	}
	return conv, nil
}

// UpdateConversation renames a conversation. The actor must be an active
// admin; a nil name leaves it untouched.
func (s *Store) UpdateConversation(ctx context.Context, conversationID, actorID string, name *string) (Conversation, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists); err != nil {
		return Conversation{}, fmt.Errorf("store: load conversation: %w", err)
	}
	if !exists {
		return Conversation{}, ErrNotFound
	}

	role, err := s.participantRole(ctx, s.pool, conversationID, actorID)
	if err != nil {
		return Conversation{}, err
	}
	if role != RoleAdmin {
		return Conversation{}, ErrNotAdmin
	}

	if name != nil {
		if _, err := s.pool.Exec(ctx, `
			UPDATE conversations SET name = $2, updated_at = now() WHERE id = $1`,
			conversationID, name); err != nil {
			return Conversation{}, fmt.Errorf("store: update conversation: %w", err)
		}
	}
	return s.conversationForUser(ctx, conversationID, actorID)
}

// ActiveConversationIDs lists every conversation the user actively
// participates in; sessions use it to rebuild room membership at connect.
func (s *Store) ActiveConversationIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id FROM conversation_participants
		WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: active conversation ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: active conversation ids: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: active conversation ids: %w", err)
	}
	return ids, nil
}

// AddParticipants adds users to a group conversation. The actor must be an
// active admin. Soft-removed rows are reactivated, which re-fires the
// participant_added notification. Returns the ids actually added.
func (s *Store) AddParticipants(ctx context.Context, conversationID, actorID string, userIDs []string) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var isGroup bool
	err = tx.QueryRow(ctx, `SELECT is_group FROM conversations WHERE id = $1`, conversationID).Scan(&isGroup)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !isGroup) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load conversation: %w", err)
	}

	actor, err := s.actorProfile(ctx, tx, conversationID, actorID, true)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, userID := range userIDs {
		var displayName string
		err := tx.QueryRow(ctx, `
			SELECT display_name FROM users WHERE id = $1 AND is_active`, userID).Scan(&displayName)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: load user: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE conversation_participants
			SET is_active = TRUE, joined_at = now(), left_at = NULL
			WHERE conversation_id = $1 AND user_id = $2 AND is_active = FALSE`,
			conversationID, userID)
		if err != nil {
			return nil, fmt.Errorf("store: reactivate participant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			tag, err = tx.Exec(ctx, `
				INSERT INTO conversation_participants (conversation_id, user_id, role)
				VALUES ($1, $2, $3)
				ON CONFLICT (conversation_id, user_id) DO NOTHING`,
				conversationID, userID, RoleMember)
			if err != nil {
				return nil, fmt.Errorf("store: insert participant: %w", err)
			}
			if tag.RowsAffected() == 0 {
				continue // already an active participant
			}
		}
		added = append(added, userID)

		if err := insertSystemMessage(ctx, tx, conversationID, actorID,
			actor+" added "+displayName); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return added, nil
}

// RemoveParticipant soft-removes a user from a group conversation. Admins
// may remove anyone; a member may only remove themselves.
func (s *Store) RemoveParticipant(ctx context.Context, conversationID, actorID, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var isGroup bool
	err = tx.QueryRow(ctx, `SELECT is_group FROM conversations WHERE id = $1`, conversationID).Scan(&isGroup)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !isGroup) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: load conversation: %w", err)
	}

	actor, err := s.actorProfile(ctx, tx, conversationID, actorID, userID != actorID)
	if err != nil {
		return err
	}

	var targetName string
	err = tx.QueryRow(ctx, `
		SELECT u.display_name FROM conversation_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1 AND p.user_id = $2 AND p.is_active`,
		conversationID, userID).Scan(&targetName)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotParticipant
	}
	if err != nil {
		return fmt.Errorf("store: load target participant: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversation_participants
		SET is_active = FALSE, left_at = now()
		WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID); err != nil {
		return fmt.Errorf("store: remove participant: %w", err)
	}

	content := actor + " removed " + targetName + " from the group"
	if userID == actorID {
		content = actor + " left the group"
	}
	if err := insertSystemMessage(ctx, tx, conversationID, actorID, content); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// actorProfile checks the actor is an active participant (and an admin when
// requireAdmin is set) and returns their display name.
func (s *Store) actorProfile(ctx context.Context, tx pgx.Tx, conversationID, actorID string, requireAdmin bool) (string, error) {
	role, err := s.participantRole(ctx, tx, conversationID, actorID)
	if err != nil {
		return "", err
	}
	if requireAdmin && role != RoleAdmin {
		return "", ErrNotAdmin
	}
	return actorDisplay(ctx, tx, actorID), nil
}

func actorDisplay(ctx context.Context, tx pgx.Tx, userID string) string {
	var name string
	if err := tx.QueryRow(ctx, `SELECT display_name FROM users WHERE id = $1`, userID).Scan(&name); err != nil {
		return userID
	}
	return name
}

func insertSystemMessage(ctx context.Context, tx pgx.Tx, conversationID, senderID, content string) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, message_type)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), conversationID, senderID, content, MessageTypeSystem); err != nil {
		return fmt.Errorf("store: insert system message: %w", err)
	}
	return nil
}
