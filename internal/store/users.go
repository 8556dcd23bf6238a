package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, username, email, display_name, avatar_url, is_online, last_seen, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.AvatarURL,
		&u.IsOnline, &u.LastSeen, &u.CreatedAt)
	return u, err
}

// CreateUser inserts a new account with an already-hashed password.
func (s *Store) CreateUser(ctx context.Context, username, email, hashedPassword, displayName string) (User, error) {
	if displayName == "" {
		displayName = username
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, email, hashed_password, display_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		uuid.NewString(), username, email, hashedPassword, displayName)

	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrUserExists
		}
		return User{}, fmt.Errorf("store: create user: %w", err)
	}
	return u, nil
}

// Credentials returns the user and password hash for an active account.
func (s *Store) Credentials(ctx context.Context, username string) (User, string, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`, hashed_password FROM users
		WHERE username = $1 AND is_active`, username)

	var u User
	var hash string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.AvatarURL,
		&u.IsOnline, &u.LastSeen, &u.CreatedAt, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, "", ErrNotFound
	}
	if err != nil {
		return User{}, "", fmt.Errorf("store: credentials: %w", err)
	}
	return u, hash, nil
}

// ActiveUser loads an account by id, excluding soft-deleted ones.
func (s *Store) ActiveUser(ctx context.Context, id string) (User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1 AND is_active`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("store: active user: %w", err)
	}
	return u, nil
}

// SearchUsers finds active accounts whose username or display name contains
// the query, excluding the searcher. An empty query matches everyone.
func (s *Store) SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]User, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE is_active AND id != $1
		  AND (username ILIKE '%' || $2 || '%' OR display_name ILIKE '%' || $2 || '%')
		ORDER BY username
		LIMIT $3`, excludeID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: search users: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: search users: %w", err)
	}
	return users, nil
}

// UpdateProfile applies the non-nil fields to an active account and returns
// the updated row. A taken email surfaces as ErrUserExists.
func (s *Store) UpdateProfile(ctx context.Context, id string, displayName, email *string) (User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET display_name = COALESCE($2, display_name),
		    email = COALESCE($3, email)
		WHERE id = $1 AND is_active
		RETURNING `+userColumns, id, displayName, email)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrUserExists
		}
		return User{}, fmt.Errorf("store: update profile: %w", err)
	}
	return u, nil
}

// DeactivateUser soft-deletes the account. The row stays for history;
// login, search and new sessions all exclude it.
func (s *Store) DeactivateUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET is_active = FALSE, is_online = FALSE, deleted_at = now()
		WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("store: deactivate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPresence persists the derived online flag; called when a user's first
// connection arrives and when their last one goes away.
func (s *Store) SetPresence(ctx context.Context, id string, online bool) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE users SET is_online = $2, last_seen = now() WHERE id = $1`, id, online); err != nil {
		return fmt.Errorf("store: set presence: %w", err)
	}
	return nil
}
