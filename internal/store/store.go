// Package store is the authoritative relational record. Every mutation that
// must be visible in real time commits alongside a pg_notify emitted by the
// triggers installed in Migrate; the realtime bridge consumes those
// notifications, never this package's queries.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrNotParticipant = errors.New("store: not a participant")
	ErrNotSender      = errors.New("store: not the sender")
	ErrNotAdmin       = errors.New("store: admin only")
	ErrUserExists     = errors.New("store: username or email already taken")
	ErrMessageDeleted = errors.New("store: message is deleted")
)

type Store struct {
	pool *pgxpool.Pool
}

// New opens a pgx pool against the given DSN and verifies connectivity.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse config: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 4
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}
