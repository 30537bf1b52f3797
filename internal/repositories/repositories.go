// Every repository runs its statements against a [DBTX], so the same code serves a
// plain connection pool and an open transaction. [Store] groups the repositories and
// scopes them to a transaction with [Store.WithTx].

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunelink/internal/shared"
)

// DBTX is the subset of [sql.DB] and [sql.Tx] the repositories need.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is implemented by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

// Store bundles the repositories over one [DBTX].
type Store struct {
	db *sql.DB
	tx *sql.Tx

	Users         *UserRepository
	Tokens        *TokenRepository
	Connections   *ConnectionRepository
	Playlists     *PlaylistRepository
	Tracks        *TrackRepository
	PlaylistItems *PlaylistItemRepository
	Friends       *FriendRepository
}

// NewStore creates a [Store] whose repositories run directly against db.
func NewStore(db *sql.DB) *Store {
	s := &Store{db: db}
	s.bind(db)
	return s
}

func (s *Store) bind(q DBTX) {
	s.Users = NewUserRepository(q)
	s.Tokens = NewTokenRepository(q)
	s.Connections = NewConnectionRepository(q)
	s.Playlists = NewPlaylistRepository(q)
	s.Tracks = NewTrackRepository(q)
	s.PlaylistItems = NewPlaylistItemRepository(q)
	s.Friends = NewFriendRepository(q)
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn with a transaction-scoped copy of the store and commits when fn returns nil.
//
// Calling WithTx on a store that is already transaction-scoped reuses the open transaction.
// While fn runs, only the store passed to fn may be used: the outer store's pool can block on
// SQLite's single writer.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	scoped := &Store{db: s.db, tx: tx}
	scoped.bind(tx)

	if err := fn(scoped); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// notFound converts [sql.ErrNoRows] into a wrapped [shared.ErrNotFound].
func notFound(err error, kind, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, key, shared.ErrNotFound)
	}
	return fmt.Errorf("failed to query %s: %w", kind, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func utcNow() time.Time {
	return time.Now().UTC()
}
