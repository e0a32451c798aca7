// Package sqlite provides a SQLite-backed session store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/mandelmonkey/goldenpie/internal/platform/storage/sqlitemigrate"
	"github.com/mandelmonkey/goldenpie/internal/storage"
	"github.com/mandelmonkey/goldenpie/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists auth sessions in SQLite.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite session store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Kind names the backing implementation.
func (s *Store) Kind() string { return "sqlite" }

// PutSession inserts a new session record.
func (s *Store) PutSession(ctx context.Context, session storage.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (id, nonce, slot, address, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.Nonce,
		session.Slot,
		session.Address,
		toMillis(session.CreatedAt),
		toMillis(session.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// GetSession returns a live session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Session{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, nonce, slot, address, created_at, expires_at
		   FROM sessions
		  WHERE id = ? AND expires_at > ?`,
		id,
		toMillis(s.clock()),
	)
	return scanSession(row)
}

// GetSessionByNonce returns the live, unredeemed session owning nonce.
func (s *Store) GetSessionByNonce(ctx context.Context, nonce string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Session{}, fmt.Errorf("storage is not configured")
	}
	if nonce == "" {
		return storage.Session{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, nonce, slot, address, created_at, expires_at
		   FROM sessions
		  WHERE nonce = ? AND address = '' AND expires_at > ?`,
		nonce,
		toMillis(s.clock()),
	)
	return scanSession(row)
}

// BindAddress redeems nonce atomically. The UPDATE both binds the address
// and clears the nonce guarded on the row being unbound, so its
// rows-affected count decides the one winner; SQLite serializes writers.
func (s *Store) BindAddress(ctx context.Context, nonce, address string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Session{}, fmt.Errorf("storage is not configured")
	}
	if nonce == "" {
		return storage.Session{}, storage.ErrNotFound
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Session{}, fmt.Errorf("bind address: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(
		ctx,
		`SELECT id, nonce, slot, address, created_at, expires_at
		   FROM sessions
		  WHERE nonce = ? AND address = '' AND expires_at > ?`,
		nonce,
		toMillis(s.clock()),
	)
	session, err := scanSession(row)
	if err != nil {
		return storage.Session{}, err
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE sessions
		    SET address = ?, nonce = ''
		  WHERE id = ? AND address = ''`,
		address,
		session.ID,
	)
	if err != nil {
		return storage.Session{}, fmt.Errorf("bind address: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Session{}, fmt.Errorf("bind address: %w", err)
	}
	if affected == 0 {
		return storage.Session{}, storage.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return storage.Session{}, fmt.Errorf("bind address: %w", err)
	}

	session.Address = address
	session.Nonce = ""
	return session, nil
}

// DeleteExpired removes sessions past their expiry.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`,
		toMillis(s.clock()),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(affected), nil
}

func scanSession(row *sql.Row) (storage.Session, error) {
	var session storage.Session
	var createdAt int64
	var expiresAt int64
	err := row.Scan(
		&session.ID,
		&session.Nonce,
		&session.Slot,
		&session.Address,
		&createdAt,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Session{}, storage.ErrNotFound
		}
		return storage.Session{}, fmt.Errorf("scan session: %w", err)
	}
	session.CreatedAt = fromMillis(createdAt)
	session.ExpiresAt = fromMillis(expiresAt)
	return session, nil
}

var _ storage.SessionStore = (*Store)(nil)
