// Package storage defines the persistence contract for auth sessions.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested session does not exist, has expired,
// or (for nonce lookups) has already been redeemed.
var ErrNotFound = errors.New("session not found")

// Session is one login attempt for a player slot. Nonce is the single-use
// challenge secret; Address stays empty until a wallet redeems the nonce.
type Session struct {
	ID        string
	Nonce     string
	Slot      int
	Address   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Bound reports whether a wallet has redeemed this session.
func (s Session) Bound() bool {
	return s.Address != ""
}

// SessionStore persists auth sessions with TTL semantics. Implementations
// never return expired sessions from lookups.
type SessionStore interface {
	// PutSession inserts a new session record.
	PutSession(ctx context.Context, session Session) error

	// GetSession returns a live session by ID.
	GetSession(ctx context.Context, id string) (Session, error)

	// GetSessionByNonce returns the live, unredeemed session owning nonce.
	GetSessionByNonce(ctx context.Context, nonce string) (Session, error)

	// BindAddress redeems nonce: it binds address to the owning session and
	// retires the nonce in one atomic step. Concurrent calls for the same
	// nonce have exactly one winner; losers get ErrNotFound.
	BindAddress(ctx context.Context, nonce, address string) (Session, error)

	// DeleteExpired removes sessions past their expiry and reports how many
	// were removed.
	DeleteExpired(ctx context.Context) (int, error)

	// Kind names the backing implementation for health reporting.
	Kind() string

	// Close releases the underlying resources.
	Close() error
}
