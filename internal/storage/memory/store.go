// Package memory provides an in-process session store for development and
// single-binary deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mandelmonkey/goldenpie/internal/storage"
)

// Store keeps sessions in maps guarded by one mutex. A secondary index maps
// live nonces to session IDs so redemption is a single critical section.
type Store struct {
	mu       sync.Mutex
	sessions map[string]storage.Session
	byNonce  map[string]string
	clock    func() time.Time
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		sessions: make(map[string]storage.Session),
		byNonce:  make(map[string]string),
		clock:    time.Now,
	}
}

// PutSession inserts a new session record.
func (s *Store) PutSession(ctx context.Context, session storage.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	if session.Nonce != "" {
		s.byNonce[session.Nonce] = session.ID
	}
	return nil
}

// GetSession returns a live session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || s.expired(session) {
		return storage.Session{}, storage.ErrNotFound
	}
	return session, nil
}

// GetSessionByNonce returns the live, unredeemed session owning nonce.
func (s *Store) GetSessionByNonce(ctx context.Context, nonce string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.liveByNonceLocked(nonce)
	if err != nil {
		return storage.Session{}, err
	}
	return session, nil
}

// BindAddress redeems nonce atomically. The nonce index entry is removed in
// the same critical section that binds the address, so a second caller for
// the same nonce always observes ErrNotFound.
func (s *Store) BindAddress(ctx context.Context, nonce, address string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.liveByNonceLocked(nonce)
	if err != nil {
		return storage.Session{}, err
	}
	session.Address = address
	session.Nonce = ""
	s.sessions[session.ID] = session
	delete(s.byNonce, nonce)
	return session, nil
}

// DeleteExpired removes sessions past their expiry.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, id)
			if session.Nonce != "" {
				delete(s.byNonce, session.Nonce)
			}
			removed++
		}
	}
	return removed, nil
}

// Kind names the backing implementation.
func (s *Store) Kind() string { return "memory" }

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func (s *Store) liveByNonceLocked(nonce string) (storage.Session, error) {
	id, ok := s.byNonce[nonce]
	if !ok {
		return storage.Session{}, storage.ErrNotFound
	}
	session, ok := s.sessions[id]
	if !ok || session.Bound() || s.expired(session) {
		return storage.Session{}, storage.ErrNotFound
	}
	return session, nil
}

func (s *Store) expired(session storage.Session) bool {
	return !session.ExpiresAt.After(s.clock())
}

var _ storage.SessionStore = (*Store)(nil)
