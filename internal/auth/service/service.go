// Package service implements the auth session lifecycle: create a
// challenge, answer wallet callbacks, and report binding status.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mandelmonkey/goldenpie/internal/auth/domain"
	"github.com/mandelmonkey/goldenpie/internal/auth/grant"
	apperrors "github.com/mandelmonkey/goldenpie/internal/errors"
	"github.com/mandelmonkey/goldenpie/internal/storage"
)

// DefaultSessionTTL is how long an unredeemed session stays valid.
const DefaultSessionTTL = time.Hour

// Service coordinates session storage, challenge rendering, and grant
// minting. The signer is optional; without one, Status simply omits grants.
type Service struct {
	store   storage.SessionStore
	signer  *grant.Signer
	baseURL string
	ttl     time.Duration

	clock        func() time.Time
	newSessionID func() string
	newNonce     func() (string, error)
}

// NewService builds a Service. baseURL is the externally reachable root of
// the auth server, used to render callback URLs wallets can fetch.
func NewService(store storage.SessionStore, baseURL string, ttl time.Duration, signer *grant.Signer) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		store:        store,
		signer:       signer,
		baseURL:      strings.TrimRight(baseURL, "/"),
		ttl:          ttl,
		clock:        time.Now,
		newSessionID: uuid.NewString,
		newNonce:     domain.NewNonce,
	}
}

// CreateResult is the engine-facing view of a freshly created session.
type CreateResult struct {
	SessionID string
	Nonce     string
	Challenge string
}

// CreateSession starts a login attempt for a player slot and returns the
// challenge URL a wallet should fetch.
func (s *Service) CreateSession(ctx context.Context, slot int) (CreateResult, error) {
	if err := domain.ValidateSlot(slot); err != nil {
		return CreateResult{}, err
	}
	nonce, err := s.newNonce()
	if err != nil {
		return CreateResult{}, fmt.Errorf("create session: %w", err)
	}
	now := s.clock()
	session := storage.Session{
		ID:        s.newSessionID(),
		Nonce:     nonce,
		Slot:      slot,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.PutSession(ctx, session); err != nil {
		return CreateResult{}, fmt.Errorf("create session: %w", err)
	}
	return CreateResult{
		SessionID: session.ID,
		Nonce:     nonce,
		Challenge: fmt.Sprintf("%s/callback?tag=%s&k1=%s", s.baseURL, domain.SessionTag, nonce),
	}, nil
}

// Challenge returns the LUD-22 payload for a live nonce.
func (s *Service) Challenge(ctx context.Context, nonce, tag string) (domain.Challenge, error) {
	if err := domain.ValidateTag(tag); err != nil {
		return domain.Challenge{}, err
	}
	session, err := s.store.GetSessionByNonce(ctx, nonce)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Challenge{}, apperrors.New(apperrors.CodeAuthInvalidNonce, "unknown or expired k1")
		}
		return domain.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	return domain.Challenge{
		Tag:      domain.SessionTag,
		K1:       nonce,
		Callback: s.baseURL + "/callback",
		Metadata: domain.ChallengeMetadata(session.Slot),
	}, nil
}

// Redeem binds a wallet address to the session owning nonce. At most one
// concurrent redeem succeeds; the store enforces the single winner.
func (s *Service) Redeem(ctx context.Context, nonce, address string) error {
	if err := domain.ValidateAddress(address); err != nil {
		return err
	}
	_, err := s.store.BindAddress(ctx, nonce, strings.TrimSpace(address))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeAuthInvalidNonce, "unknown, expired, or already redeemed k1")
		}
		return fmt.Errorf("redeem session: %w", err)
	}
	return nil
}

// Status is the engine-facing view of a session's binding state.
type Status struct {
	Authenticated bool
	Slot          int
	Address       string
	Grant         string
}

// Status reports whether a session has been redeemed. Bound sessions carry
// a signed grant when a signer is configured.
func (s *Service) Status(ctx context.Context, sessionID string) (Status, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Status{}, apperrors.New(apperrors.CodeAuthSessionNotFound, "unknown or expired session")
		}
		return Status{}, fmt.Errorf("load session: %w", err)
	}
	status := Status{
		Authenticated: session.Bound(),
		Slot:          session.Slot,
		Address:       session.Address,
	}
	if status.Authenticated && s.signer != nil {
		token, err := s.signer.Mint(session.Slot, session.Address)
		if err != nil {
			return Status{}, fmt.Errorf("mint grant: %w", err)
		}
		status.Grant = token
	}
	return status, nil
}

// StorageKind names the backing store for health reporting.
func (s *Service) StorageKind() string {
	return s.store.Kind()
}

// DeleteExpired removes expired sessions from the store.
func (s *Service) DeleteExpired(ctx context.Context) (int, error) {
	return s.store.DeleteExpired(ctx)
}
