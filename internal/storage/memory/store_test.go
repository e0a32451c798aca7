package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mandelmonkey/goldenpie/internal/storage"
)

func newSession(id, nonce string, expiresAt time.Time) storage.Session {
	return storage.Session{
		ID:        id,
		Nonce:     nonce,
		Slot:      1,
		CreatedAt: expiresAt.Add(-time.Hour),
		ExpiresAt: expiresAt,
	}
}

func TestPutAndGetSession(t *testing.T) {
	store := New()
	ctx := context.Background()

	session := newSession("s1", "n1", time.Now().Add(time.Hour))
	if err := store.PutSession(ctx, session); err != nil {
		t.Fatalf("put session: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Nonce != "n1" || got.Slot != 1 {
		t.Fatalf("unexpected session %+v", got)
	}

	if _, err := store.GetSessionByNonce(ctx, "n1"); err != nil {
		t.Fatalf("get session by nonce: %v", err)
	}
	if _, err := store.GetSessionByNonce(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiredSessionIsInvisible(t *testing.T) {
	store := New()
	now := time.Unix(10_000, 0)
	store.clock = func() time.Time { return now }
	ctx := context.Background()

	if err := store.PutSession(ctx, newSession("s1", "n1", now.Add(time.Minute))); err != nil {
		t.Fatalf("put session: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.GetSession(ctx, "s1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
	if _, err := store.BindAddress(ctx, "n1", "alice@wallet.example"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound binding expired nonce, got %v", err)
	}
}

func TestBindAddressRetiresNonce(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.PutSession(ctx, newSession("s1", "n1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("put session: %v", err)
	}

	bound, err := store.BindAddress(ctx, "n1", "alice@wallet.example")
	if err != nil {
		t.Fatalf("bind address: %v", err)
	}
	if bound.Address != "alice@wallet.example" || !bound.Bound() {
		t.Fatalf("unexpected bound session %+v", bound)
	}

	if _, err := store.BindAddress(ctx, "n1", "mallory@wallet.example"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected second redeem to fail, got %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session after bind: %v", err)
	}
	if got.Address != "alice@wallet.example" {
		t.Fatalf("binding must not be overwritten, got %q", got.Address)
	}
}

func TestBindAddressSingleWinnerUnderContention(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.PutSession(ctx, newSession("s1", "n1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("put session: %v", err)
	}

	const attempts = 32
	var wins sync.Map
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if _, err := store.BindAddress(ctx, "n1", "wallet@example.com"); err == nil {
				wins.Store(i, struct{}{})
			}
		}(i)
	}
	close(start)
	wg.Wait()

	count := 0
	wins.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("expected exactly one winner, got %d", count)
	}
}

func TestDeleteExpired(t *testing.T) {
	store := New()
	now := time.Unix(10_000, 0)
	store.clock = func() time.Time { return now }
	ctx := context.Background()

	if err := store.PutSession(ctx, newSession("old", "n-old", now.Add(time.Minute))); err != nil {
		t.Fatalf("put session: %v", err)
	}
	if err := store.PutSession(ctx, newSession("fresh", "n-fresh", now.Add(time.Hour))); err != nil {
		t.Fatalf("put session: %v", err)
	}

	now = now.Add(10 * time.Minute)
	removed, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := store.GetSession(ctx, "fresh"); err != nil {
		t.Fatalf("fresh session must survive: %v", err)
	}
	if _, err := store.GetSessionByNonce(ctx, "n-old"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected stale nonce index gone, got %v", err)
	}
}
