package grant

import (
	"testing"
	"time"

	apperrors "github.com/mandelmonkey/goldenpie/internal/errors"
)

func TestMintAndVerifyRoundTrip(t *testing.T) {
	signer, err := NewSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	token, err := signer.Mint(2, "alice@wallet.example")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Slot != 2 || claims.Address != "alice@wallet.example" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	minter, err := NewSigner("secret-a", time.Hour)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewSigner("secret-b", time.Hour)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	token, err := minter.Mint(1, "alice@wallet.example")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err = verifier.Verify(token)
	if apperrors.CodeOf(err) != apperrors.CodeAuthInvalidGrant {
		t.Fatalf("expected invalid grant code, got %v", err)
	}
}

func TestVerifyRejectsExpiredGrant(t *testing.T) {
	signer, err := NewSigner("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	now := time.Unix(100_000, 0)
	signer.clock = func() time.Time { return now }

	token, err := signer.Mint(1, "alice@wallet.example")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	now = now.Add(2 * time.Minute)
	_, err = signer.Verify(token)
	if apperrors.CodeOf(err) != apperrors.CodeAuthInvalidGrant {
		t.Fatalf("expected invalid grant code for expired token, got %v", err)
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner("", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
