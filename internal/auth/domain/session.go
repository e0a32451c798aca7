// Package domain holds the auth session entities and validation rules.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	apperrors "github.com/mandelmonkey/goldenpie/internal/errors"
	"github.com/mandelmonkey/goldenpie/internal/retroarch"
)

// SessionTag is the LUD-22 tag value this service issues and accepts.
const SessionTag = "addressRequest"

// NewNonce returns a fresh 32-byte challenge secret as lowercase hex.
func NewNonce() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// ValidateSlot checks the player slot is within the supported table.
func ValidateSlot(slot int) error {
	if slot < 1 || slot > retroarch.SlotCount {
		return apperrors.New(apperrors.CodeAuthInvalidSlot,
			fmt.Sprintf("slot must be between 1 and %d", retroarch.SlotCount))
	}
	return nil
}

// ValidateAddress checks the submitted value is a plausible lightning
// address. The wire format is user@domain; anything without both halves is
// rejected before it can reach a payment provider.
func ValidateAddress(address string) error {
	address = strings.TrimSpace(address)
	user, domain, ok := strings.Cut(address, "@")
	if !ok || user == "" || domain == "" {
		return apperrors.New(apperrors.CodeAuthInvalidAddress,
			"address must be a lightning address like user@domain")
	}
	return nil
}

// ValidateTag checks a callback carries the tag this service issued.
func ValidateTag(tag string) error {
	if tag != SessionTag {
		return apperrors.New(apperrors.CodeAuthInvalidTag,
			fmt.Sprintf("unsupported tag %q", tag))
	}
	return nil
}

// Challenge is the LUD-22 payload a wallet fetches before redeeming.
type Challenge struct {
	Tag      string `json:"tag"`
	K1       string `json:"k1"`
	Callback string `json:"callback"`
	Metadata string `json:"metadata"`
}

// ChallengeMetadata renders the human-readable prompt wallets display while
// asking the player to confirm the login.
func ChallengeMetadata(slot int) string {
	return fmt.Sprintf("Login as Player %d - GoldenEye Launcher", slot)
}
