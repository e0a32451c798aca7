// Package client is the engine-side consumer of the auth service. It starts
// login sessions and polls status until a wallet binds an address.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mandelmonkey/goldenpie/internal/auth/grant"
	apperrors "github.com/mandelmonkey/goldenpie/internal/errors"
)

// DefaultPollInterval is how often AwaitBinding checks session status.
const DefaultPollInterval = 2 * time.Second

// Client talks to the auth service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	verifier   *grant.Signer
}

// New builds a client for the auth service at baseURL. verifier is optional;
// when set, AwaitBinding rejects status responses whose grant does not check
// out against the shared secret.
func New(baseURL string, verifier *grant.Signer) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		verifier:   verifier,
	}
}

// SessionRef identifies a created login session.
type SessionRef struct {
	SessionID string `json:"sessionId"`
	K1        string `json:"k1"`
	Challenge string `json:"challenge"`
}

// CreateSession starts a login attempt for a player slot.
func (c *Client) CreateSession(ctx context.Context, slot int) (SessionRef, error) {
	body, err := json.Marshal(map[string]int{"slotNumber": slot})
	if err != nil {
		return SessionRef{}, fmt.Errorf("create session: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session", bytes.NewReader(body))
	if err != nil {
		return SessionRef{}, fmt.Errorf("create session: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var ref SessionRef
	if err := c.do(req, &ref); err != nil {
		return SessionRef{}, err
	}
	if ref.SessionID == "" || ref.K1 == "" {
		return SessionRef{}, fmt.Errorf("create session: incomplete response")
	}
	return ref, nil
}

// Status is a session's binding state as reported by the auth service.
type Status struct {
	Authenticated bool   `json:"authenticated"`
	SlotNumber    int    `json:"slotNumber"`
	Address       string `json:"address"`
	Grant         string `json:"grant"`
}

// Status fetches the current binding state of a session.
func (c *Client) Status(ctx context.Context, sessionID string) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+sessionID, nil)
	if err != nil {
		return Status{}, fmt.Errorf("session status: %w", err)
	}
	var status Status
	if err := c.do(req, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// AwaitBinding polls until the session binds or ctx ends. Transient status
// failures are retried on the next tick; an unknown or expired session and a
// failed grant check end the wait. When a verifier is configured, the
// returned status has passed grant verification and the claims matched the
// reported address and slot.
func (c *Client) AwaitBinding(ctx context.Context, sessionID string, interval time.Duration) (Status, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := c.Status(ctx, sessionID)
		switch {
		case err == nil:
			if status.Authenticated {
				if err := c.verify(status); err != nil {
					return Status{}, err
				}
				return status, nil
			}
		case apperrors.CodeOf(err) == apperrors.CodeAuthSessionNotFound:
			return Status{}, err
		default:
			log.Printf("session status check failed, retrying: %v", err)
		}
		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) verify(status Status) error {
	if c.verifier == nil {
		return nil
	}
	claims, err := c.verifier.Verify(status.Grant)
	if err != nil {
		return err
	}
	if claims.Address != status.Address || claims.Slot != status.SlotNumber {
		return apperrors.New(apperrors.CodeAuthInvalidGrant, "grant claims do not match reported binding")
	}
	return nil
}

type errorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var failure errorResponse
		if err := json.Unmarshal(raw, &failure); err == nil && failure.Reason != "" {
			if resp.StatusCode == http.StatusNotFound {
				return apperrors.New(apperrors.CodeAuthSessionNotFound, failure.Reason)
			}
			return fmt.Errorf("auth request failed: %s", failure.Reason)
		}
		return fmt.Errorf("auth request failed with status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	return nil
}
