// Package app hosts the auth service HTTP surface.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/mandelmonkey/goldenpie/internal/auth/service"
	apperrors "github.com/mandelmonkey/goldenpie/internal/errors"
)

// DefaultCleanupInterval is how often expired sessions are reaped.
const DefaultCleanupInterval = 5 * time.Minute

// Server hosts the LUD-22 session endpoints.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	service    *service.Service
	clock      func() time.Time
}

// New creates a configured auth server listening on addr.
func New(addr string, svc *service.Service) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	server := &Server{
		listener: listener,
		service:  svc,
		clock:    time.Now,
	}
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	server.httpServer = &http.Server{Handler: mux}
	return server, nil
}

// NewHandler returns the routed HTTP handler without binding a listener.
func NewHandler(svc *service.Service) http.Handler {
	server := &Server{service: svc, clock: time.Now}
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	return mux
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// RegisterRoutes registers the session endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("POST /session", s.handleCreateSession)
	mux.HandleFunc("GET /callback", s.handleChallenge)
	mux.HandleFunc("POST /callback", s.handleRedeem)
	mux.HandleFunc("GET /status/{sessionID}", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
}

// StartCleanup starts periodic expiry cleanup for session records.
func (s *Server) StartCleanup(ctx context.Context, interval time.Duration) {
	if s == nil || s.service == nil || interval <= 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.service.DeleteExpired(ctx)
				if err != nil {
					log.Printf("session cleanup: %v", err)
					continue
				}
				if removed > 0 {
					log.Printf("session cleanup removed %d expired sessions", removed)
				}
			}
		}
	}()
}

// Serve starts the auth server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.StartCleanup(serverCtx, DefaultCleanupInterval)

	log.Printf("auth server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

type createSessionRequest struct {
	SlotNumber int `json:"slotNumber"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	K1        string `json:"k1"`
	Challenge string `json:"challenge"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeAuthInvalidSlot, "invalid request body"))
		return
	}
	result, err := s.service.CreateSession(r.Context(), req.SlotNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createSessionResponse{
		SessionID: result.SessionID,
		K1:        result.Nonce,
		Challenge: result.Challenge,
	})
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	challenge, err := s.service.Challenge(r.Context(), query.Get("k1"), query.Get("tag"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, challenge)
}

type redeemRequest struct {
	K1      string `json:"k1"`
	Address string `json:"address"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeAuthInvalidAddress, "invalid request body"))
		return
	}
	if err := s.service.Redeem(r.Context(), req.K1, req.Address); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

type statusResponse struct {
	Authenticated bool   `json:"authenticated"`
	SlotNumber    int    `json:"slotNumber"`
	Address       string `json:"address,omitempty"`
	Grant         string `json:"grant,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Authenticated: status.Authenticated,
		SlotNumber:    status.Slot,
		Address:       status.Address,
		Grant:         status.Grant,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"storage":   s.service.StorageKind(),
		"timestamp": s.clock().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the LUD-22 error shape wallets expect.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	reason := "internal error"
	switch apperrors.CodeOf(err) {
	case apperrors.CodeAuthInvalidSlot, apperrors.CodeAuthInvalidTag,
		apperrors.CodeAuthInvalidAddress, apperrors.CodeAuthInvalidNonce:
		status = http.StatusBadRequest
	case apperrors.CodeAuthSessionNotFound:
		status = http.StatusNotFound
	}
	var structured *apperrors.Error
	if errors.As(err, &structured) {
		reason = structured.Reason
	}
	if status == http.StatusInternalServerError {
		log.Printf("auth request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"status": "ERROR", "reason": reason})
}
