package engine

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/mandelmonkey/goldenpie/internal/auth/client"
	apperrors "github.com/mandelmonkey/goldenpie/internal/errors"
	"github.com/mandelmonkey/goldenpie/internal/push"
	"github.com/mandelmonkey/goldenpie/internal/retroarch"
)

// loginWait bounds how long a login waits for a wallet before giving up.
const loginWait = time.Hour

// API is the local HTTP surface the launcher UI drives the engine with.
type API struct {
	engine *Engine
	auth   *client.Client
	ws     http.Handler
}

// NewAPI builds the engine API. auth and ws are optional; without an auth
// client the login endpoint reports the feature unconfigured, and without a
// websocket handler /ws is not registered.
func NewAPI(engine *Engine, auth *client.Client, ws http.Handler) *API {
	return &API{engine: engine, auth: auth, ws: ws}
}

// RegisterRoutes registers the engine endpoints on the provided mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("POST /sessions/start", a.handleStart)
	mux.HandleFunc("POST /sessions/stop", a.handleStop)
	mux.HandleFunc("POST /auth/login", a.handleLogin)
	mux.HandleFunc("GET /errors", a.handleErrors)
	mux.HandleFunc("POST /errors/clear", a.handleErrorsClear)
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	if a.ws != nil {
		mux.Handle("GET /ws", a.ws)
	}
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	a.engine.Start(context.Background())
	writeJSON(w, http.StatusOK, map[string]any{"running": true})
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	a.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

type loginRequest struct {
	SlotNumber int `json:"slotNumber"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if a.auth == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "ERROR",
			"reason": "auth service is not configured",
		})
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "ERROR",
			"reason": "invalid request body",
		})
		return
	}
	if req.SlotNumber < 1 || req.SlotNumber > retroarch.SlotCount {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "ERROR",
			"reason": "slot must be between 1 and " + strconv.Itoa(retroarch.SlotCount),
		})
		return
	}

	ref, err := a.auth.CreateSession(r.Context(), req.SlotNumber)
	if err != nil {
		log.Printf("login for slot %d failed: %v", req.SlotNumber, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status": "ERROR",
			"reason": "auth service unavailable",
		})
		return
	}

	go a.watchBinding(req.SlotNumber, ref.SessionID)

	writeJSON(w, http.StatusOK, ref)
}

// watchBinding polls the auth service until the wallet answers, then binds
// the address as the slot's payment recipient.
func (a *API) watchBinding(slot int, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), loginWait)
	defer cancel()

	status, err := a.auth.AwaitBinding(ctx, sessionID, client.DefaultPollInterval)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeAuthInvalidGrant {
			log.Printf("slot %d login rejected: %v", slot, err)
		}
		return
	}
	a.engine.SetRecipient(slot, status.Address)
	log.Printf("slot %d bound to %s", slot, status.Address)
	a.engine.publisher.Publish(push.Event{Type: push.TypeAuth, Payload: map[string]any{
		"slot":    slot,
		"address": status.Address,
	}})
}

func (a *API) handleErrors(w http.ResponseWriter, r *http.Request) {
	errorLog := a.engine.Errors()
	if raw := r.URL.Query().Get("slot"); raw != "" {
		slot, err := strconv.Atoi(raw)
		if err != nil || slot < 1 || slot > retroarch.SlotCount {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"status": "ERROR",
				"reason": "invalid slot",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"errors": errorLog.List(slot)})
		return
	}
	all := make(map[string][]PaymentError, retroarch.SlotCount)
	for slot := 1; slot <= retroarch.SlotCount; slot++ {
		all[strconv.Itoa(slot)] = errorLog.List(slot)
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": all})
}

type clearErrorsRequest struct {
	SlotNumber int `json:"slotNumber"`
}

func (a *API) handleErrorsClear(w http.ResponseWriter, r *http.Request) {
	var req clearErrorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "ERROR",
			"reason": "invalid request body",
		})
		return
	}
	errorLog := a.engine.Errors()
	if req.SlotNumber == 0 {
		for slot := 1; slot <= retroarch.SlotCount; slot++ {
			errorLog.Clear(slot)
		}
	} else {
		errorLog.Clear(req.SlotNumber)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": a.engine.Running(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
