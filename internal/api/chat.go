package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/agent-relay/internal/identity"
	"github.com/ashureev/agent-relay/internal/relay"
	"github.com/ashureev/agent-relay/internal/stream"
)

// ChatRequest is the body of POST /chat. Exactly one of Message or AuthCode
// must be set: a message starts a fresh turn, an auth code resumes the
// suspended one.
type ChatRequest struct {
	Message  string `json:"message,omitempty"`
	AuthCode string `json:"auth_code,omitempty"`
	State    string `json:"state,omitempty"`
}

// HandleChat handles POST /chat requests.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.rateLimiter.Allow(sessionID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Message != "":
		h.startTurn(w, r, sessionID, req.Message)
	case req.AuthCode != "":
		h.resumeTurn(w, r, sessionID, req.AuthCode, req.State)
	default:
		Error(w, http.StatusBadRequest, `request must contain either "message" or "auth_code"`)
	}
}

func (h *Handler) startTurn(w http.ResponseWriter, r *http.Request, sessionID, message string) {
	slog.Info("Chat turn started", "session_id", sessionID, "message_length", len(message))

	result, err := h.turns.StartTurn(r.Context(), sessionID, message)
	if err != nil {
		writeTurnError(w, sessionID, err)
		return
	}

	if result.AuthorizationURL != "" {
		JSON(w, http.StatusOK, map[string]string{"authorization_url": result.AuthorizationURL})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"response": result.Text})
}

func (h *Handler) resumeTurn(w http.ResponseWriter, r *http.Request, sessionID, code, state string) {
	slog.Info("Chat turn resumed", "session_id", sessionID)

	result, err := h.turns.ResumeTurn(r.Context(), sessionID, code, state)
	if err != nil {
		writeTurnError(w, sessionID, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"response": result.Text})
}

// writeTurnError maps orchestrator failures onto the caller-facing contract.
// Sequencing mistakes are client-correctable 4xx; upstream failures are 502
// with a short message that never includes the raw upstream error body.
func writeTurnError(w http.ResponseWriter, sessionID string, err error) {
	var terr *relay.TransportError
	switch {
	case errors.Is(err, relay.ErrNoSession):
		Error(w, http.StatusBadRequest, "no active session, create a session first")
	case errors.Is(err, relay.ErrNoPendingAuth):
		Error(w, http.StatusBadRequest, "no pending authorization for this session")
	case errors.Is(err, relay.ErrDoubleAuthRequired):
		slog.Error("Agent re-requested credentials during resume", "session_id", sessionID)
		Error(w, http.StatusBadGateway, "agent re-requested authorization unexpectedly")
	case errors.Is(err, stream.ErrTruncated):
		slog.Error("Agent stream truncated", "session_id", sessionID, "error", err)
		Error(w, http.StatusBadGateway, "agent response stream ended unexpectedly")
	case errors.As(err, &terr):
		slog.Error("Agent request failed", "session_id", sessionID, "error", err)
		Error(w, http.StatusBadGateway, "failed to reach the agent")
	default:
		slog.Error("Chat turn failed", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
