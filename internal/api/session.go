package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/agent-relay/internal/identity"
)

// HandleGetSession handles GET /session requests. It reports the remote
// conversation id for the caller's browser session, or null when no
// conversation has been created yet.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	var conversationID any
	if sess != nil && sess.ConversationID != "" {
		conversationID = sess.ConversationID
	}
	JSON(w, http.StatusOK, map[string]any{"session_id": conversationID})
}

// HandleCreateSession handles POST /session requests. Creation is idempotent:
// once a remote conversation exists for the browser session, later calls
// return the same id without touching the agent endpoint.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	unlock := h.sessions.LockSession(sessionID)
	defer unlock()

	sess, err := h.sessions.CreateOrGet(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to create session record", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	if sess.ConversationID != "" {
		JSON(w, http.StatusOK, map[string]string{"session_id": sess.ConversationID})
		return
	}

	conversationID, err := h.convos.CreateConversation(r.Context())
	if err != nil {
		slog.Error("Failed to create remote conversation", "session_id", sessionID, "error", err)
		Error(w, http.StatusBadGateway, "failed to create session with the agent")
		return
	}
	if err := h.sessions.SetConversationID(r.Context(), sessionID, conversationID); err != nil {
		slog.Error("Failed to store conversation id", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to store session")
		return
	}

	slog.Info("Created remote conversation", "session_id", sessionID, "conversation_id", conversationID)
	JSON(w, http.StatusOK, map[string]string{"session_id": conversationID})
}

// HandleDeleteSession handles DELETE /session requests, clearing the session
// and any pending auth.
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	unlock := h.sessions.LockSession(sessionID)
	defer unlock()

	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		slog.Error("Failed to delete session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
