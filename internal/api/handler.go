// Package api provides HTTP handlers for the relay API.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ashureev/agent-relay/internal/config"
	"github.com/ashureev/agent-relay/internal/relay"
	"github.com/ashureev/agent-relay/internal/session"
	"github.com/go-chi/chi/v5"
)

// maxRequestBodySize is the maximum allowed chat request body size (1MB).
const maxRequestBodySize = 1 << 20

// TurnRunner drives one logical chat turn against the agent endpoint.
// Implemented by relay.Orchestrator.
type TurnRunner interface {
	StartTurn(ctx context.Context, sessionID, message string) (*relay.TurnResult, error)
	ResumeTurn(ctx context.Context, sessionID, code, state string) (*relay.TurnResult, error)
}

// ConversationCreator creates a remote conversation on the agent endpoint.
// Implemented by relay.Client.
type ConversationCreator interface {
	CreateConversation(ctx context.Context) (string, error)
}

// Handler handles relay HTTP requests.
type Handler struct {
	sessions    session.Store
	turns       TurnRunner
	convos      ConversationCreator
	agents      AgentLister
	agentURL    string
	rateLimiter *RateLimiter
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(sessions session.Store, turns TurnRunner, convos ConversationCreator, agents AgentLister, cfg *config.Config) *Handler {
	return &Handler{
		sessions:    sessions,
		turns:       turns,
		convos:      convos,
		agents:      agents,
		agentURL:    cfg.Agent.URL,
		rateLimiter: NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
	}
}

// RegisterRoutes registers all relay routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.HandleGetSession)
		r.Post("/", h.HandleCreateSession)
		r.Delete("/", h.HandleDeleteSession)
	})
	r.Post("/chat", h.HandleChat)
	r.Get("/oauth_callback", h.HandleOAuthCallback)
	r.Get("/agent-url", h.HandleAgentURL)
	r.Get("/list-agents", h.HandleListAgents)
}

// HandleAgentURL returns the configured agent endpoint so the frontend knows
// which agent it is talking to.
func (h *Handler) HandleAgentURL(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"agent_url": h.agentURL})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
