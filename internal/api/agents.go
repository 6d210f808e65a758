package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
)

// AgentLister lists the reasoning engines deployed in the operator's cloud
// project. It is an external collaborator: the default implementation shells
// out to the gcloud CLI, which must be installed and authenticated.
type AgentLister interface {
	ListAgents(ctx context.Context) ([]map[string]any, error)
}

// GcloudLister lists agents via `gcloud alpha reasoning-engines list`.
type GcloudLister struct{}

// ListAgents runs the gcloud CLI and parses its JSON output.
func (GcloudLister) ListAgents(ctx context.Context) ([]map[string]any, error) {
	cmd := exec.CommandContext(ctx, "gcloud", "alpha", "reasoning-engines", "list", "--format=json")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run gcloud: %w", err)
	}

	var agents []map[string]any
	if err := json.Unmarshal(out, &agents); err != nil {
		return nil, fmt.Errorf("parse gcloud output: %w", err)
	}
	return agents, nil
}

// HandleListAgents handles GET /list-agents requests.
func (h *Handler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.ListAgents(r.Context())
	if err != nil {
		slog.Error("Failed to list agents", "error", err)
		Error(w, http.StatusInternalServerError,
			"failed to list agents; make sure the gcloud CLI is installed and authenticated")
		return
	}
	JSON(w, http.StatusOK, agents)
}
