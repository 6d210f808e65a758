package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AGENT_URL", "https://agent.example/engines/agent-1/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Agent.URL != "https://agent.example/engines/agent-1" {
		t.Errorf("Agent.URL = %q, trailing slash should be trimmed", cfg.Agent.URL)
	}
	if cfg.Agent.Flavor != "agentengine" {
		t.Errorf("Agent.Flavor = %q", cfg.Agent.Flavor)
	}
	if cfg.Agent.UserID == "" {
		t.Error("Agent.UserID default missing")
	}
	if cfg.Agent.Timeout != 60*time.Second {
		t.Errorf("Agent.Timeout = %v", cfg.Agent.Timeout)
	}
	if cfg.Agent.RedirectURL != "http://127.0.0.1:8080/oauth_callback" {
		t.Errorf("Agent.RedirectURL = %q", cfg.Agent.RedirectURL)
	}
	if cfg.SessionTTL != 60*time.Minute {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.RateLimit.RequestsPerWindow != 10 || cfg.RateLimit.WindowDuration != time.Minute {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.DBPath != "" {
		t.Errorf("DBPath = %q, want in-memory default", cfg.DBPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENT_URL", "http://localhost:8000")
	t.Setenv("AGENT_FLAVOR", "adk")
	t.Setenv("AGENT_APP_NAME", "calendar-agent")
	t.Setenv("AGENT_TIMEOUT", "2m")
	t.Setenv("PORT", "9090")
	t.Setenv("OAUTH_REDIRECT_URL", "https://relay.example/oauth_callback")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("DB_PATH", "/var/lib/relay/sessions.db")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Flavor != "adk" || cfg.Agent.AppName != "calendar-agent" {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if cfg.Agent.Timeout != 2*time.Minute {
		t.Errorf("Agent.Timeout = %v", cfg.Agent.Timeout)
	}
	if cfg.Agent.RedirectURL != "https://relay.example/oauth_callback" {
		t.Errorf("Agent.RedirectURL = %q", cfg.Agent.RedirectURL)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.DBPath != "/var/lib/relay/sessions.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.RateLimit.RequestsPerWindow != 5 {
		t.Errorf("RequestsPerWindow = %d", cfg.RateLimit.RequestsPerWindow)
	}
}

func TestLoadRequiresAgentURL(t *testing.T) {
	t.Setenv("AGENT_URL", "")
	if _, err := Load(); err == nil {
		t.Error("Load succeeded without AGENT_URL")
	}
}

func TestLoadRejectsUnknownFlavor(t *testing.T) {
	t.Setenv("AGENT_URL", "https://agent.example")
	t.Setenv("AGENT_FLAVOR", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Error("Load accepted an unknown flavor")
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:5173", true},
		{"https://relay.example", false},
	}
	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.frontendURL}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.frontendURL, got, tt.want)
		}
	}
}
