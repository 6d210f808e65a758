// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string // empty = in-memory session store
	SessionTTL  time.Duration

	Agent     AgentConfig
	RateLimit RateLimitConfig
}

// AgentConfig describes the remote agent endpoint the relay talks to.
type AgentConfig struct {
	URL         string
	Flavor      string // "agentengine" or "adk"
	AppName     string // optional ADK app name; resolved from the endpoint when empty
	UserID      string // remote user identity presented to the endpoint
	Timeout     time.Duration
	RedirectURL string // absolute URL of this relay's /oauth_callback
}

// RateLimitConfig controls per-user chat throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")

	cfg := &Config{
		Port:        port,
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", ""),
		SessionTTL:  getEnvDuration("SESSION_TTL", 60*time.Minute),
		Agent: AgentConfig{
			URL:         strings.TrimRight(getEnv("AGENT_URL", ""), "/"),
			Flavor:      getEnv("AGENT_FLAVOR", "agentengine"),
			AppName:     getEnv("AGENT_APP_NAME", ""),
			UserID:      getEnv("AGENT_USER_ID", "user-from-agent-relay"),
			Timeout:     getEnvDuration("AGENT_TIMEOUT", 60*time.Second),
			RedirectURL: getEnv("OAUTH_REDIRECT_URL", "http://127.0.0.1:"+port+"/oauth_callback"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Agent.URL == "" {
		return fmt.Errorf("AGENT_URL cannot be empty")
	}
	if c.Agent.Flavor != "agentengine" && c.Agent.Flavor != "adk" {
		return fmt.Errorf("AGENT_FLAVOR must be \"agentengine\" or \"adk\", got %q", c.Agent.Flavor)
	}
	if c.Agent.UserID == "" {
		return fmt.Errorf("AGENT_USER_ID cannot be empty")
	}
	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT must be positive")
	}
	if c.Agent.RedirectURL == "" {
		return fmt.Errorf("OAUTH_REDIRECT_URL cannot be empty")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
