// Agent Relay - streaming bridge between a browser chat client and a remote
// conversational-agent endpoint.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/agent-relay/internal/api"
	"github.com/ashureev/agent-relay/internal/config"
	"github.com/ashureev/agent-relay/internal/identity"
	"github.com/ashureev/agent-relay/internal/middleware"
	"github.com/ashureev/agent-relay/internal/relay"
	"github.com/ashureev/agent-relay/internal/session"
	"github.com/ashureev/agent-relay/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"agent_url", cfg.Agent.URL,
		"agent_flavor", cfg.Agent.Flavor,
		"dev", cfg.IsDevelopment(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the session store: SQLite when a path is configured so
	// suspended turns survive restarts, in-memory otherwise.
	var sessions session.Store
	if cfg.DBPath != "" {
		sqlStore, err := session.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		if err := sqlStore.Ping(ctx); err != nil {
			slog.Error("Database health check failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Database connected", "path", cfg.DBPath)
		sessions = sqlStore
	} else {
		sessions = session.NewMemoryStore()
		slog.Info("Using in-memory session store")
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	// The Agent Engine flavor authenticates with ambient cloud credentials;
	// the local ADK flavor sends no token.
	var tokens oauth2.TokenSource
	if cfg.Agent.Flavor == "agentengine" {
		tokens, err = google.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			slog.Error("Failed to initialize cloud credentials", "error", err)
			os.Exit(1)
		}
	}

	client := relay.NewClient(relay.ClientConfig{
		BaseURL: cfg.Agent.URL,
		Flavor:  relay.Flavor(cfg.Agent.Flavor),
		UserID:  cfg.Agent.UserID,
		AppName: cfg.Agent.AppName,
		Timeout: cfg.Agent.Timeout,
		Tokens:  tokens,
	})
	orchestrator := relay.NewOrchestrator(client, sessions, cfg.Agent.RedirectURL)
	handler := api.NewHandler(sessions, orchestrator, client, api.GcloudLister{}, cfg)

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		// The session cookie only travels to exact origins, so a configured
		// frontend must be listed explicitly.
		allowedOrigins = []string{cfg.FrontendURL, "*"}
	}
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	handler.RegisterRoutes(r)

	// Serve embedded frontend.
	r.Handle("/*", web.Handler())

	// Upstream turns can legitimately hold the response open for tens of
	// seconds, so the write timeout stays above the agent timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Agent.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	session.StartJanitor(ctx, sessions, cfg.SessionTTL)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
