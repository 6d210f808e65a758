package session

import (
	"context"
	"log/slog"
	"time"
)

// janitorInterval is how often expired sessions are swept.
const janitorInterval = 5 * time.Minute

// StartJanitor runs a background goroutine that periodically removes sessions
// idle longer than ttl. It stops when ctx is canceled.
func StartJanitor(ctx context.Context, store Store, ttl time.Duration) {
	ticker := time.NewTicker(janitorInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session janitor started", "interval", janitorInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				removed, err := store.CleanupExpired(ctx, ttl)
				if err != nil {
					slog.Error("Session janitor sweep failed", "error", err)
					continue
				}
				if removed > 0 {
					slog.Info("Session janitor removed expired sessions", "count", removed)
				}
			case <-ctx.Done():
				slog.Info("Session janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
