package store

import (
	"context"
	"log/slog"
	"time"
)

// SweepInterval is how often StartSweeper runs.
const SweepInterval = 5 * time.Minute

// StartSweeper runs a background goroutine that periodically releases sessions
// stuck in generating and removes expired idle sessions. The first sweep runs
// immediately so generations orphaned by a restart are released at startup.
func StartSweeper(ctx context.Context, repo Repository, interval, staleAfter, sessionTTL time.Duration) {
	if interval <= 0 {
		interval = SweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "stale_after", staleAfter, "session_ttl", sessionTTL)

		sweep(ctx, repo, staleAfter, sessionTTL)
		for {
			select {
			case <-ticker.C:
				sweep(ctx, repo, staleAfter, sessionTTL)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, repo Repository, staleAfter, sessionTTL time.Duration) {
	if staleAfter > 0 {
		if n, err := repo.ResetStaleGenerations(ctx, staleAfter); err != nil {
			slog.Error("Sweeper failed to reset stale generations", "error", err)
		} else if n > 0 {
			slog.Info("Sweeper reset stale generations", "count", n)
		}
	}

	if sessionTTL > 0 {
		if n, err := repo.CleanupExpiredSessions(ctx, sessionTTL); err != nil {
			slog.Error("Sweeper failed to cleanup expired sessions", "error", err)
		} else if n > 0 {
			slog.Info("Sweeper removed expired sessions", "count", n)
		}
	}
}
