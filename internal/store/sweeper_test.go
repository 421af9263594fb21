package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/reelbot/internal/domain"
)

type countingRepo struct {
	Repository
	mu       sync.Mutex
	resets   int
	cleanups int
	stale    time.Duration
	ttl      time.Duration
}

func (c *countingRepo) ResetStaleGenerations(_ context.Context, olderThan time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	c.stale = olderThan
	return 1, nil
}

func (c *countingRepo) CleanupExpiredSessions(_ context.Context, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups++
	c.ttl = ttl
	return 0, nil
}

func (c *countingRepo) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets, c.cleanups
}

func TestSweeperRunsImmediatelyAndOnTick(t *testing.T) {
	repo := &countingRepo{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartSweeper(ctx, repo, 10*time.Millisecond, time.Minute, time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for {
		resets, cleanups := repo.counts()
		if resets >= 2 && cleanups >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweeper ran %d/%d times, want at least 2", resets, cleanups)
		}
		time.Sleep(5 * time.Millisecond)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.stale != time.Minute || repo.ttl != time.Hour {
		t.Fatalf("sweeper passed stale=%v ttl=%v", repo.stale, repo.ttl)
	}
}

func TestSweepSkipsDisabledSteps(t *testing.T) {
	repo := &countingRepo{}
	sweep(context.Background(), repo, 0, 0)
	if resets, cleanups := repo.counts(); resets != 0 || cleanups != 0 {
		t.Fatalf("expected no calls, got %d/%d", resets, cleanups)
	}
}

func TestSweepReleasesSQLiteSession(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	old := time.Now().Add(-2 * time.Hour)
	if err := repo.SaveSession(ctx, sampleSession("stuck", domain.StateGenerating, old)); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	sweep(ctx, repo, time.Hour, 0)

	got, err := repo.GetSession(ctx, "stuck")
	if err != nil || got == nil {
		t.Fatalf("GetSession: %v %v", got, err)
	}
	if got.State != domain.StateIdle || got.ActiveGenerationID != "" {
		t.Fatalf("expected idle session, got %+v", got)
	}
}

func TestSweepKeepsIdleSessionsWithStylesAndHistory(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	old := time.Now().Add(-8 * 24 * time.Hour)
	if err := repo.SaveSession(ctx, sampleSession("stylist", domain.StateIdle, old)); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := repo.SaveSession(ctx, domain.NewUserSession("drifter", old)); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	sweep(ctx, repo, 30*time.Minute, 7*24*time.Hour)

	got, err := repo.GetSession(ctx, "stylist")
	if err != nil || got == nil {
		t.Fatalf("GetSession: %v %v", got, err)
	}
	if got.CustomStyles["noir"] != "black and white," || len(got.History) != 1 {
		t.Fatalf("styles or history lost: %+v", got)
	}
	if got, _ := repo.GetSession(ctx, "drifter"); got != nil {
		t.Fatalf("expected empty session to expire, got %+v", got)
	}
}
