package api

import (
	"testing"
	"time"
)

func TestRateLimiterEnforcesLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	if !rl.Allow("sess-1") || !rl.Allow("sess-1") {
		t.Fatal("turns within the limit were rejected")
	}
	if rl.Allow("sess-1") {
		t.Error("turn over the limit was allowed")
	}
	// Another session has its own budget.
	if !rl.Allow("sess-2") {
		t.Error("unrelated session was throttled")
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(1, 30*time.Millisecond)

	if !rl.Allow("sess-1") {
		t.Fatal("first turn rejected")
	}
	if rl.Allow("sess-1") {
		t.Fatal("second turn inside the window was allowed")
	}

	time.Sleep(40 * time.Millisecond)
	if !rl.Allow("sess-1") {
		t.Error("turn after the window elapsed was rejected")
	}
}

func TestPruneDropsExpiredPrefix(t *testing.T) {
	now := time.Now()
	times := []time.Time{
		now.Add(-3 * time.Minute),
		now.Add(-2 * time.Minute),
		now.Add(-time.Second),
		now,
	}
	kept := prune(times, now.Add(-time.Minute))
	if len(kept) != 2 {
		t.Fatalf("kept %d timestamps, want 2", len(kept))
	}
	if !kept[0].Equal(times[2]) || !kept[1].Equal(times[3]) {
		t.Errorf("kept the wrong timestamps: %v", kept)
	}
}
