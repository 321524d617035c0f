package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func closeLimiter(t *testing.T, m *MemoryLimiter) {
	t.Helper()
	if err := m.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

// withClock pins the limiter to a controllable clock.
func withClock(m *MemoryLimiter, at *time.Time) *MemoryLimiter {
	m.now = func() time.Time { return *at }
	return m
}

func TestMemoryLimiterAllowUpToQuota(t *testing.T) {
	m := NewMemoryLimiter(map[string]int{"create-card": 5})
	defer closeLimiter(t, m)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d, err := m.Check(ctx, "u1", "create-card")
		if err != nil {
			t.Fatalf("Check error on request %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed (within quota)", i)
		}
		if want := 5 - i - 1; d.Remaining != want {
			t.Fatalf("request %d: remaining = %d, want %d", i, d.Remaining, want)
		}
	}
}

func TestMemoryLimiterDenyAtQuotaPlusOne(t *testing.T) {
	m := NewMemoryLimiter(map[string]int{"create-board": 3})
	defer closeLimiter(t, m)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, _ := m.Check(ctx, "u1", "create-board")
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	d, err := m.Check(ctx, "u1", "create-board")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if d.Allowed {
		t.Fatal("request quota+1 should be denied")
	}
	if d.Remaining != 0 {
		t.Fatalf("denied decision remaining = %d, want 0", d.Remaining)
	}
	if d.ResetIn <= 0 || d.ResetIn > Window {
		t.Fatalf("ResetIn = %v, want within (0, %v]", d.ResetIn, Window)
	}
}

func TestMemoryLimiterAllowsAgainAfterWindow(t *testing.T) {
	at := time.Now()
	m := withClock(NewMemoryLimiter(map[string]int{"delete-card": 2}), &at)
	defer closeLimiter(t, m)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		m.Check(ctx, "u1", "delete-card") //nolint:errcheck
	}
	if d, _ := m.Check(ctx, "u1", "delete-card"); d.Allowed {
		t.Fatal("should be denied at quota")
	}

	// Advance past the window; the old stamps expire.
	at = at.Add(Window + time.Second)
	d, err := m.Check(ctx, "u1", "delete-card")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("should be allowed again after the window passes")
	}
}

func TestMemoryLimiterIndependentPairs(t *testing.T) {
	m := NewMemoryLimiter(map[string]int{"create-board": 1, "create-card": 1})
	defer closeLimiter(t, m)

	ctx := context.Background()
	if d, _ := m.Check(ctx, "u1", "create-board"); !d.Allowed {
		t.Fatal("u1 create-board should be allowed")
	}
	if d, _ := m.Check(ctx, "u1", "create-board"); d.Allowed {
		t.Fatal("u1 create-board second call should be denied")
	}

	// Same user, different action: independent window.
	if d, _ := m.Check(ctx, "u1", "create-card"); !d.Allowed {
		t.Fatal("u1 create-card should not be penalised by create-board")
	}
	// Different user, same action: independent window.
	if d, _ := m.Check(ctx, "u2", "create-board"); !d.Allowed {
		t.Fatal("u2 create-board should not be penalised by u1")
	}
}

func TestMemoryLimiterUnknownActionUsesDefault(t *testing.T) {
	m := NewMemoryLimiter(map[string]int{})
	defer closeLimiter(t, m)

	d, err := m.Check(context.Background(), "u1", "no-such-action")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("unknown action should fall back to the default quota, not deny")
	}
	if d.Remaining != DefaultQuota-1 {
		t.Fatalf("remaining = %d, want %d", d.Remaining, DefaultQuota-1)
	}
}

func TestMemoryLimiterConcurrentExactAdmission(t *testing.T) {
	const quota = 50
	m := NewMemoryLimiter(map[string]int{"update-card": quota})
	defer closeLimiter(t, m)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < quota*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := m.Check(context.Background(), "u1", "update-card")
			if err != nil {
				t.Errorf("Check error: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != quota {
		t.Fatalf("allowed %d requests concurrently, want exactly %d", allowed, quota)
	}
}

func TestMemoryLimiterEvictStale(t *testing.T) {
	at := time.Now()
	m := withClock(NewMemoryLimiter(nil), &at)
	defer closeLimiter(t, m)

	m.Check(context.Background(), "u1", "create-card") //nolint:errcheck
	at = at.Add(staleThreshold + time.Minute)
	m.evictStale()

	m.mu.Lock()
	n := len(m.windows)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected stale windows to be evicted, %d remain", n)
	}
}
