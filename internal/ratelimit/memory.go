package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window tracks the request timestamps for one (user, action) pair within
// the sliding window.
type window struct {
	stamps     []time.Time
	lastAccess time.Time
}

// MemoryLimiter implements Limiter with an in-process sliding window per
// (user, action) pair.
//
// Each pair gets an independent window, so a user hammering one action never
// penalises their other actions. A background goroutine evicts stale entries
// to bound memory. State resets on process restart, which is acceptable for
// these quotas.
type MemoryLimiter struct {
	quotas map[string]int

	mu      sync.Mutex
	windows map[string]*window

	now func() time.Time // Injectable clock for tests.

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a sliding-window limiter using the given
// action → requests-per-minute table. A nil table uses DefaultQuotas.
// Call Close to stop the eviction goroutine.
func NewMemoryLimiter(quotas map[string]int) *MemoryLimiter {
	if quotas == nil {
		quotas = DefaultQuotas
	}
	m := &MemoryLimiter{
		quotas:  quotas,
		windows: make(map[string]*window),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Check prunes expired timestamps for the pair, then admits the request if
// the window still has room.
func (m *MemoryLimiter) Check(_ context.Context, userID, action string) (Decision, error) {
	quota, ok := m.quotas[action]
	if !ok {
		quota = DefaultQuota
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	key := userID + ":" + action
	w, ok := m.windows[key]
	if !ok {
		w = &window{}
		m.windows[key] = w
	}
	w.lastAccess = now

	// Drop timestamps that have left the window.
	cutoff := now.Add(-Window)
	keep := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	w.stamps = keep

	if len(w.stamps) >= quota {
		return Decision{
			Allowed:   false,
			Remaining: 0,
			ResetIn:   w.stamps[0].Sub(cutoff),
		}, nil
	}

	w.stamps = append(w.stamps, now)
	d := Decision{
		Allowed:   true,
		Remaining: quota - len(w.stamps),
		ResetIn:   w.stamps[0].Sub(cutoff),
	}
	return d, nil
}

// Close stops the eviction goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

const staleThreshold = 10 * time.Minute

// cleanup periodically evicts windows that haven't been touched recently.
func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-staleThreshold)
	for key, w := range m.windows {
		if w.lastAccess.Before(cutoff) {
			delete(m.windows, key)
		}
	}
}
