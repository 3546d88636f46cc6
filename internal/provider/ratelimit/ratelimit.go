// Package ratelimit throttles outbound provider calls and inbound API
// keys.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"pairprice/internal/provider"
)

// MinInterval wraps an adapter and enforces a minimum time between calls.
// Concurrent calls wait until the interval has elapsed since the last call,
// or return early if the context is canceled.
type MinInterval struct {
	A        provider.Adapter
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Name() string { return m.A.Name() }

func (m *MinInterval) FetchQuotes(ctx context.Context, assets []provider.Asset) (map[string]provider.Quote, error) {
	if m.Interval > 0 {
		m.mu.Lock()
		wait := time.Until(m.last.Add(m.Interval))
		m.mu.Unlock()
		if wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
	qs, err := m.A.FetchQuotes(ctx, assets)
	if m.Interval > 0 {
		m.mu.Lock()
		m.last = time.Now()
		m.mu.Unlock()
	}
	return qs, err
}

// Keyed holds one fixed-window counter per key. It limits API callers,
// so it never blocks: callers over budget are told to go away.
type Keyed struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewKeyed allows max calls per key in each window. A max of zero or less
// disables limiting.
func NewKeyed(win time.Duration, max int) *Keyed {
	if win <= 0 {
		win = time.Minute
	}
	return &Keyed{window: win, max: max, now: time.Now, windows: make(map[string]*window)}
}

// Allow records a call for key and reports whether it is within budget.
func (k *Keyed) Allow(key string) bool {
	if k.max <= 0 {
		return true
	}
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	w, ok := k.windows[key]
	if !ok || now.Sub(w.start) >= k.window {
		k.windows[key] = &window{start: now, count: 1}
		k.sweep(now)
		return true
	}
	if w.count >= k.max {
		return false
	}
	w.count++
	return true
}

// sweep drops windows that have expired. Called with mu held.
func (k *Keyed) sweep(now time.Time) {
	for key, w := range k.windows {
		if now.Sub(w.start) >= k.window {
			delete(k.windows, key)
		}
	}
}
