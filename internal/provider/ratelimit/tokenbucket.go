package ratelimit

import (
	"context"
	"sync"
	"time"

	"pairprice/internal/provider"
)

// TokenBucket is a refilling token bucket.
//   - rate: tokens per second
//   - capacity: maximum tokens the bucket can hold (burst)
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		tokens:   float64(burst), // start full to allow an initial burst
		last:     time.Now(),
	}
}

// PerMinute builds a bucket from a requests-per-minute budget.
func PerMinute(requests, burst int) *TokenBucket {
	return NewTokenBucket(float64(requests)/60, burst)
}

// take refills and tries to consume one token. On failure it reports how
// long until one token is available.
func (tb *TokenBucket) take(now time.Time) (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if elapsed := now.Sub(tb.last).Seconds(); elapsed > 0 {
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.last = now
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	deficit := 1 - tb.tokens
	return false, time.Duration(deficit / tb.rate * float64(time.Second))
}

// Allow consumes a token if one is available without waiting.
func (tb *TokenBucket) Allow() bool {
	ok, _ := tb.take(time.Now())
	return ok
}

// Wait blocks until one token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		ok, wait := tb.take(time.Now())
		if ok {
			return nil
		}
		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TokenBucketAdapter gates an adapter's upstream calls with a token bucket.
type TokenBucketAdapter struct {
	A  provider.Adapter
	TB *TokenBucket
}

func (t *TokenBucketAdapter) Name() string { return t.A.Name() }

func (t *TokenBucketAdapter) FetchQuotes(ctx context.Context, assets []provider.Asset) (map[string]provider.Quote, error) {
	if t.TB != nil {
		if err := t.TB.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return t.A.FetchQuotes(ctx, assets)
}
