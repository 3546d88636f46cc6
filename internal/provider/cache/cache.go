// Package cache puts a short-lived, size-bounded per-asset cache in front
// of a provider adapter.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/marstr/collection/v2"

	"pairprice/internal/provider"
)

const DefaultMaxItems = 1024

type entry struct {
	expiresAt time.Time
	quote     provider.Quote
}

// Adapter caches quotes per asset for TTL. It requests only missing assets
// from the underlying adapter and combines cached and fresh results.
type Adapter struct {
	A   provider.Adapter
	TTL time.Duration

	mu    sync.Mutex
	items *collection.LRUCache[string, entry]
	now   func() time.Time
}

// New returns a caching adapter holding at most maxItems assets, least
// recently used first out.
func New(a provider.Adapter, ttl time.Duration, maxItems int) *Adapter {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Adapter{
		A:     a,
		TTL:   ttl,
		items: collection.NewLRUCache[string, entry](uint(maxItems)),
		now:   time.Now,
	}
}

func (c *Adapter) Name() string { return c.A.Name() }

func (c *Adapter) FetchQuotes(ctx context.Context, assets []provider.Asset) (map[string]provider.Quote, error) {
	if c.TTL <= 0 || c.items == nil {
		return c.A.FetchQuotes(ctx, assets)
	}

	now := c.now()
	out := make(map[string]provider.Quote, len(assets))
	missing := make([]provider.Asset, 0, len(assets))
	seen := make(map[string]struct{}, len(assets))

	c.mu.Lock()
	for _, a := range assets {
		id := a.ID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if e, ok := c.items.Get(id); ok && now.Before(e.expiresAt) {
			out[id] = e.quote
			continue
		}
		missing = append(missing, a)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.A.FetchQuotes(ctx, missing)
	if err != nil {
		// some cached data beats none
		if len(out) > 0 {
			return out, nil
		}
		return nil, err
	}

	expiry := now.Add(c.TTL)
	c.mu.Lock()
	for id, q := range fresh {
		c.items.Put(id, entry{expiresAt: expiry, quote: q})
		out[id] = q
	}
	c.mu.Unlock()
	return out, nil
}
