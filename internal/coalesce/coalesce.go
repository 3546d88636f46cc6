// Package coalesce deduplicates concurrent computations that share a
// request identifier and keeps their outcome for a short window.
package coalesce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a completed or failed outcome stays visible.
const DefaultTTL = 30 * time.Second

type Status int

const (
	Absent Status = iota
	Pending
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "absent"
	}
}

type entry[T any] struct {
	status    Status
	value     T
	err       error
	createdAt time.Time
}

// Cache runs at most one computation per identifier at a time. Callers
// joining a pending identifier wait for its outcome; callers arriving
// after it settled get the stored outcome until the TTL evicts it.
type Cache[T any] struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*entry[T]

	group singleflight.Group
}

func New[T any](ttl time.Duration) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[T]{ttl: ttl, entries: make(map[string]*entry[T])}
}

// Do returns the outcome for id, computing it with fn when no entry exists.
// A caller whose ctx ends stops waiting; the computation itself keeps
// running and settles the entry for everyone else.
func (c *Cache[T]) Do(ctx context.Context, id string, fn func() (T, error)) (T, error) {
	var zero T
	if e, ok := c.settled(id); ok {
		return e.value, e.err
	}

	ch := c.group.DoChan(id, func() (any, error) {
		// Re-check: an earlier flight may have settled between the lookup
		// above and this flight starting.
		if e, ok := c.settled(id); ok {
			return e.value, e.err
		}
		c.begin(id)
		v, err := run(fn)
		c.settle(id, v, err)
		return v, err
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		v, _ := r.Val.(T)
		return v, nil
	}
}

// Status reports the state of id.
func (c *Cache[T]) Status(id string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		return e.status
	}
	return Absent
}

// Len is the number of live entries, pending ones included.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[T]) settled(id string) (*entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || e.status == Pending {
		return nil, false
	}
	return e, true
}

func (c *Cache[T]) begin(id string) {
	c.mu.Lock()
	c.entries[id] = &entry[T]{status: Pending, createdAt: time.Now()}
	c.mu.Unlock()
}

func (c *Cache[T]) settle(id string, v T, err error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry[T]{createdAt: time.Now()}
		c.entries[id] = e
	}
	e.value, e.err = v, err
	e.status = Completed
	if err != nil {
		e.status = Failed
	}
	c.mu.Unlock()

	time.AfterFunc(c.ttl, func() {
		c.mu.Lock()
		if cur, ok := c.entries[id]; ok && cur == e {
			delete(c.entries, id)
		}
		c.mu.Unlock()
	})
}

func run[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("coalesce: computation panicked: %v", r)
		}
	}()
	return fn()
}
