package media

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cached wraps a Resolver and remembers successful resolutions for a while.
// Concurrent lookups of the same reference share one call to the wrapped
// resolver. The shared call is detached from its callers' cancellation and
// bounded by the lookup timeout instead; a caller whose context ends stops
// waiting without failing the others. Failures are not remembered.
type Cached struct {
	next    Resolver
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	group   singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	url     string
	expires time.Time
}

// CacheOption configures a Cached resolver.
type CacheOption func(*Cached)

// WithLookupTimeout bounds each shared call to the wrapped resolver.
// Defaults to DefaultTimeout.
func WithLookupTimeout(d time.Duration) CacheOption {
	return func(c *Cached) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCached returns next wrapped in a cache. A ttl of zero or less disables
// caching but keeps the deduplication of concurrent lookups.
func NewCached(next Resolver, ttl time.Duration, opts ...CacheOption) *Cached {
	c := &Cached{
		next:    next,
		ttl:     ttl,
		timeout: DefaultTimeout,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) Resolve(ctx context.Context, ref string) (string, error) {
	if u, ok := c.lookup(ref); ok {
		return u, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ch := c.group.DoChan(ref, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		u, err := c.next.Resolve(callCtx, ref)
		if err != nil {
			return "", err
		}
		c.store(ref, u)
		return u, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Purge drops every cached entry.
func (c *Cached) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *Cached) lookup(ref string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ref]
	if !ok {
		return "", false
	}
	if c.now().After(e.expires) {
		delete(c.entries, ref)
		return "", false
	}
	return e.url, true
}

func (c *Cached) store(ref, u string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ref] = cacheEntry{url: u, expires: c.now().Add(c.ttl)}
}
