package provider

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"deep-research-be/pkg/store"
)

// Cached wraps a provider with an in-memory TTL cache keyed by the joined
// keyword query. Repeated steps with the same keywords (or retried sessions)
// skip the upstream call; failures are never cached.
type Cached struct {
	inner SearchProvider
	cache *cache.Cache
}

var _ SearchProvider = &Cached{}

func NewCached(inner SearchProvider, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Timeout() time.Duration { return c.inner.Timeout() }

func (c *Cached) Search(ctx context.Context, keywords []string) ([]store.ResultItem, error) {
	key := c.inner.Name() + "|" + strings.Join(keywords, " ")
	if hit, found := c.cache.Get(key); found {
		cached := hit.([]store.ResultItem)
		out := make([]store.ResultItem, len(cached))
		copy(out, cached)
		return out, nil
	}

	results, err := c.inner.Search(ctx, keywords)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, results, cache.DefaultExpiration)

	out := make([]store.ResultItem, len(results))
	copy(out, results)
	return out, nil
}
