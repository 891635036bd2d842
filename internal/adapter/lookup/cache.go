// Package lookup holds provider-independent decorators for
// domain.PlaceLookup implementations.
package lookup

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/observability"
)

// Cached wraps a PlaceLookup with an in-memory LRU cache. Concurrent
// lookups of the same query share one upstream call.
type Cached struct {
	inner   domain.PlaceLookup
	cache   *lru.Cache[string, []domain.Candidate]
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewCached creates a cache decorator holding up to size queries.
func NewCached(inner domain.PlaceLookup, size int, metrics *observability.Metrics) (*Cached, error) {
	cache, err := lru.New[string, []domain.Candidate](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache, metrics: metrics}, nil
}

// Lookup returns the cached candidates for query or asks the inner lookup.
func (c *Cached) Lookup(ctx context.Context, query string) ([]domain.Candidate, error) {
	key := domain.NormalizeAddress(query)
	if candidates, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return candidates, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		candidates, err := c.inner.Lookup(ctx, query)
		if err != nil {
			return nil, err
		}
		// Only cache non-empty results so "not found" can be retried later.
		if len(candidates) > 0 {
			c.cache.Add(key, candidates)
		}
		return candidates, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Candidate), nil
}

// Len returns the number of cached queries.
func (c *Cached) Len() int { return c.cache.Len() }
