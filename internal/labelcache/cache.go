// Package labelcache keeps the last good discovery result for a TTL and
// serves it while a fresh pass fails.
package labelcache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"crmoverlay/api/internal/metrics"
	"crmoverlay/api/internal/store"
)

// DefaultTTL is how long a discovery result is served without re-discovering.
const DefaultTTL = 5 * time.Minute

// Discoverer runs one discovery pass. An empty result means nothing was found
// or the host could not be read.
type Discoverer interface {
	Discover(ctx context.Context) []store.Label
}

// Cache owns the discovered label set. Labels keep their CreatedAt across
// passes as long as their id is stable.
type Cache struct {
	discoverer Discoverer
	ttl        time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu        sync.Mutex
	value     []store.Label
	fetchedAt time.Time
	known     map[string]store.Label
}

func New(discoverer Discoverer, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		discoverer: discoverer,
		ttl:        ttl,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
		known:      make(map[string]store.Label),
	}
}

// Get returns the cached labels when they are younger than the TTL and
// forceRefresh is false. Otherwise it runs discovery; a non-empty result
// replaces the cache, an empty one leaves the stale value in place.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) []store.Label {
	c.mu.Lock()
	if !forceRefresh && !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		out := cloneLabels(c.value)
		c.mu.Unlock()
		c.metrics.CacheLookup("hit")
		return out
	}
	c.mu.Unlock()

	fresh := c.discoverer.Discover(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(fresh) == 0 {
		c.metrics.CacheLookup("stale")
		if len(c.value) > 0 {
			c.logger.Warn("label discovery returned nothing, serving stale labels",
				zap.Int("count", len(c.value)),
				zap.Time("fetched_at", c.fetchedAt))
		}
		return cloneLabels(c.value)
	}
	c.replace(fresh)
	c.metrics.CacheLookup("refresh")
	return cloneLabels(c.value)
}

// Refresh forces a discovery pass.
func (c *Cache) Refresh(ctx context.Context) []store.Label {
	return c.Get(ctx, true)
}

// Invalidate makes the next Get re-discover.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// Peek returns the cached labels without triggering discovery.
func (c *Cache) Peek() []store.Label {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneLabels(c.value)
}

// FetchedAt reports when the cache was last replaced.
func (c *Cache) FetchedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedAt
}

// replace must be called with mu held.
func (c *Cache) replace(fresh []store.Label) {
	next := make([]store.Label, len(fresh))
	for i, label := range fresh {
		if prev, ok := c.known[label.ID]; ok {
			label.CreatedAt = prev.CreatedAt
		}
		c.known[label.ID] = label
		next[i] = label
	}
	c.value = next
	c.fetchedAt = c.now()
}

func cloneLabels(labels []store.Label) []store.Label {
	out := make([]store.Label, len(labels))
	copy(out, labels)
	return out
}
