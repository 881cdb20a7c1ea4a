// Package credentialcache caches peer-domain discovery bundles so that
// verifying a signature chain rooted at another homeserver doesn't require a
// federation round trip on every request. It implements
// credentials.PeerDiscoverer by wrapping a Fetcher with TTL expiry, LRU
// eviction and singleflight-deduplicated fetches.
package credentialcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/phnx-homeserver/internal/credentials"
	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
)

// Fetcher performs the actual federation request for a domain's discovery
// bundle. Production wiring hits the peer AS's discovery endpoint; tests can
// supply a stub.
type Fetcher interface {
	FetchDiscoveryBundle(ctx context.Context, domain fqdn.Fqdn) (credentials.DiscoveryBundle, error)
}

// Config controls the cache's TTL, capacity and cleanup cadence.
//
// TTL should be shorter than how long a revoked or rotated intermediate is
// expected to remain accepted: a domain that rotates its active intermediate
// invalidates this cache's entry for itself directly (see Invalidate), but
// peers observing it only pick up the change once their own cached entry
// expires.
type Config struct {
	TTL             time.Duration
	MaxEntries      int
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:             10 * time.Minute,
		MaxEntries:      1000,
		CleanupInterval: time.Minute,
	}
}

type entry struct {
	bundle    credentials.DiscoveryBundle
	createdAt time.Time
	expiry    time.Time

	// lastAccessedNanos is read and written without the cache's mutex held,
	// so LRU bookkeeping never blocks a concurrent lookup.
	lastAccessedNanos atomic.Int64
}

func (e *entry) isExpired(now time.Time) bool { return now.After(e.expiry) }

func (e *entry) touch(now time.Time) { e.lastAccessedNanos.Store(now.UnixNano()) }

func (e *entry) lastAccessed() time.Time { return time.Unix(0, e.lastAccessedNanos.Load()) }

// MetricsRecorder decouples the cache from a concrete metrics backend.
type MetricsRecorder interface {
	RecordHit(ctx context.Context, domain string)
	RecordMiss(ctx context.Context, domain string)
	RecordEviction(ctx context.Context, reason string)
	SetSize(ctx context.Context, size int)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordHit(context.Context, string)      {}
func (noopMetricsRecorder) RecordMiss(context.Context, string)     {}
func (noopMetricsRecorder) RecordEviction(context.Context, string) {}
func (noopMetricsRecorder) SetSize(context.Context, int)           {}

// Cache is a thread-safe, TTL-and-LRU-bounded cache of DiscoveryBundles keyed
// by domain.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry

	config  Config
	logger  *slog.Logger
	metrics MetricsRecorder
	fetcher Fetcher

	fetchGroup singleflight.Group

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed bool

	now func() time.Time
}

type Option func(*Cache)

func WithConfig(cfg Config) Option { return func(c *Cache) { c.config = cfg } }

func WithLogger(l *slog.Logger) Option { return func(c *Cache) { c.logger = l } }

func WithMetrics(m MetricsRecorder) Option { return func(c *Cache) { c.metrics = m } }

func withClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// New creates a Cache backed by fetcher and starts its background cleanup
// goroutine. Callers must call Close when done.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		config:  DefaultConfig(),
		logger:  slog.Default(),
		metrics: noopMetricsRecorder{},
		fetcher: fetcher,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.config.TTL <= 0 {
		c.config.TTL = DefaultConfig().TTL
	}
	if c.config.MaxEntries <= 0 {
		c.config.MaxEntries = DefaultConfig().MaxEntries
	}
	if c.config.CleanupInterval <= 0 {
		c.config.CleanupInterval = DefaultConfig().CleanupInterval
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	c.logger.Info("credential discovery cache initialized",
		slog.Duration("ttl", c.config.TTL),
		slog.Int("max_entries", c.config.MaxEntries))
	return c
}

func cacheKey(domain fqdn.Fqdn) string { return domain.String() }

// get returns the live entry for domain, or nil on miss/expiry.
func (c *Cache) get(ctx context.Context, domain fqdn.Fqdn) *entry {
	key := cacheKey(domain)
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil
	}
	e, ok := c.entries[key]
	if !ok || e.isExpired(now) {
		c.metrics.RecordMiss(ctx, domain.String())
		return nil
	}
	e.touch(now)
	c.metrics.RecordHit(ctx, domain.String())
	return e
}

func (c *Cache) setAndReturn(ctx context.Context, domain fqdn.Fqdn, bundle credentials.DiscoveryBundle) *entry {
	key := cacheKey(domain)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.evictIfNeededLocked(ctx)

	e := &entry{bundle: bundle, createdAt: now, expiry: now.Add(c.config.TTL)}
	e.lastAccessedNanos.Store(now.UnixNano())
	c.entries[key] = e
	c.metrics.SetSize(ctx, len(c.entries))
	return e
}

// Discover implements credentials.PeerDiscoverer: it serves from cache on
// hit, and otherwise calls the Fetcher exactly once per domain even under
// concurrent callers, via singleflight.
func (c *Cache) Discover(ctx context.Context, domain fqdn.Fqdn) (credentials.DiscoveryBundle, error) {
	if e := c.get(ctx, domain); e != nil {
		return e.bundle, nil
	}

	key := cacheKey(domain)
	result, err, _ := c.fetchGroup.Do(key, func() (any, error) {
		// Re-check without recording metrics: the miss was counted above.
		c.mu.RLock()
		e, ok := c.entries[key]
		live := ok && !c.closed && !e.isExpired(c.now())
		c.mu.RUnlock()
		if live {
			return e, nil
		}
		bundle, err := c.fetcher.FetchDiscoveryBundle(ctx, domain)
		if err != nil {
			return nil, fmt.Errorf("credentialcache: fetching discovery bundle for %s: %w", domain, err)
		}
		return c.setAndReturn(ctx, domain, bundle), nil
	})
	if err != nil {
		return credentials.DiscoveryBundle{}, err
	}
	return result.(*entry).bundle, nil
}

// Invalidate drops the cached entry for domain, forcing the next Discover to
// refetch. Call this after rotating this domain's own intermediate so
// same-process callers don't read a stale self-entry; peers pick up the
// rotation once their own TTL lapses.
func (c *Cache) Invalidate(ctx context.Context, domain fqdn.Fqdn) {
	key := cacheKey(domain)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.metrics.RecordEviction(ctx, "manual")
		c.metrics.SetSize(ctx, len(c.entries))
	}
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()

	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	return nil
}

func (c *Cache) cleanupLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *Cache) cleanup() {
	now := c.now()
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	expired := 0
	for key, e := range c.entries {
		if e.isExpired(now) {
			delete(c.entries, key)
			expired++
		}
	}
	if expired > 0 {
		c.metrics.SetSize(ctx, len(c.entries))
		for i := 0; i < expired; i++ {
			c.metrics.RecordEviction(ctx, "expired")
		}
		c.logger.Debug("expired discovery cache entries", slog.Int("count", expired))
	}
}

// evictIfNeededLocked evicts the least-recently-accessed entry when the
// cache is at capacity. Callers must hold c.mu.
func (c *Cache) evictIfNeededLocked(ctx context.Context) {
	if len(c.entries) < c.config.MaxEntries {
		return
	}
	var oldestKey string
	var oldestTime time.Time
	for key, e := range c.entries {
		t := e.lastAccessed()
		if oldestKey == "" || t.Before(oldestTime) {
			oldestKey, oldestTime = key, t
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.metrics.RecordEviction(ctx, "lru")
	}
}
