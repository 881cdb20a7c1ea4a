package credentialcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/phnx-homeserver/internal/credentials"
	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
)

// mockMetricsRecorder tracks cache metrics for testing.
type mockMetricsRecorder struct {
	mu        sync.Mutex
	hits      int
	misses    int
	evictions map[string]int
}

func newMockMetricsRecorder() *mockMetricsRecorder {
	return &mockMetricsRecorder{evictions: make(map[string]int)}
}

func (m *mockMetricsRecorder) RecordHit(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *mockMetricsRecorder) RecordMiss(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *mockMetricsRecorder) RecordEviction(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions[reason]++
}

func (m *mockMetricsRecorder) SetSize(context.Context, int) {}

func (m *mockMetricsRecorder) getHits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}

func (m *mockMetricsRecorder) getMisses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.misses
}

// countingFetcher counts how many times FetchDiscoveryBundle is actually
// invoked, so tests can assert singleflight collapses concurrent callers.
type countingFetcher struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *countingFetcher) FetchDiscoveryBundle(ctx context.Context, domain fqdn.Fqdn) (credentials.DiscoveryBundle, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return credentials.DiscoveryBundle{}, f.err
	}
	return credentials.DiscoveryBundle{Domain: domain}, nil
}

func TestDiscover_CachesAfterFirstFetch(t *testing.T) {
	ctx := context.Background()
	domain := fqdn.MustParse("peer.example.com")
	fetcher := &countingFetcher{}
	metrics := newMockMetricsRecorder()

	c := New(fetcher, WithMetrics(metrics))
	defer c.Close()

	_, err := c.Discover(ctx, domain)
	require.NoError(t, err)
	_, err = c.Discover(ctx, domain)
	require.NoError(t, err)

	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, 1, metrics.getHits())
	assert.Equal(t, 1, metrics.getMisses())
}

func TestDiscover_SingleflightCollapsesConcurrentFetches(t *testing.T) {
	ctx := context.Background()
	domain := fqdn.MustParse("peer.example.com")
	fetcher := &countingFetcher{delay: 20 * time.Millisecond}

	c := New(fetcher)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Discover(ctx, domain)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestDiscover_ExpiredEntryRefetches(t *testing.T) {
	ctx := context.Background()
	domain := fqdn.MustParse("peer.example.com")
	fetcher := &countingFetcher{}

	now := time.Now()
	c := New(fetcher, WithConfig(Config{TTL: time.Millisecond, MaxEntries: 10, CleanupInterval: time.Hour}), withClock(func() time.Time { return now }))
	defer c.Close()

	_, err := c.Discover(ctx, domain)
	require.NoError(t, err)

	now = now.Add(2 * time.Millisecond)
	_, err = c.Discover(ctx, domain)
	require.NoError(t, err)

	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	ctx := context.Background()
	domain := fqdn.MustParse("peer.example.com")
	fetcher := &countingFetcher{}

	c := New(fetcher)
	defer c.Close()

	_, err := c.Discover(ctx, domain)
	require.NoError(t, err)
	c.Invalidate(ctx, domain)
	_, err = c.Discover(ctx, domain)
	require.NoError(t, err)

	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestEvictIfNeeded_RespectsMaxEntries(t *testing.T) {
	ctx := context.Background()
	fetcher := &countingFetcher{}

	c := New(fetcher, WithConfig(Config{TTL: time.Hour, MaxEntries: 2, CleanupInterval: time.Hour}))
	defer c.Close()

	for _, name := range []string{"a.example.com", "b.example.com", "c.example.com"} {
		_, err := c.Discover(ctx, fqdn.MustParse(name))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Size())
}

func TestDiscover_FetcherErrorNotCached(t *testing.T) {
	ctx := context.Background()
	domain := fqdn.MustParse("peer.example.com")
	fetcher := &countingFetcher{err: assertAnError{}}

	c := New(fetcher)
	defer c.Close()

	_, err := c.Discover(ctx, domain)
	require.Error(t, err)
	_, err = c.Discover(ctx, domain)
	require.Error(t, err)

	assert.Equal(t, int32(2), fetcher.calls.Load())
}

type assertAnError struct{}

func (assertAnError) Error() string { return "fetch failed" }
