package source

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CachedFetcher keeps fetched records for a fixed TTL in front of another Fetcher.
// Use it only for records where a bounded staleness is acceptable.
type CachedFetcher struct {
	next  Fetcher
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedFetcher wraps next with a TTL cache.
func NewCachedFetcher(next Fetcher, ttl time.Duration) (*CachedFetcher, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     16 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating record cache: %w", err)
	}
	return &CachedFetcher{next: next, cache: cache, ttl: ttl}, nil
}

func (c *CachedFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if v, ok := c.cache.Get(ref); ok {
		return append([]byte(nil), v.([]byte)...), nil
	}

	data, err := c.next.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(ref, append([]byte(nil), data...), int64(len(data)), c.ttl)
	return data, nil
}

// Invalidate drops a cached record.
func (c *CachedFetcher) Invalidate(ref string) {
	c.cache.Del(ref)
}

// Close stops the cache's background goroutines.
func (c *CachedFetcher) Close() {
	c.cache.Close()
}
