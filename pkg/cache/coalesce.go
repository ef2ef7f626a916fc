package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Coalescer deduplicates concurrent fetches for the same key: callers
// arriving while a fetch is in flight share its result instead of
// starting their own, and completed results are cached until their TTL
// runs out. It replaces ad-hoc global in-flight maps with one object
// owning both the flight group and the result cache.
type Coalescer struct {
	group singleflight.Group
	cache Cache
}

func NewCoalescer(c Cache) *Coalescer {
	if c == nil {
		c = NewLocalCache(LocalConfig{})
	}
	return &Coalescer{cache: c}
}

// Fetch is the result of a coalesced fetch: the value plus the TTL the
// fetcher assigned to it.
type Fetch struct {
	Value interface{}
	TTL   time.Duration
}

// GetOrFetch returns the cached value for key if one is still valid;
// otherwise it runs fetch (once, no matter how many callers arrive
// concurrently) and caches the result for the returned TTL. A fetch
// error is returned to every waiting caller and nothing is cached.
func (co *Coalescer) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (Fetch, error)) (interface{}, error) {
	if v, ok := co.cache.Get(ctx, key); ok {
		return v, nil
	}

	v, err, _ := co.group.Do(key, func() (interface{}, error) {
		// Re-check: another flight may have completed between our cache
		// miss and acquiring the flight.
		if v, ok := co.cache.Get(ctx, key); ok {
			return v, nil
		}
		res, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if res.TTL > 0 {
			_ = co.cache.Set(ctx, key, res.Value, res.TTL)
		}
		return res.Value, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Invalidate drops the cached value for key. In-flight fetches are not
// interrupted.
func (co *Coalescer) Invalidate(ctx context.Context, key string) {
	_ = co.cache.Delete(ctx, key)
}
