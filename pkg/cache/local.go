package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type localCache struct {
	cache *gocache.Cache
}

// NewLocalCache creates an in-process cache backed by go-cache.
func NewLocalCache(cfg LocalConfig) Cache {
	def := cfg.DefaultExpiration
	if def == 0 {
		def = 5 * time.Minute
	}
	cleanup := cfg.CleanupInterval
	if cleanup == 0 {
		cleanup = 10 * time.Minute
	}
	return &localCache{cache: gocache.New(def, cleanup)}
}

func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	return lc.cache.Get(key)
}

func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	lc.cache.Set(key, value, expiration)
	return nil
}

func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.cache.Delete(key)
	return nil
}

func (lc *localCache) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	value, expiration, found := lc.cache.GetWithExpiration(key)
	if !found {
		return nil, 0, false
	}
	var ttl time.Duration
	if !expiration.IsZero() {
		ttl = time.Until(expiration)
		if ttl < 0 {
			ttl = 0
		}
	}
	return value, ttl, true
}

func (lc *localCache) Close() error { return nil }
