package cache

import (
	"context"
	"time"
)

// Cache is the small cache surface the pipeline needs: TTL-bounded
// entries with expiry introspection (the URL cache keys off the expiry
// instant of presigned links).
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error

	// GetWithTTL returns the value and its remaining validity.
	GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool)

	Close() error
}

type Config struct {
	// "local" or "redis"
	Type  string      `json:"type" env:"CACHE_TYPE"`
	Redis RedisConfig `json:"redis"`
	Local LocalConfig `json:"local"`
}

type RedisConfig struct {
	Addr     string `json:"addr" env:"REDIS_ADDR"`
	Password string `json:"password" env:"REDIS_PASSWORD"`
	DB       int    `json:"db" env:"REDIS_DB"`
	PoolSize int    `json:"pool_size" env:"REDIS_POOL_SIZE"`
}

type LocalConfig struct {
	DefaultExpiration time.Duration `json:"default_expiration"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
}

// New builds a cache from config, defaulting to the local backend.
func New(cfg Config) (Cache, error) {
	if cfg.Type == "redis" {
		return NewRedisCache(cfg.Redis)
	}
	return NewLocalCache(cfg.Local), nil
}
