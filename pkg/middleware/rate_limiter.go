package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	libredis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimiterConfig limits requests per client IP. Rate uses the
// limiter format, e.g. "30-M" for thirty per minute.
type RateLimiterConfig struct {
	Rate  string        `json:"rate"`
	Store limiter.Store `json:"-"` // optional external store (e.g. redis)
}

// NewLimiterStore builds the limiter backend: redis when an address is
// configured, so the limit holds across instances, otherwise process
// memory.
func NewLimiterStore(addr, password string, db int) limiter.Store {
	if addr == "" {
		return memory.NewStore()
	}
	client := libredis.NewClient(&libredis.Options{Addr: addr, Password: password, DB: db})
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "limiter:audio"})
	if err != nil {
		return memory.NewStore()
	}
	return store
}

// RateLimiter returns a per-IP Gin middleware. Requests over the limit
// are refused with 429 and a Retry-After header.
func RateLimiter(cfg RateLimiterConfig) gin.HandlerFunc {
	store := cfg.Store
	if store == nil {
		store = memory.NewStore()
	}
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		rate = limiter.Rate{Period: time.Minute, Limit: 30}
	}
	lim := limiter.New(store, rate)

	return func(c *gin.Context) {
		lctx, err := lim.Get(c, "ip:"+c.ClientIP())
		if err != nil {
			c.Next()
			return
		}
		if lctx.Reached {
			retry := int(time.Until(time.Unix(lctx.Reset, 0)).Seconds())
			if retry < 0 {
				retry = 0
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
