package client

import (
	"context"
	"sync"
	"time"

	"LexiLoom/pkg/cache"
)

// URLSource re-derives a download URL for an artifact, returning the
// instant it stops being valid.
type URLSource interface {
	RefreshURL(ctx context.Context, audioUID string) (url string, expiresAt time.Time, err error)
}

// URLCache keeps download URLs keyed by artifact UID until their expiry
// instant. Concurrent lookups for the same UID share one refresh call.
type URLCache struct {
	src URLSource
	co  *cache.Coalescer

	mu         sync.Mutex
	refreshing map[string]bool
}

func NewURLCache(src URLSource) *URLCache {
	return &URLCache{
		src:        src,
		co:         cache.NewCoalescer(nil),
		refreshing: make(map[string]bool),
	}
}

// Get returns a usable URL for the artifact: the cached one while its
// expiry is still in the future, a freshly refreshed one otherwise.
func (u *URLCache) Get(ctx context.Context, audioUID string) (string, error) {
	v, err := u.co.GetOrFetch(ctx, audioUID, func(ctx context.Context) (cache.Fetch, error) {
		url, expiresAt, err := u.src.RefreshURL(ctx, audioUID)
		if err != nil {
			return cache.Fetch{}, err
		}
		return cache.Fetch{Value: url, TTL: time.Until(expiresAt)}, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Do runs action with a URL for the artifact. If the action fails in a
// way the caller attributes to URL expiry (any returned error), the
// cached URL is dropped, refreshed once, and the action retried exactly
// once. Overlapping refreshes for the same artifact are suppressed: a
// caller arriving while another refresh is underway gets the original
// error back instead of stacking a second refresh.
func (u *URLCache) Do(ctx context.Context, audioUID string, action func(url string) error) error {
	url, err := u.Get(ctx, audioUID)
	if err != nil {
		return err
	}
	firstErr := action(url)
	if firstErr == nil {
		return nil
	}

	u.mu.Lock()
	if u.refreshing[audioUID] {
		u.mu.Unlock()
		return firstErr
	}
	u.refreshing[audioUID] = true
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		delete(u.refreshing, audioUID)
		u.mu.Unlock()
	}()

	u.co.Invalidate(ctx, audioUID)
	url, err = u.Get(ctx, audioUID)
	if err != nil {
		return err
	}
	return action(url)
}
