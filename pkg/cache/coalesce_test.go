package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescerSharesInFlightFetch(t *testing.T) {
	co := NewCoalescer(nil)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (Fetch, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return Fetch{Value: "shared", TTL: time.Minute}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]interface{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := co.GetOrFetch(ctx, "k", fetch)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give the goroutines time to pile onto the same flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, "shared", v)
	}
}

func TestCoalescerCachesUntilTTL(t *testing.T) {
	co := NewCoalescer(nil)
	ctx := context.Background()

	var calls int32
	fetch := func(ctx context.Context) (Fetch, error) {
		atomic.AddInt32(&calls, 1)
		return Fetch{Value: "v", TTL: time.Minute}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := co.GetOrFetch(ctx, "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, int32(1), calls)

	co.Invalidate(ctx, "k")
	_, err := co.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
}

func TestCoalescerErrorNotCached(t *testing.T) {
	co := NewCoalescer(nil)
	ctx := context.Background()

	boom := errors.New("boom")
	var calls int32
	fetch := func(ctx context.Context) (Fetch, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return Fetch{}, boom
		}
		return Fetch{Value: "ok", TTL: time.Minute}, nil
	}

	_, err := co.GetOrFetch(ctx, "k", fetch)
	assert.ErrorIs(t, err, boom)

	v, err := co.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
