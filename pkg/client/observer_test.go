package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalFor(t *testing.T) {
	cfg := DefaultObserverConfig()

	t.Run("doubles every fifth attempt", func(t *testing.T) {
		expect := map[int]time.Duration{
			1: 5 * time.Second, 5: 5 * time.Second,
			6: 10 * time.Second, 10: 10 * time.Second,
			11: 20 * time.Second, 15: 20 * time.Second,
			16: 40 * time.Second, 21: 80 * time.Second, 25: 80 * time.Second,
		}
		for attempt, want := range expect {
			got, capped := cfg.intervalFor(attempt)
			assert.False(t, capped, "attempt %d", attempt)
			assert.Equal(t, want, got, "attempt %d", attempt)
		}
	})

	t.Run("monotonic and bounded", func(t *testing.T) {
		prev := time.Duration(0)
		for attempt := 1; attempt <= 100; attempt++ {
			got, capped := cfg.intervalFor(attempt)
			assert.GreaterOrEqual(t, got, prev, "attempt %d", attempt)
			assert.LessOrEqual(t, got, 120*time.Second, "attempt %d", attempt)
			prev = got
			if capped {
				return
			}
		}
		t.Fatal("backoff never reached the cap")
	})

	t.Run("stops at the cap", func(t *testing.T) {
		// The sixth doubling would be 160s; the attempt before it still
		// runs at 80s, then polling stops.
		_, capped := cfg.intervalFor(25)
		assert.False(t, capped)
		got, capped := cfg.intervalFor(26)
		assert.True(t, capped)
		assert.Equal(t, 120*time.Second, got)
	})
}

type scriptedSource struct {
	calls  int32
	script func(call int32) (AudioStatus, string, error)
}

func (s *scriptedSource) AudioStatus(ctx context.Context, id uint) (AudioStatus, string, error) {
	return s.script(atomic.AddInt32(&s.calls, 1))
}

func fastConfig() ObserverConfig {
	return ObserverConfig{Base: time.Millisecond, DoubleEvery: 2, Max: 8 * time.Millisecond}
}

func TestObserveResolves(t *testing.T) {
	src := &scriptedSource{script: func(call int32) (AudioStatus, string, error) {
		if call < 3 {
			return StatusProcessing, "", nil
		}
		return StatusReady, "uid-123", nil
	}}

	outcome, uid, err := NewObserver(src, fastConfig()).Observe(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Resolved, outcome)
	assert.Equal(t, "uid-123", uid)
	assert.Equal(t, int32(3), src.calls)
}

func TestObserveReverted(t *testing.T) {
	src := &scriptedSource{script: func(call int32) (AudioStatus, string, error) {
		if call == 1 {
			return StatusProcessing, "", nil
		}
		return StatusNone, "", nil
	}}

	outcome, _, err := NewObserver(src, fastConfig()).Observe(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Reverted, outcome)
}

func TestObserveExpiresAtCap(t *testing.T) {
	src := &scriptedSource{script: func(int32) (AudioStatus, string, error) {
		return StatusProcessing, "", nil
	}}

	outcome, _, err := NewObserver(src, fastConfig()).Observe(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Expired, outcome)
	// Base 1ms doubling every 2 attempts with an 8ms cap: attempts run
	// at 1,1,2,2,4,4 and the next would hit the cap.
	assert.Equal(t, int32(6), src.calls)
}

func TestObserveTransientErrorsKeepPolling(t *testing.T) {
	src := &scriptedSource{script: func(call int32) (AudioStatus, string, error) {
		if call == 1 {
			return StatusNone, "", errors.New("network blip")
		}
		return StatusReady, "uid-9", nil
	}}

	outcome, uid, err := NewObserver(src, fastConfig()).Observe(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Resolved, outcome)
	assert.Equal(t, "uid-9", uid)
}

func TestObserveCancellation(t *testing.T) {
	src := &scriptedSource{script: func(int32) (AudioStatus, string, error) {
		return StatusProcessing, "", nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var outcome Outcome
	var err error
	go func() {
		defer close(done)
		outcome, _, err = NewObserver(src, ObserverConfig{Base: time.Hour, DoubleEvery: 5, Max: 2 * time.Hour}).Observe(ctx, 1)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("observer did not stop after cancellation")
	}
	assert.Equal(t, Expired, outcome)
	assert.ErrorIs(t, err, context.Canceled)
	// No poll fired after teardown.
	assert.Equal(t, int32(0), src.calls)
}
