package client

import (
	"context"
	"time"
)

// AudioStatus mirrors the server-side audio reference states.
type AudioStatus int

const (
	StatusNone       AudioStatus = iota // no audio, no job
	StatusProcessing                    // job holds the lock
	StatusReady                         // artifact linked
)

// StatusSource reports the current audio status of a content item.
type StatusSource interface {
	AudioStatus(ctx context.Context, contentItemID uint) (AudioStatus, string, error)
}

// Outcome is the terminal state of one observation.
type Outcome int

const (
	// Resolved: the job finished and a real artifact UID is available.
	Resolved Outcome = iota
	// Reverted: the reference went back to empty, meaning the job
	// failed and rolled back; the user must resubmit.
	Reverted
	// Expired: the backoff reached its cap before the job resolved;
	// polling stopped to bound resource usage.
	Expired
)

// ObserverConfig is the backoff policy: the interval starts at Base,
// doubles every DoubleEvery attempts, and polling stops outright once
// the interval reaches Max.
type ObserverConfig struct {
	Base        time.Duration
	DoubleEvery int
	Max         time.Duration
}

func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{Base: 5 * time.Second, DoubleEvery: 5, Max: 120 * time.Second}
}

// intervalFor returns the delay before poll attempt n (1-based) and
// whether the cap has been reached, in which case the attempt must not
// run. The returned interval never exceeds Max.
func (c ObserverConfig) intervalFor(attempt int) (time.Duration, bool) {
	doublings := (attempt - 1) / c.DoubleEvery
	interval := c.Base
	for i := 0; i < doublings; i++ {
		interval *= 2
		if interval >= c.Max {
			return c.Max, true
		}
	}
	return interval, false
}

// Observer watches one content item while a generation job is in
// flight. One Observe call per item; cancel the context to tear the
// loop down (e.g. when the observed item changes identity).
type Observer struct {
	src StatusSource
	cfg ObserverConfig
}

func NewObserver(src StatusSource, cfg ObserverConfig) *Observer {
	if cfg.Base <= 0 {
		cfg = DefaultObserverConfig()
	}
	return &Observer{src: src, cfg: cfg}
}

// Observe polls until the item resolves, reverts, or the backoff caps
// out. It blocks; run it in its own goroutine. Transient fetch errors
// count as ordinary polls and do not terminate the loop.
func (o *Observer) Observe(ctx context.Context, contentItemID uint) (Outcome, string, error) {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		interval, capped := o.cfg.intervalFor(attempt)
		if capped {
			return Expired, "", nil
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return Expired, "", ctx.Err()
		case <-timer.C:
		}

		status, uid, err := o.src.AudioStatus(ctx, contentItemID)
		if err != nil {
			continue
		}
		switch status {
		case StatusReady:
			return Resolved, uid, nil
		case StatusNone:
			return Reverted, "", nil
		}
	}
}
