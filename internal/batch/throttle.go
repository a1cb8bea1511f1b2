package batch

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterSettings configures token-bucket style rate limiting per host.
type RateLimiterSettings struct {
	Requests int
	Window   time.Duration
}

// Throttle spaces out requests: a random pause after each successful row and an
// optional token bucket per page host.
type Throttle struct {
	minDelay    time.Duration
	maxDelay    time.Duration
	rate        RateLimiterSettings
	rateEnabled bool
	jitter      func() float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewThrottle creates a throttle with a pause drawn from [minDelay, maxDelay].
func NewThrottle(minDelay, maxDelay time.Duration, rateCfg RateLimiterSettings) *Throttle {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	t := &Throttle{minDelay: minDelay, maxDelay: maxDelay, jitter: rand.Float64}
	if rateCfg.Requests > 0 && rateCfg.Window > 0 {
		t.rateEnabled = true
		t.rate = rateCfg
		t.limiters = make(map[string]*rate.Limiter)
	}
	return t
}

// Wait blocks until the per-host rate limit admits another request.
func (t *Throttle) Wait(ctx context.Context, host string) error {
	if t == nil || !t.rateEnabled || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	t.mu.Lock()
	limiter := t.ensureLimiterLocked(host)
	t.mu.Unlock()

	return limiter.Wait(ctx)
}

// Pause sleeps for a random politeness interval, returning early on cancellation.
func (t *Throttle) Pause(ctx context.Context) error {
	if t == nil {
		return nil
	}
	d := t.nextDelay()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Throttle) nextDelay() time.Duration {
	spread := t.maxDelay - t.minDelay
	if spread <= 0 {
		return t.minDelay
	}
	return t.minDelay + time.Duration(t.jitter()*float64(spread))
}

func (t *Throttle) ensureLimiterLocked(host string) *rate.Limiter {
	limiter, ok := t.limiters[host]
	if ok {
		return limiter
	}
	interval := t.rate.Window / time.Duration(t.rate.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	limiter = rate.NewLimiter(rate.Every(interval), t.rate.Requests)
	t.limiters[host] = limiter
	return limiter
}
