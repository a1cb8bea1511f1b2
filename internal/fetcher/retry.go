package fetcher

import (
	"context"
	"log/slog"
	"time"

	"dofollow-checker/pkg/types"
)

// RetryPolicy bounds how often and how patiently a failed fetch is repeated.
type RetryPolicy struct {
	Retries int
	Backoff []time.Duration
}

// delay returns the pause before retry number attempt (0-based). The last
// backoff entry is reused once the schedule runs out.
func (p RetryPolicy) delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attempt >= len(p.Backoff) {
		attempt = len(p.Backoff) - 1
	}
	return p.Backoff[attempt]
}

// Retrying wraps a Fetcher and repeats transport failures per RetryPolicy.
// HTTP error statuses and other failures are returned straight away.
type Retrying struct {
	next   Fetcher
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetrying decorates next with the retry policy.
func NewRetrying(next Fetcher, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	return &Retrying{next: next, policy: policy, logger: logger}
}

// Fetch tries up to Retries+1 times and returns the last error on exhaustion.
func (r *Retrying) Fetch(ctx context.Context, rawURL string) (*types.FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt <= r.policy.Retries; attempt++ {
		page, err := r.next.Fetch(ctx, rawURL)
		if err == nil {
			page.Attempts = attempt + 1
			return page, nil
		}
		lastErr = err
		if !IsTransient(err) || ctx.Err() != nil || attempt == r.policy.Retries {
			break
		}

		wait := r.policy.delay(attempt)
		r.logger.Debug("fetch failed, retrying", "url", rawURL, "attempt", attempt+1, "wait", wait, "error", err)
		if err := sleep(ctx, wait); err != nil {
			break
		}
	}
	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
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
