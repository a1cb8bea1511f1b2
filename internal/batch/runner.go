package batch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"dofollow-checker/internal/analyzer"
	"dofollow-checker/internal/config"
	"dofollow-checker/internal/fetcher"
	"dofollow-checker/internal/robots"
	"dofollow-checker/pkg/types"
)

// NoteSkipped marks rows left unprocessed because the run was canceled.
const NoteSkipped = "skipped: canceled"

// Analyzer checks a single row and always returns a result.
type Analyzer interface {
	Analyze(ctx context.Context, req types.CheckRequest) types.CheckResult
}

// Runner processes rows one at a time in input order.
type Runner struct {
	analyzer Analyzer
	throttle *Throttle
	logger   *slog.Logger
}

// NewRunner builds a runner around an analyzer. A nil throttle disables pacing.
func NewRunner(a Analyzer, throttle *Throttle, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{analyzer: a, throttle: throttle, logger: logger}
}

// NewRunnerFromConfig wires fetcher, retry policy, analyzer, robots annotation
// and throttle from configuration.
func NewRunnerFromConfig(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgents:     cfg.Fetch.UserAgents,
		AcceptLanguage: cfg.Fetch.AcceptLanguage,
		Headers:        cfg.Fetch.Headers,
		Timeout:        cfg.Fetch.Timeout.Duration,
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
		MaxRedirects:   cfg.Fetch.MaxRedirects,
		ProxyURL:       cfg.Fetch.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("http fetcher: %w", err)
	}

	retrying := fetcher.NewRetrying(httpFetcher, fetcher.RetryPolicy{
		Retries: cfg.Fetch.Retries,
		Backoff: cfg.Fetch.BackoffSchedule(),
	}, logger)

	opts := analyzer.Options{Logger: logger}
	if cfg.Robots.Annotate {
		opts.Robots = robots.NewAgent(cfg.Robots, httpFetcher.Client())
	}

	var perHost RateLimiterSettings
	if rl := cfg.Batch.RateLimitPerDomain; rl.Enabled() {
		perHost = RateLimiterSettings{Requests: rl.Requests, Window: rl.Window.Duration}
		logger.Info("per-host rate limit enabled", "requests", rl.Requests, "window", rl.Window)
	}
	throttle := NewThrottle(cfg.Batch.DelayMin.Duration, cfg.Batch.DelayMax.Duration, perHost)

	return NewRunner(analyzer.New(retrying, opts), throttle, logger), nil
}

// Run analyses every row and returns exactly one result per row, in order.
// progress, when non-nil, is called after each row.
// Canceling ctx stops fetching; the remaining rows are recorded as skipped.
func (r *Runner) Run(ctx context.Context, reqs []types.CheckRequest, progress func(types.Progress)) []types.CheckResult {
	logger := r.logger.With("run_id", uuid.NewString())
	logger.Info("batch started", "total", len(reqs))
	start := time.Now()

	results := make([]types.CheckResult, 0, len(reqs))
	failed := 0
	for i, req := range reqs {
		result := r.runRow(ctx, req)
		if result.Failed() {
			failed++
		}
		results = append(results, result)

		if progress != nil {
			progress(types.Progress{Done: i + 1, Total: len(reqs), PageURL: req.PageURL})
		}
		logger.Debug("row processed", "row", i+1, "total", len(reqs), "url", req.PageURL, "notes", result.Notes)

		if !result.Failed() && i < len(reqs)-1 {
			_ = r.throttle.Pause(ctx)
		}
	}

	logger.Info("batch finished", "total", len(reqs), "failed", failed, "elapsed", time.Since(start).Round(time.Millisecond))
	return results
}

func (r *Runner) runRow(ctx context.Context, req types.CheckRequest) (result types.CheckResult) {
	if err := ctx.Err(); err != nil {
		return skipped(req, err)
	}
	if err := r.throttle.Wait(ctx, pageHost(req.PageURL)); err != nil {
		return skipped(req, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("row analysis panicked", "url", req.PageURL, "panic", rec)
			result = analyzer.FailedResult(req, "panic", fmt.Errorf("%v", rec))
		}
	}()
	return r.analyzer.Analyze(ctx, req)
}

func skipped(req types.CheckRequest, err error) types.CheckResult {
	return types.CheckResult{PageURL: req.PageURL, Notes: NoteSkipped, Err: err}
}

func pageHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
