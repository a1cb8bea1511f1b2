package batch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dofollow-checker/internal/config"
	"dofollow-checker/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type funcAnalyzer func(ctx context.Context, req types.CheckRequest) types.CheckResult

func (f funcAnalyzer) Analyze(ctx context.Context, req types.CheckRequest) types.CheckResult {
	return f(ctx, req)
}

func TestRunnerKeepsOrderAndRecoversPanics(t *testing.T) {
	a := funcAnalyzer(func(ctx context.Context, req types.CheckRequest) types.CheckResult {
		if req.Target == "boom" {
			panic("unexpected nil")
		}
		return types.CheckResult{PageURL: req.PageURL, StatusCode: 200}
	})
	runner := NewRunner(a, nil, quietLogger())

	reqs := []types.CheckRequest{
		{PageURL: "https://a.test/1", Target: "x.pl"},
		{PageURL: "https://a.test/2", Target: "boom"},
		{PageURL: "https://a.test/3", Target: "x.pl"},
	}
	var reports []types.Progress
	results := runner.Run(context.Background(), reqs, func(p types.Progress) { reports = append(reports, p) })

	if len(results) != len(reqs) {
		t.Fatalf("got %d results, want %d", len(results), len(reqs))
	}
	for i := range reqs {
		if results[i].PageURL != reqs[i].PageURL {
			t.Fatalf("row %d out of order: %q", i, results[i].PageURL)
		}
	}
	if !results[1].Failed() || results[1].Notes != "error: panic: unexpected nil" {
		t.Fatalf("panic row = %+v", results[1])
	}
	if results[0].Failed() || results[2].Failed() {
		t.Fatal("healthy rows must not fail")
	}
	if len(reports) != 3 || reports[2].Done != 3 || reports[2].Total != 3 {
		t.Fatalf("unexpected progress reports %+v", reports)
	}
}

func TestRunnerCancellationStillYieldsEveryRow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	a := funcAnalyzer(func(ctx context.Context, req types.CheckRequest) types.CheckResult {
		calls++
		cancel()
		return types.CheckResult{PageURL: req.PageURL, StatusCode: 200}
	})
	runner := NewRunner(a, NewThrottle(time.Hour, time.Hour, RateLimiterSettings{}), quietLogger())

	reqs := []types.CheckRequest{{PageURL: "https://a.test/1"}, {PageURL: "https://a.test/2"}, {PageURL: "https://a.test/3"}}
	results := runner.Run(ctx, reqs, nil)

	if calls != 1 {
		t.Fatalf("analyzer called %d times, want 1", calls)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, r := range results[1:] {
		if r.Notes != NoteSkipped || !r.Failed() {
			t.Fatalf("expected skipped row, got %+v", r)
		}
	}
}

func TestThrottleDelayRange(t *testing.T) {
	th := NewThrottle(500*time.Millisecond, time.Second, RateLimiterSettings{})
	th.jitter = func() float64 { return 0 }
	if d := th.nextDelay(); d != 500*time.Millisecond {
		t.Fatalf("min delay = %s", d)
	}
	th.jitter = func() float64 { return 0.5 }
	if d := th.nextDelay(); d != 750*time.Millisecond {
		t.Fatalf("mid delay = %s", d)
	}
	fixed := NewThrottle(time.Second, 0, RateLimiterSettings{})
	if d := fixed.nextDelay(); d != time.Second {
		t.Fatalf("max below min should clamp, got %s", d)
	}
}

func TestThrottleRateLimitPerHost(t *testing.T) {
	th := NewThrottle(0, 0, RateLimiterSettings{Requests: 1, Window: 50 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := th.Wait(ctx, "A.test"); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("rate limit not applied, elapsed %s", elapsed)
	}

	other := time.Now()
	if err := th.Wait(ctx, "b.test"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if time.Since(other) > 40*time.Millisecond {
		t.Fatal("hosts must have independent buckets")
	}
}

func TestRunnerFromConfigEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<a href="https://mydomain.pl/offer">x</a>`)
	}))
	defer srv.Close()

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	cfg := config.Default()
	cfg.Fetch.Timeout = config.DurationFrom(2 * time.Second)
	cfg.Fetch.Backoff = []config.Duration{config.DurationFrom(time.Millisecond)}
	cfg.Batch.DelayMin = config.DurationFrom(0)
	cfg.Batch.DelayMax = config.DurationFrom(time.Millisecond)

	runner, err := NewRunnerFromConfig(cfg, quietLogger())
	if err != nil {
		t.Fatalf("runner: %v", err)
	}

	reqs := []types.CheckRequest{
		{PageURL: srv.URL + "/a", Target: "mydomain.pl"},
		{PageURL: downURL + "/b", Target: "mydomain.pl"},
		{PageURL: srv.URL + "/c", Target: "https://mydomain.pl/offer"},
	}
	results := runner.Run(context.Background(), reqs, nil)
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].DofollowLinksCount != 1 || results[2].DofollowLinksCount != 1 {
		t.Fatalf("unexpected healthy rows: %+v / %+v", results[0], results[2])
	}
	failed := results[1]
	if !failed.Failed() || failed.HasLink || failed.Record()[2] != "" {
		t.Fatalf("unexpected failed row %+v", failed)
	}
	if !strings.HasPrefix(failed.Notes, "error: connection_error:") {
		t.Fatalf("notes = %q", failed.Notes)
	}
}

func TestRunnerFromConfigRateLimitWiring(t *testing.T) {
	cases := []struct {
		name string
		rl   config.RateLimitConfig
		want bool
	}{
		{"disabled by default", config.RateLimitConfig{}, false},
		{"window missing", config.RateLimitConfig{Requests: 2}, false},
		{"enabled", config.RateLimitConfig{Requests: 2, Window: config.DurationFrom(time.Second)}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Batch.RateLimitPerDomain = c.rl
			runner, err := NewRunnerFromConfig(cfg, quietLogger())
			if err != nil {
				t.Fatalf("runner: %v", err)
			}
			if got := runner.throttle.rateEnabled; got != c.want {
				t.Fatalf("rate limiting enabled = %v, want %v", got, c.want)
			}
		})
	}
}
