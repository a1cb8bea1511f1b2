// Package robots reads robots.txt to annotate results. It never blocks a fetch.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"dofollow-checker/internal/config"
)

const maxRobotsBytes = 512 * 1024

// Agent answers robots.txt questions for one user agent, caching the matching
// rule group per scheme and host.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cachedGroup
}

// cachedGroup holds a nil group when robots.txt was missing or unreadable.
type cachedGroup struct {
	group   *robotstxt.Group
	expires time.Time
}

// NewAgent constructs a robots agent from configuration.
func NewAgent(cfg config.RobotsConfig, client *http.Client) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.CacheTTL.Duration
	if ttl <= 0 {
		ttl = time.Hour
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "*"
	}
	return &Agent{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[string]cachedGroup),
	}
}

// Allowed reports whether robots.txt permits the target URL. Missing,
// unreachable or server-error robots files allow everything.
func (a *Agent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() || target.Host == "" {
		return true
	}
	group := a.group(ctx, target)
	if group == nil {
		return true
	}
	return group.Test(requestPath(target))
}

func (a *Agent) group(ctx context.Context, target *url.URL) *robotstxt.Group {
	origin := strings.ToLower(target.Scheme + "://" + target.Host)

	a.mu.Lock()
	cached, ok := a.cache[origin]
	a.mu.Unlock()
	if ok && a.now().Before(cached.expires) {
		return cached.group
	}

	var group *robotstxt.Group
	if data, err := a.fetch(ctx, origin); err == nil {
		group = data.FindGroup(a.userAgent)
	} else if ctx.Err() != nil {
		return nil
	}

	a.mu.Lock()
	a.cache[origin] = cachedGroup{group: group, expires: a.now().Add(a.ttl)}
	a.mu.Unlock()
	return group
}

func (a *Agent) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	// FromStatusAndBytes maps 5xx to disallow-all.
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("robots.txt status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

func requestPath(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}
