package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"dofollow-checker/pkg/types"
)

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*types.FetchResult, error)
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgents     []string
	AcceptLanguage string
	Headers        map[string]string
	Timeout        time.Duration
	MaxBodyBytes   int64
	MaxRedirects   int
	ProxyURL       string
}

// HTTPFetcher issues GET requests with a rotating User-Agent.
type HTTPFetcher struct {
	client       *http.Client
	userAgents   []string
	baseHeader   http.Header
	maxBodyBytes int64
	pick         func(n int) int
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}

	client, err := newClient(opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	header.Set("Accept-Encoding", "gzip, deflate, br")
	if opts.AcceptLanguage != "" {
		header.Set("Accept-Language", opts.AcceptLanguage)
	}
	for k, v := range opts.Headers {
		header.Set(k, v)
	}

	return &HTTPFetcher{
		client:       client,
		userAgents:   append([]string(nil), opts.UserAgents...),
		baseHeader:   header,
		maxBodyBytes: opts.MaxBodyBytes,
		pick:         rand.Intn,
	}, nil
}

func newClient(opts Options) (*http.Client, error) {
	proxy := http.ProxyFromEnvironment
	if raw := strings.TrimSpace(opts.ProxyURL); raw != "" {
		proxyURL, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		proxy = http.ProxyURL(proxyURL)
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	limit := opts.MaxRedirects
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			Proxy:               proxy,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		},
	}, nil
}

// Fetch performs one GET, following redirects. HTTP error statuses are returned
// as results, not errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*types.FetchResult, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &InvalidURLError{URL: rawURL, Err: err}
	}
	req.Header = f.baseHeader.Clone()
	if len(f.userAgents) > 0 {
		req.Header.Set("User-Agent", f.userAgents[f.pick(len(f.userAgents))])
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "get", Err: err}
	}
	defer resp.Body.Close()

	body, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	return &types.FetchResult{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Attempts:    1,
	}, nil
}

// readBody decodes the Content-Encoding and enforces the size cap.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	encoding := resp.Header.Get("Content-Encoding")
	decoded, err := decodeBody(encoding, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", encoding, err)
	}
	defer decoded.Close()

	body, err := io.ReadAll(io.LimitReader(decoded, f.maxBodyBytes+1))
	if err != nil {
		return nil, &TransportError{Op: "read body", Err: err}
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return body, nil
}

func decodeBody(encoding string, body io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		return gzip.NewReader(body)
	case "deflate":
		return flate.NewReader(body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	default:
		return io.NopCloser(body), nil
	}
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &InvalidURLError{URL: rawURL, Err: err}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return &InvalidURLError{URL: rawURL, Err: errors.New("scheme must be http or https")}
	}
	if u.Host == "" {
		return &InvalidURLError{URL: rawURL, Err: errors.New("missing host")}
	}
	return nil
}

// Client exposes the underlying HTTP client for reuse (eg. robots.txt fetches).
func (f *HTTPFetcher) Client() *http.Client {
	if f == nil {
		return nil
	}
	return f.client
}
