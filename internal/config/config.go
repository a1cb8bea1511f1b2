package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything needed to run a dofollow check batch.
type Config struct {
	Fetch   FetchConfig   `yaml:"fetch"`
	Batch   BatchConfig   `yaml:"batch"`
	Robots  RobotsConfig  `yaml:"robots"`
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// FetchConfig controls the HTTP fetcher and its retry policy.
type FetchConfig struct {
	Timeout        Duration          `yaml:"timeout"`
	Retries        int               `yaml:"retries"`
	Backoff        []Duration        `yaml:"backoff"`
	UserAgents     []string          `yaml:"user_agents"`
	AcceptLanguage string            `yaml:"accept_language"`
	Headers        map[string]string `yaml:"headers"`
	MaxBodyBytes   int64             `yaml:"max_body_bytes"`
	MaxRedirects   int               `yaml:"max_redirects"`
	ProxyURL       string            `yaml:"proxy_url"`
}

// BatchConfig controls pacing between rows.
type BatchConfig struct {
	DelayMin           Duration        `yaml:"delay_min"`
	DelayMax           Duration        `yaml:"delay_max"`
	RateLimitPerDomain RateLimitConfig `yaml:"rate_limit_per_domain"`
}

// RateLimitConfig applies a token bucket per domain.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// RobotsConfig configures optional robots.txt annotation of results.
type RobotsConfig struct {
	Annotate  bool     `yaml:"annotate"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// InputConfig tunes how uploaded tables are read.
type InputConfig struct {
	Separators []string `yaml:"separators"`
}

// OutputConfig selects the results file format. Empty means infer from extension.
type OutputConfig struct {
	Format string `yaml:"format"`
}

// ServerConfig limits what the HTTP API accepts.
type ServerConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	MaxRows        int   `yaml:"max_rows"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// DefaultUserAgents is the browser pool a request's User-Agent is drawn from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36",
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Fetch: FetchConfig{
			Timeout: DurationFrom(25 * time.Second),
			Retries: 2,
			Backoff: []Duration{
				DurationFrom(2 * time.Second),
				DurationFrom(5 * time.Second),
			},
			UserAgents:     append([]string(nil), DefaultUserAgents...),
			AcceptLanguage: "pl,en;q=0.8",
			Headers:        map[string]string{},
			MaxBodyBytes:   10 * 1024 * 1024,
			MaxRedirects:   10,
		},
		Batch: BatchConfig{
			DelayMin: DurationFrom(500 * time.Millisecond),
			DelayMax: DurationFrom(time.Second),
		},
		Robots: RobotsConfig{
			Annotate:  false,
			UserAgent: "*",
			CacheTTL:  DurationFrom(time.Hour),
		},
		Input: InputConfig{
			Separators: []string{",", ";", "\t", "|"},
		},
		Server: ServerConfig{
			MaxUploadBytes: 10 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: false,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants.
func (c Config) Validate() error {
	if c.Fetch.Timeout.Duration <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0 (got %s)", c.Fetch.Timeout)
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must be >= 0 (got %d)", c.Fetch.Retries)
	}
	if c.Fetch.Retries > 0 && len(c.Fetch.Backoff) == 0 {
		return errors.New("fetch.backoff must list at least one delay when retries are enabled")
	}
	for i, b := range c.Fetch.Backoff {
		if b.Duration < 0 {
			return fmt.Errorf("fetch.backoff[%d] must be >= 0 (got %s)", i, b)
		}
	}
	if len(c.Fetch.UserAgents) == 0 {
		return errors.New("fetch.user_agents must include at least one value")
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0 (got %d)", c.Fetch.MaxBodyBytes)
	}
	if c.Fetch.MaxRedirects < 1 {
		return fmt.Errorf("fetch.max_redirects must be >= 1 (got %d)", c.Fetch.MaxRedirects)
	}
	if c.Batch.DelayMin.Duration < 0 || c.Batch.DelayMax.Duration < c.Batch.DelayMin.Duration {
		return fmt.Errorf("batch delay range invalid: min %s, max %s", c.Batch.DelayMin, c.Batch.DelayMax)
	}
	if rl := c.Batch.RateLimitPerDomain; rl.Requests < 0 {
		return fmt.Errorf("batch.rate_limit_per_domain.requests must be >= 0 (got %d)", rl.Requests)
	}
	if len(c.Input.Separators) == 0 {
		return errors.New("input.separators must include at least one value")
	}
	for _, sep := range c.Input.Separators {
		if len([]rune(sep)) != 1 {
			return fmt.Errorf("input separator %q must be a single character", sep)
		}
	}
	switch c.Output.Format {
	case "", "csv", "xlsx", "jsonl":
	default:
		return fmt.Errorf("unsupported output.format %q", c.Output.Format)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be > 0 (got %d)", c.Server.MaxUploadBytes)
	}
	if c.Server.MaxRows < 0 {
		return fmt.Errorf("server.max_rows must be >= 0 (got %d)", c.Server.MaxRows)
	}
	if c.Robots.Annotate && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.annotate is true")
	}
	return nil
}

func (c *Config) normalise() {
	agents := make([]string, 0, len(c.Fetch.UserAgents))
	for _, ua := range c.Fetch.UserAgents {
		if ua = strings.TrimSpace(ua); ua != "" {
			agents = append(agents, ua)
		}
	}
	c.Fetch.UserAgents = agents
	c.Fetch.AcceptLanguage = strings.TrimSpace(c.Fetch.AcceptLanguage)
	c.Fetch.ProxyURL = strings.TrimSpace(c.Fetch.ProxyURL)
	if c.Fetch.Headers == nil {
		c.Fetch.Headers = make(map[string]string)
	}
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

// Enabled reports whether per-domain rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// BackoffSchedule returns the retry delays as plain durations.
func (f FetchConfig) BackoffSchedule() []time.Duration {
	out := make([]time.Duration, len(f.Backoff))
	for i, b := range f.Backoff {
		out[i] = b.Duration
	}
	return out
}
