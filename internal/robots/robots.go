// Package robots enforces robots.txt for outbound fetches.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

// Config controls robots.txt fetching and caching.
type Config struct {
	UserAgent    string
	CacheTTL     time.Duration
	FetchTimeout time.Duration
}

// Checker caches per-host robots.txt data and answers fetch permission queries.
type Checker struct {
	cfg    Config
	cache  *gocache.Cache
	client *http.Client
}

// New creates a Checker.
func New(cfg Config) *Checker {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Checker{
		cfg:   cfg,
		cache: gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		client: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
	}
}

// Allowed reports whether the URL may be fetched according to robots.txt.
// A missing or unreachable robots.txt allows the fetch.
func (c *Checker) Allowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Host == "" {
		return false, fmt.Errorf("url %q has no host", rawURL)
	}

	data, err := c.robotsData(ctx, parsed)
	if err != nil {
		// Can't know either way; err on the side of fetching.
		return true, nil
	}
	if data == nil {
		return true, nil
	}
	group := data.FindGroup(c.cfg.UserAgent)
	if group == nil {
		return true, nil
	}
	return group.Test(parsed.Path), nil
}

func (c *Checker) robotsData(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	key := target.Scheme + "://" + target.Host
	if cached, found := c.cache.Get(key); found {
		data, _ := cached.(*robotstxt.RobotsData)
		return data, nil
	}

	robotsURL := key + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	c.cache.Set(key, data, gocache.DefaultExpiration)
	return data, nil
}
