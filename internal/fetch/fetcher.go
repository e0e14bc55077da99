// Package fetch turns URLs into plain article text. It layers robots.txt
// compliance, per-domain rate limiting, retry with backoff, and a page
// cache under a single Fetch call.
package fetch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"prospector/internal/cache"
	"prospector/internal/model"
	"prospector/internal/worker"
)

// Page is the extracted plain-text content of a fetched URL
type Page struct {
	URL        string    `json:"url"`
	FinalURL   string    `json:"final_url"`
	Title      string    `json:"title,omitempty"`
	Text       string    `json:"text"`
	StatusCode int       `json:"status_code"`
	FetchedAt  time.Time `json:"fetched_at"`
	FromCache  bool      `json:"-"`
}

// Client fetches a URL's readable text
type Client interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// ErrRobotsDisallowed marks URLs that robots.txt forbids. Not retryable.
var ErrRobotsDisallowed = errors.New("robots.txt disallows fetch")

// Overridable for fast tests
var fetchSleepFunc = func(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Fetcher implements Client over HTTP
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	maxRetries int
	robots     *RobotsGate
	limiter    *worker.Limiter
	pageCache  cache.Cache // nil disables caching
}

func newProxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}

// NewFetcher creates a new Fetcher. maxRetries bounds re-attempts after
// transient failures; pageCache may be nil.
func NewFetcher(cfg model.HTTPConfig, maxRetries int, limiter *worker.Limiter, pageCache cache.Cache) *Fetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: newProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
	}
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	maxBytes := cfg.MaxBodyBytes
	if maxBytes == 0 {
		maxBytes = 2_000_000
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		maxRetries: maxRetries,
		robots:     NewRobotsGate(cfg.UserAgent, timeout),
		limiter:    limiter,
		pageCache:  pageCache,
	}
}

// Fetch retrieves the URL's readable text, retrying transient failures
// up to the configured bound. All failures come back as
// *model.TransientFetchError except robots.txt denials.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if f.pageCache != nil {
		if data, found := f.pageCache.Get(cache.Key(rawURL)); found {
			var page Page
			if err := json.Unmarshal(data, &page); err == nil {
				page.FromCache = true
				return &page, nil
			}
		}
	}

	allowed, crawlDelay, err := f.robots.CanFetch(ctx, rawURL)
	if err != nil {
		return nil, &model.TransientFetchError{URL: rawURL, Err: err}
	}
	if !allowed {
		return nil, ErrRobotsDisallowed
	}

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			fetchSleepFunc(ctx, time.Duration(attempt)*2*time.Second)
		}
		if err := ctx.Err(); err != nil {
			return nil, &model.TransientFetchError{URL: rawURL, Err: err}
		}

		if f.limiter != nil {
			if err := f.limiter.WaitWithDelay(ctx, rawURL, crawlDelay); err != nil {
				return nil, &model.TransientFetchError{URL: rawURL, Err: err}
			}
		}

		page, retryable, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			if f.pageCache != nil {
				if data, merr := json.Marshal(page); merr == nil {
					_ = f.pageCache.Set(cache.Key(rawURL), data, 0)
				}
			}
			return page, nil
		}

		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, &model.TransientFetchError{URL: rawURL, Err: lastErr}
}

// fetchOnce performs a single HTTP round trip. The bool reports whether
// the failure is worth retrying.
func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Page, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// proceed
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("status %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}

	finalURL := resp.Request.URL.String()
	title, text := extractReadable(string(body), resp.Request.URL)
	if strings.TrimSpace(text) == "" {
		return nil, false, fmt.Errorf("no extractable text")
	}

	return &Page{
		URL:        rawURL,
		FinalURL:   finalURL,
		Title:      title,
		Text:       text,
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now().UTC(),
	}, false, nil
}
