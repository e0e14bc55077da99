package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsGate checks robots.txt compliance before a page is fetched
type RobotsGate struct {
	cache      map[string]*robotstxt.RobotsData
	mu         sync.RWMutex
	httpClient *http.Client
	userAgent  string
}

// NewRobotsGate creates a new robots.txt gate
func NewRobotsGate(userAgent string, timeout time.Duration) *RobotsGate {
	return &RobotsGate{
		cache: make(map[string]*robotstxt.RobotsData),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// CanFetch reports whether the URL may be fetched and any crawl delay
// the site requests. When robots.txt itself is unreachable the fetch is
// allowed: long unattended runs should not stall on a missing file.
func (g *RobotsGate) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", parsed.Scheme, parsed.Host)

	data, err := g.robotsData(ctx, parsed.Host, robotsURL)
	if err != nil {
		return true, 0, nil
	}

	allowed := data.TestAgent(parsed.Path, g.userAgent)

	var crawlDelay time.Duration
	if group := data.FindGroup(g.userAgent); group != nil {
		crawlDelay = group.CrawlDelay
	}
	// A hostile crawl-delay must not eat the whole cycle budget
	if crawlDelay > 10*time.Second {
		crawlDelay = 10 * time.Second
	}

	return allowed, crawlDelay, nil
}

func (g *RobotsGate) robotsData(ctx context.Context, host, robotsURL string) (*robotstxt.RobotsData, error) {
	g.mu.RLock()
	data, ok := g.cache[host]
	g.mu.RUnlock()
	if ok {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err = robotstxt.FromResponse(resp)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.cache[host] = data
	g.mu.Unlock()

	return data, nil
}
