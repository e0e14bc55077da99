package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"prospector/internal/model"
)

const defaultBraveBaseURL = "https://api.search.brave.com/res/v1"

// BraveClient implements Client against the Brave Search API
type BraveClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewBraveClient creates a new Brave Search client
func NewBraveClient(cfg model.SearchConfig) (*BraveClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Brave Search API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBraveBaseURL
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &BraveClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Brave API response structures (only the fields we read)
type braveResponse struct {
	Web braveWebResults `json:"web"`
}

type braveWebResults struct {
	Results []braveResult `json:"results"`
}

type braveResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Search runs one query and returns up to count results. Entries with a
// missing or non-HTTP URL are dropped rather than failing the query.
func (c *BraveClient) Search(ctx context.Context, query string, count int) ([]Result, error) {
	if count <= 0 {
		count = 5
	}

	endpoint := fmt.Sprintf("%s/web/search?q=%s&count=%d", c.baseURL, url.QueryEscape(query), count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.CollaboratorUnavailableError{Collaborator: "search", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &model.CollaboratorUnavailableError{Collaborator: "search", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &model.CollaboratorUnavailableError{
			Collaborator: "search",
			Err:          fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &model.CollaboratorUnavailableError{
			Collaborator: "search",
			Err:          fmt.Errorf("decode response: %w", err),
		}
	}

	results := make([]Result, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		if !validResultURL(r.URL) {
			continue
		}
		results = append(results, Result{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: r.Description,
		})
		if len(results) == count {
			break
		}
	}

	return results, nil
}

func validResultURL(raw string) bool {
	if raw == "" {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
