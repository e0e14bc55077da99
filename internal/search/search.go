// Package search wraps the web-search collaborator. The engine only
// depends on the Client interface; the Brave implementation is what
// production runs use.
package search

import "context"

// Result is one ranked search hit
type Result struct {
	URL     string
	Title   string
	Snippet string
}

// Client performs a web search and returns ranked results. Empty result
// lists are valid; malformed entries are dropped, never surfaced.
type Client interface {
	Search(ctx context.Context, query string, count int) ([]Result, error)
}
