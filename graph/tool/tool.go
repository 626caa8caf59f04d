// Package tool provides the external tools the agent calls: Tavily web
// search and Firecrawl page scraping, plus a scriptable mock.
//
// Workflow nodes call the typed methods (Search, Scrape) directly.
package tool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Page is the scraped content of a web page.
type Page struct {
	URL     string
	Title   string
	Content string
}

// ErrMissingAPIKey is returned when a tool is called without credentials.
var ErrMissingAPIKey = errors.New("tool: missing API key")

// HTTPError is a non-2xx response from a tool API.
type HTTPError struct {
	Tool       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Tool, e.StatusCode, e.Body)
}

// IsTransient reports whether err is worth retrying: rate limiting, a
// server-side failure, or a request timeout. It fits
// graph.RetryPolicy.Retryable.
func IsTransient(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests ||
			httpErr.StatusCode == http.StatusRequestTimeout ||
			httpErr.StatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}
