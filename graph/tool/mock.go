package tool

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an offline stand-in for TavilySearch and FirecrawlScrape.
//
// Search returns Results (truncated to MaxResults when set) and Scrape
// returns Pages[url]; an unknown URL is an error. Err, when set, fails
// every call. Requests are recorded for assertions.
type Mock struct {
	Results    []SearchResult
	MaxResults int
	Pages      map[string]Page
	Err        error

	mu       sync.Mutex
	queries  []string
	scraped  []string
}

// Search records query and returns the scripted results.
func (m *Mock) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, query)
	if m.Err != nil {
		return nil, m.Err
	}
	results := append([]SearchResult(nil), m.Results...)
	if m.MaxResults > 0 && len(results) > m.MaxResults {
		results = results[:m.MaxResults]
	}
	return results, nil
}

// Scrape records url and returns the scripted page.
func (m *Mock) Scrape(ctx context.Context, url string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scraped = append(m.scraped, url)
	if m.Err != nil {
		return Page{}, m.Err
	}
	page, ok := m.Pages[url]
	if !ok {
		return Page{}, &HTTPError{Tool: "mock", StatusCode: 404, Body: fmt.Sprintf("no page for %s", url)}
	}
	return page, nil
}

// Queries returns the recorded search queries.
func (m *Mock) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// Scraped returns the recorded scrape URLs.
func (m *Mock) Scraped() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.scraped...)
}
