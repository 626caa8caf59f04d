package tool

import (
	"context"
	"net/http"
	"strings"
)

const (
	// TavilyURL is the Tavily search endpoint.
	TavilyURL = "https://api.tavily.com/search"

	// DefaultMaxResults is the number of hits TavilySearch requests.
	DefaultMaxResults = 2
)

// TavilySearch queries the Tavily web search API.
type TavilySearch struct {
	apiKey     string
	endpoint   string
	maxResults int
	client     *http.Client
}

// TavilyOption configures a TavilySearch.
type TavilyOption func(*TavilySearch)

// WithTavilyEndpoint overrides TavilyURL.
func WithTavilyEndpoint(url string) TavilyOption {
	return func(t *TavilySearch) { t.endpoint = url }
}

// WithMaxResults overrides DefaultMaxResults. Non-positive values are
// ignored.
func WithMaxResults(n int) TavilyOption {
	return func(t *TavilySearch) {
		if n > 0 {
			t.maxResults = n
		}
	}
}

// WithTavilyHTTPClient replaces the default HTTP client.
func WithTavilyHTTPClient(c *http.Client) TavilyOption {
	return func(t *TavilySearch) { t.client = c }
}

// NewTavilySearch creates a search tool authenticated with apiKey.
func NewTavilySearch(apiKey string, opts ...TavilyOption) *TavilySearch {
	t := &TavilySearch{
		apiKey:     apiKey,
		endpoint:   TavilyURL,
		maxResults: DefaultMaxResults,
		client:     defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []SearchResult `json:"results"`
}

// Search returns at most the configured number of results, in the order
// Tavily ranks them.
func (t *TavilySearch) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if t.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	var resp tavilyResponse
	if err := postJSON(ctx, t.client, t.Name(), t.endpoint, t.apiKey,
		tavilyRequest{Query: query, MaxResults: t.maxResults}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) > t.maxResults {
		resp.Results = resp.Results[:t.maxResults]
	}
	return resp.Results, nil
}

// Name identifies the tool in errors and logs.
func (t *TavilySearch) Name() string {
	return "tavily_search"
}
