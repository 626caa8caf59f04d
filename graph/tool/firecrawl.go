package tool

import (
	"context"
	"errors"
	"net/http"
)

// FirecrawlURL is the Firecrawl single-page scrape endpoint.
const FirecrawlURL = "https://api.firecrawl.dev/v1/scrape"

// FirecrawlScrape fetches a single page through Firecrawl and returns it as
// markdown.
type FirecrawlScrape struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// FirecrawlOption configures a FirecrawlScrape.
type FirecrawlOption func(*FirecrawlScrape)

// WithFirecrawlEndpoint overrides FirecrawlURL.
func WithFirecrawlEndpoint(url string) FirecrawlOption {
	return func(f *FirecrawlScrape) { f.endpoint = url }
}

// WithFirecrawlHTTPClient replaces the default HTTP client.
func WithFirecrawlHTTPClient(c *http.Client) FirecrawlOption {
	return func(f *FirecrawlScrape) { f.client = c }
}

// NewFirecrawlScrape creates a scrape tool authenticated with apiKey.
func NewFirecrawlScrape(apiKey string, opts ...FirecrawlOption) *FirecrawlScrape {
	f := &FirecrawlScrape{apiKey: apiKey, endpoint: FirecrawlURL, client: defaultHTTPClient()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ErrScrapeFailed is returned when Firecrawl answers with success=false.
var ErrScrapeFailed = errors.New("firecrawl: scrape failed")

type firecrawlRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title     string `json:"title"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
}

// Scrape fetches url and returns its markdown content.
func (f *FirecrawlScrape) Scrape(ctx context.Context, url string) (Page, error) {
	if f.apiKey == "" {
		return Page{}, ErrMissingAPIKey
	}

	var resp firecrawlResponse
	if err := postJSON(ctx, f.client, f.Name(), f.endpoint, f.apiKey,
		firecrawlRequest{URL: url, Formats: []string{"markdown"}}, &resp); err != nil {
		return Page{}, err
	}
	if !resp.Success {
		return Page{}, errors.Join(ErrScrapeFailed, errors.New(resp.Error))
	}

	page := Page{URL: resp.Data.Metadata.SourceURL, Title: resp.Data.Metadata.Title, Content: resp.Data.Markdown}
	if page.URL == "" {
		page.URL = url
	}
	return page, nil
}

// Name identifies the tool in errors and logs.
func (f *FirecrawlScrape) Name() string {
	return "firecrawl_scrape"
}
