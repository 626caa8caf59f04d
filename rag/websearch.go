package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/ragflow/graph/tool"
	"github.com/dshills/ragflow/retrieval"
)

// ErrNoSearchResults is returned when the search engine finds nothing.
var ErrNoSearchResults = errors.New("rag: web search returned no results")

// Searcher runs a web search. *tool.TavilySearch and *tool.Mock satisfy it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]tool.SearchResult, error)
}

// Scraper fetches a page's content. *tool.FirecrawlScrape and *tool.Mock
// satisfy it.
type Scraper interface {
	Scrape(ctx context.Context, url string) (tool.Page, error)
}

// WebSearcher turns a question into documents by scraping the top search
// result.
type WebSearcher struct {
	Search Searcher
	Scrape Scraper
}

// Documents searches for question and returns the first result's page as a
// single document.
func (w *WebSearcher) Documents(ctx context.Context, question string) ([]retrieval.Document, error) {
	results, err := w.Search.Search(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	if len(results) == 0 || results[0].URL == "" {
		return nil, ErrNoSearchResults
	}
	top := results[0]

	page, err := w.Scrape.Scrape(ctx, top.URL)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", top.URL, err)
	}
	title := page.Title
	if title == "" {
		title = top.Title
	}
	return []retrieval.Document{{
		PageContent: page.Content,
		Metadata: map[string]string{
			"source": page.URL,
			"title":  title,
		},
	}}, nil
}
