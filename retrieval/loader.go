package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// maxPageBytes caps how much of a page the loader reads.
const maxPageBytes = 8 << 20

// Loader fetches web pages and extracts their readable text.
type Loader struct {
	Client *http.Client

	// Concurrency bounds parallel fetches in LoadURLs. Zero means 4.
	Concurrency int
}

// NewLoader returns a Loader with a 30 second request timeout.
func NewLoader() *Loader {
	return &Loader{Client: &http.Client{Timeout: 30 * time.Second}}
}

// LoadURL fetches url and returns its text as one Document with "source"
// and "title" metadata.
func (l *Loader) LoadURL(ctx context.Context, url string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("load %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "ragflow-loader/1.0")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("load %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("load %s: HTTP %d", url, resp.StatusCode)
	}

	title, text, err := ExtractText(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Document{}, fmt.Errorf("load %s: %w", url, err)
	}
	return Document{
		PageContent: text,
		Metadata:    map[string]string{"source": url, "title": title},
	}, nil
}

// LoadURLs fetches every URL concurrently and returns the documents in the
// order of urls. The first failure cancels the remaining fetches.
func (l *Loader) LoadURLs(ctx context.Context, urls []string) ([]Document, error) {
	docs := make([]Document, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	limit := l.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i, url := range urls {
		g.Go(func() error {
			doc, err := l.LoadURL(gctx, url)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// skipped elements never contribute text.
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"svg": true, "nav": true, "footer": true,
}

// block elements end the current line of text.
var block = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "pre": true, "blockquote": true, "table": true, "ul": true, "ol": true,
}

// ExtractText parses an HTML document and returns its title and visible
// text. Block elements become paragraph breaks and runs of whitespace inside
// a paragraph collapse to one space.
func ExtractText(r io.Reader) (title, text string, err error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	var (
		paragraphs []string
		current    strings.Builder
	)
	flush := func() {
		if p := strings.Join(strings.Fields(current.String()), " "); p != "" {
			paragraphs = append(paragraphs, p)
		}
		current.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" {
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
			if skipped[n.Data] {
				return
			}
			if block[n.Data] {
				flush()
			}
		}
		if n.Type == html.TextNode {
			current.WriteString(n.Data)
			current.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && block[n.Data] {
			flush()
		}
	}
	walk(root)
	flush()

	return title, strings.Join(paragraphs, "\n\n"), nil
}
