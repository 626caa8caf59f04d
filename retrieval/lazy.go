package retrieval

import (
	"context"
	"sync"
)

// Lazy builds its Retriever on first use and reuses it afterwards.
//
// A failed build is not cached: the next Retrieve tries again. Concurrent
// first calls wait for a single build.
type Lazy struct {
	build func(ctx context.Context) (Retriever, error)

	mu        sync.Mutex
	retriever Retriever
}

// NewLazy wraps build.
func NewLazy(build func(ctx context.Context) (Retriever, error)) *Lazy {
	return &Lazy{build: build}
}

// Retrieve builds the retriever if needed and delegates to it.
func (l *Lazy) Retrieve(ctx context.Context, query string) ([]Document, error) {
	r, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return r.Retrieve(ctx, query)
}

func (l *Lazy) get(ctx context.Context) (Retriever, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.retriever != nil {
		return l.retriever, nil
	}
	r, err := l.build(ctx)
	if err != nil {
		return nil, err
	}
	l.retriever = r
	return r, nil
}

// Ingest loads urls, splits them and adds the chunks to idx. It returns the
// number of chunks added.
func Ingest(ctx context.Context, loader *Loader, splitter *Splitter, idx Index, urls []string) (int, error) {
	docs, err := loader.LoadURLs(ctx, urls)
	if err != nil {
		return 0, err
	}
	chunks := splitter.SplitDocuments(docs)
	if err := idx.Add(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}
