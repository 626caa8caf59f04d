package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrEmptyIndex is returned by Retrieve on an index with no documents.
var ErrEmptyIndex = errors.New("retrieval: index is empty")

type entry struct {
	doc    Document
	vector []float32
}

// MemoryIndex is an in-process vector index ranked by cosine similarity.
// It is safe for concurrent use.
type MemoryIndex struct {
	embedder Embedder
	topK     int

	mu      sync.RWMutex
	entries []entry
}

// NewMemoryIndex creates an empty index returning topK documents per query
// (DefaultTopK when topK <= 0).
func NewMemoryIndex(embedder Embedder, topK int) *MemoryIndex {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &MemoryIndex{embedder: embedder, topK: topK}
}

// Add embeds docs and appends them to the index.
func (m *MemoryIndex) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("index documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("index documents: got %d vectors for %d documents", len(vectors), len(docs))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range docs {
		m.entries = append(m.entries, entry{doc: d, vector: vectors[i]})
	}
	return nil
}

// Retrieve returns the topK documents most similar to query. Ties keep
// insertion order.
func (m *MemoryIndex) Retrieve(ctx context.Context, query string) ([]Document, error) {
	m.mu.RLock()
	n := len(m.entries)
	m.mu.RUnlock()
	if n == 0 {
		return nil, ErrEmptyIndex
	}

	vectors, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}
	q := vectors[0]

	type scored struct {
		idx   int
		score float64
	}

	m.mu.RLock()
	ranked := make([]scored, len(m.entries))
	for i, e := range m.entries {
		ranked[i] = scored{idx: i, score: cosine(q, e.vector)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	k := min(m.topK, len(ranked))
	out := make([]Document, k)
	for i := range k {
		d := m.entries[ranked[i].idx].doc
		out[i] = Document{PageContent: d.PageContent, Metadata: cloneMetadata(d.Metadata)}
	}
	m.mu.RUnlock()
	return out, nil
}

// Len returns the number of indexed documents.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
