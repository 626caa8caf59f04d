// Package retrieval loads web pages, splits them into chunks, embeds the
// chunks and answers similarity queries over them.
//
// The agent's retrieve node depends only on Retriever. MemoryIndex keeps
// vectors in process; PGVector stores them in Postgres with the pgvector
// extension.
package retrieval

import "context"

// Document is a piece of text with provenance metadata.
type Document struct {
	PageContent string            `json:"pageContent" channel:"pageContent"`
	Metadata    map[string]string `json:"metadata,omitempty" channel:"metadata"`
}

// Source returns the "source" metadata entry, usually the page URL.
func (d Document) Source() string {
	return d.Metadata["source"]
}

// Retriever returns the documents most relevant to query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string) ([]Document, error)

// Retrieve calls f.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string) ([]Document, error) {
	return f(ctx, query)
}

// Index is a Retriever that can be filled with documents.
type Index interface {
	Retriever
	Add(ctx context.Context, docs []Document) error
}

// DefaultTopK is the number of documents a Retrieve call returns.
const DefaultTopK = 4

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
