package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DefaultDimensions matches DefaultEmbeddingModel.
const DefaultDimensions = 1536

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVector is an Index stored in a Postgres table with a pgvector column.
// Similarity is cosine distance (the <=> operator).
type PGVector struct {
	pool       *pgxpool.Pool
	embedder   Embedder
	table      string
	dimensions int
	topK       int
}

// PGVectorOption configures a PGVector.
type PGVectorOption func(*PGVector)

// WithTable sets the table name (default "documents").
func WithTable(name string) PGVectorOption {
	return func(p *PGVector) { p.table = name }
}

// WithDimensions sets the embedding dimension (default DefaultDimensions).
func WithDimensions(n int) PGVectorOption {
	return func(p *PGVector) { p.dimensions = n }
}

// WithTopK sets how many documents Retrieve returns (default DefaultTopK).
func WithTopK(k int) PGVectorOption {
	return func(p *PGVector) { p.topK = k }
}

// NewPGVector connects to the database at dsn. Call EnsureSchema before
// first use on a fresh database.
func NewPGVector(ctx context.Context, dsn string, embedder Embedder, opts ...PGVectorOption) (*PGVector, error) {
	p := &PGVector{embedder: embedder, table: "documents", dimensions: DefaultDimensions, topK: DefaultTopK}
	for _, opt := range opts {
		opt(p)
	}
	if !identifier.MatchString(p.table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", p.table)
	}
	if p.dimensions <= 0 || p.topK <= 0 {
		return nil, fmt.Errorf("pgvector: dimensions and topK must be positive")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}
	p.pool = pool
	return p, nil
}

// EnsureSchema creates the vector extension and the documents table.
func (p *PGVector) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL
		)`, p.table, p.dimensions),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: ensure schema: %w", err)
		}
	}
	return nil
}

// Add embeds docs and inserts them in one batch.
func (p *PGVector) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("pgvector: embed: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("pgvector: got %d vectors for %d documents", len(vectors), len(docs))
	}

	insert := fmt.Sprintf(`INSERT INTO %s (content, metadata, embedding) VALUES ($1, $2, $3)`, p.table)
	batch := &pgx.Batch{}
	for i, d := range docs {
		meta, err := json.Marshal(metadataOrEmpty(d.Metadata))
		if err != nil {
			return fmt.Errorf("pgvector: encode metadata: %w", err)
		}
		batch.Queue(insert, d.PageContent, meta, pgvector.NewVector(vectors[i]))
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector: insert: %w", err)
	}
	return nil
}

// Retrieve returns the topK nearest documents to query.
func (p *PGVector) Retrieve(ctx context.Context, query string) ([]Document, error) {
	vectors, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("pgvector: embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("pgvector: got %d query vectors", len(vectors))
	}

	rows, err := p.pool.Query(ctx,
		fmt.Sprintf(`SELECT content, metadata FROM %s ORDER BY embedding <=> $1 LIMIT $2`, p.table),
		pgvector.NewVector(vectors[0]), p.topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: query: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			d    Document
			meta []byte
		)
		if err := rows.Scan(&d.PageContent, &meta); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, fmt.Errorf("pgvector: decode metadata: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: rows: %w", err)
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (p *PGVector) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, p.table)).Scan(&n)
	return n, err
}

// Close releases the connection pool.
func (p *PGVector) Close() {
	p.pool.Close()
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
