package search

import (
	"context"

	"github.com/jaganraajan/rag-document-parser/internal/store"
)

// DenseSearcher answers semantic queries. Hits carry chunk text and
// metadata.
type DenseSearcher interface {
	Search(ctx context.Context, text string, topK int) ([]store.Hit, error)
}

type DenseWriter interface {
	Upsert(ctx context.Context, chunks []store.Chunk) error
}

// SparseSearcher scores a query vector by dot product against stored
// TF-IDF vectors.
type SparseSearcher interface {
	Query(ctx context.Context, vec store.SparseVector, topK int) ([]store.Hit, error)
}

type SparseWriter interface {
	Upsert(ctx context.Context, records []store.SparseRecord) error
}

// LexicalSearcher is the BM25 corpus.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, k int) ([]store.Hit, error)
}

// ChunkLookup resolves a chunk by id.
type ChunkLookup interface {
	Get(id string) (store.Chunk, bool, error)
}

var (
	_ DenseSearcher   = (*LocalDense)(nil)
	_ DenseWriter     = (*LocalDense)(nil)
	_ SparseSearcher  = (*store.SQLiteSparseIndex)(nil)
	_ SparseWriter    = (*store.SQLiteSparseIndex)(nil)
	_ LexicalSearcher = (*store.Corpus)(nil)
	_ ChunkLookup     = (*store.Corpus)(nil)
)
