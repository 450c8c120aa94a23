package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaganraajan/rag-document-parser/internal/embed"
	"github.com/jaganraajan/rag-document-parser/internal/store"
)

// nomic-embed-text expects task prefixes on queries and documents.
const (
	DefaultQueryPrefix    = "search_query: "
	DefaultDocumentPrefix = "search_document: "
)

// LocalDense is the dense backend without a hosted index: texts are embedded
// locally and searched in an HNSW graph. Text and metadata are hydrated from
// the corpus because the graph stores only ids.
type LocalDense struct {
	embedder  embed.Embedder
	index     *store.VectorIndex
	chunks    ChunkLookup
	indexPath string

	QueryPrefix    string
	DocumentPrefix string
}

// NewLocalDense wires an embedder, a vector index and the corpus. indexPath
// is where Save persists the graph; empty disables persistence.
func NewLocalDense(embedder embed.Embedder, index *store.VectorIndex, chunks ChunkLookup, indexPath string) *LocalDense {
	return &LocalDense{
		embedder:       embedder,
		index:          index,
		chunks:         chunks,
		indexPath:      indexPath,
		QueryPrefix:    DefaultQueryPrefix,
		DocumentPrefix: DefaultDocumentPrefix,
	}
}

func (d *LocalDense) Search(ctx context.Context, text string, topK int) ([]store.Hit, error) {
	if topK <= 0 {
		return []store.Hit{}, nil
	}
	vec, err := d.embedder.Embed(ctx, d.QueryPrefix+text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	nearest, err := d.index.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]store.Hit, 0, len(nearest))
	for _, n := range nearest {
		hit := store.Hit{ID: n.ID, Score: n.Score}
		ch, ok, err := d.chunks.Get(n.ID)
		if err != nil {
			return nil, fmt.Errorf("hydrate %s: %w", n.ID, err)
		}
		if ok {
			hit.Text = ch.Text
			hit.Metadata = ch.Metadata
		} else {
			slog.Debug("dense_hit_not_in_corpus", slog.String("id", n.ID))
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Upsert embeds chunk texts and adds them to the graph. Call Save to persist.
func (d *LocalDense) Upsert(ctx context.Context, chunks []store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
		texts[i] = d.DocumentPrefix + ch.Text
	}
	vecs, err := d.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	return d.index.Add(ctx, ids, vecs)
}

func (d *LocalDense) Count() int { return d.index.Count() }

// Save persists the graph to the configured path.
func (d *LocalDense) Save() error {
	if d.indexPath == "" {
		return nil
	}
	return d.index.Save(d.indexPath)
}

// Reload rereads the graph another process saved at the configured path.
func (d *LocalDense) Reload() error {
	if d.indexPath == "" {
		return nil
	}
	return d.index.Reload(d.indexPath)
}

// Clear drops every vector and the saved graph.
func (d *LocalDense) Clear(_ context.Context) error {
	return d.index.Clear(d.indexPath)
}
