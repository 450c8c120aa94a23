package pinecone

import (
	"context"
	"fmt"

	pc "github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jaganraajan/rag-document-parser/internal/store"
)

// SparseIndex stores TF-IDF vectors built locally.
type SparseIndex struct {
	c       *client
	maxText int
}

func NewSparseIndex(cfg Config) *SparseIndex {
	return &SparseIndex{c: newClient(cfg, BackendSparse), maxText: store.DefaultMaxStoredText}
}

// Upsert skips records whose vector is empty; Pinecone rejects them.
func (s *SparseIndex) Upsert(ctx context.Context, records []store.SparseRecord) error {
	vectors := make([]*pc.Vector, 0, len(records))
	for _, r := range records {
		if r.Vector.IsEmpty() {
			continue
		}
		meta, err := metadataStruct(store.StoredFields(r.Text, r.Metadata, s.maxText))
		if err != nil {
			return fmt.Errorf("metadata for %s: %w", r.ID, err)
		}
		vectors = append(vectors, &pc.Vector{
			Id:           r.ID,
			SparseValues: sparseValues(r.Vector),
			Metadata:     meta,
		})
	}
	if len(vectors) == 0 {
		return nil
	}
	return s.c.call(ctx, "upsert_vectors", func(dp dataPlane) error {
		_, err := dp.UpsertVectors(ctx, vectors)
		return err
	})
}

func (s *SparseIndex) Query(ctx context.Context, vec store.SparseVector, topK int) ([]store.Hit, error) {
	if vec.IsEmpty() || topK <= 0 {
		return nil, nil
	}
	req := &pc.QueryByVectorValuesRequest{
		TopK:            uint32(topK),
		SparseValues:    sparseValues(vec),
		IncludeMetadata: true,
	}
	var resp *pc.QueryVectorsResponse
	err := s.c.call(ctx, "query", func(dp dataPlane) error {
		var err error
		resp, err = dp.QueryByVectorValues(ctx, req)
		return err
	})
	if err != nil || resp == nil {
		return nil, err
	}

	hits := make([]store.Hit, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		fields := m.Vector.Metadata.AsMap()
		text, _ := fields[store.TextField].(string)
		hits = append(hits, store.Hit{
			ID:       m.Vector.Id,
			Score:    float64(m.Score),
			Text:     text,
			Metadata: store.UnflattenMetadata(fields),
		})
	}
	return hits, nil
}

// Clear deletes every vector in the namespace.
func (s *SparseIndex) Clear(ctx context.Context) error { return s.c.deleteAll(ctx) }

func (s *SparseIndex) Count(ctx context.Context) (int, error) { return s.c.namespaceCount(ctx) }

func (s *SparseIndex) Close() error { return s.c.close() }

func sparseValues(v store.SparseVector) *pc.SparseValues {
	sv := &pc.SparseValues{
		Indices: make([]uint32, len(v.Indices)),
		Values:  make([]float32, len(v.Values)),
	}
	for i, idx := range v.Indices {
		sv.Indices[i] = uint32(idx)
	}
	for i, val := range v.Values {
		sv.Values[i] = float32(val)
	}
	return sv
}

// metadataStruct converts stored fields to protobuf. String lists become
// []any, the only list shape structpb accepts.
func metadataStruct(fields map[string]any) (*pc.Metadata, error) {
	conv := make(map[string]any, len(fields))
	for k, v := range fields {
		if list, ok := v.([]string); ok {
			items := make([]any, len(list))
			for i, s := range list {
				items[i] = s
			}
			v = items
		}
		conv[k] = v
	}
	return structpb.NewStruct(conv)
}
