package pinecone

import (
	"context"
	"strings"

	pc "github.com/pinecone-io/go-pinecone/v3/pinecone"

	"github.com/jaganraajan/rag-document-parser/internal/store"
)

// DenseIndex talks to an index with integrated embedding. Pinecone embeds the
// chunk_text field server side, so no vectors leave this process.
type DenseIndex struct {
	c       *client
	maxText int
}

func NewDenseIndex(cfg Config) *DenseIndex {
	return &DenseIndex{c: newClient(cfg, BackendDense), maxText: store.DefaultMaxStoredText}
}

// Upsert writes chunks as records carrying _id, chunk_text and the
// flattened metadata.
func (d *DenseIndex) Upsert(ctx context.Context, chunks []store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	records := make([]*pc.IntegratedRecord, 0, len(chunks))
	for _, ch := range chunks {
		rec := pc.IntegratedRecord(store.StoredFields(ch.Text, ch.Metadata, d.maxText))
		rec["_id"] = ch.ID
		records = append(records, &rec)
	}
	return d.c.call(ctx, "upsert_records", func(dp dataPlane) error {
		return dp.UpsertRecords(ctx, records)
	})
}

// Search embeds text server side and returns the topK nearest records.
func (d *DenseIndex) Search(ctx context.Context, text string, topK int) ([]store.Hit, error) {
	if strings.TrimSpace(text) == "" || topK <= 0 {
		return nil, nil
	}
	inputs := map[string]interface{}{"text": text}
	req := &pc.SearchRecordsRequest{
		Query: pc.SearchRecordsQuery{TopK: int32(topK), Inputs: &inputs},
	}
	var resp *pc.SearchRecordsResponse
	err := d.c.call(ctx, "search_records", func(dp dataPlane) error {
		var err error
		resp, err = dp.SearchRecords(ctx, req)
		return err
	})
	if err != nil || resp == nil {
		return nil, err
	}

	hits := make([]store.Hit, 0, len(resp.Result.Hits))
	for _, h := range resp.Result.Hits {
		hits = append(hits, store.Hit{
			ID:       h.Id,
			Score:    float64(h.Score),
			Text:     hitText(h.Fields),
			Metadata: store.UnflattenMetadata(h.Fields),
		})
	}
	return hits, nil
}

func hitText(fields map[string]any) string {
	for _, k := range []string{store.TextField, "text"} {
		if s, ok := fields[k].(string); ok {
			return s
		}
	}
	return ""
}

// Clear deletes every record in the namespace.
func (d *DenseIndex) Clear(ctx context.Context) error { return d.c.deleteAll(ctx) }

// Count reports the records stored in the namespace.
func (d *DenseIndex) Count(ctx context.Context) (int, error) { return d.c.namespaceCount(ctx) }

func (d *DenseIndex) Close() error { return d.c.close() }
