// Package search fuses dense and sparse retrieval into one ranked list.
//
// The engine queries the dense backend, the sparse backend and the local
// BM25 corpus concurrently. Dense and sparse hits are merged by id and
// ranked with a weighted sum of min-max normalized scores plus the lexical
// overlap between query and chunk text. An optional cross-encoder pass
// reorders the head of the list. A source that fails or times out is
// degraded to empty and reported in Response.Degraded; it never fails the
// query.
package search

import (
	"time"

	"github.com/jaganraajan/rag-document-parser/internal/store"
)

// Source records where a ranked result came from.
type Source string

const (
	SourceDense      Source = "dense"
	SourceSparse     Source = "sparse"
	SourceBoth       Source = "both"
	SourceDenseOnly  Source = "dense_only"
	SourceSparseOnly Source = "sparse_only"
)

// Retrieval names used as keys of Response.Degraded and metric labels.
const (
	RetrievalDense  = "dense"
	RetrievalSparse = "sparse"
	RetrievalBM25   = "bm25"
	RetrievalRerank = "cross_encoder"
)

// Candidate is one merged document before ranking. A score of zero means
// the document was absent from that source.
type Candidate struct {
	ID          string
	Text        string
	Metadata    map[string]any
	DenseScore  float64
	SparseScore float64
	Source      Source
}

// ScoreBreakdown holds the normalized inputs of the relevance score.
type ScoreBreakdown struct {
	Dense   float64 `json:"dense"`
	Sparse  float64 `json:"sparse"`
	Overlap float64 `json:"overlap"`
}

type ScoredResult struct {
	ID          string         `json:"id"`
	Text        string         `json:"text"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Source      Source         `json:"source"`
	DenseScore  float64        `json:"dense_score"`
	SparseScore float64        `json:"sparse_score"`
	Relevance   float64        `json:"relevance_score"`
	Breakdown   ScoreBreakdown `json:"breakdown"`
	// RerankScore is set only when the cross-encoder stage ran.
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// Weights of the relevance formula.
type Weights struct {
	Dense   float64
	Sparse  float64
	Overlap float64
}

func DefaultWeights() Weights {
	return Weights{Dense: 0.5, Sparse: 0.3, Overlap: 0.2}
}

// NormalizationMode decides what happens to the weight of a missing source
// in single-source ranking.
type NormalizationMode string

const (
	// NormalizationPreserve drops the missing weight, so relevance tops out
	// below 1.
	NormalizationPreserve NormalizationMode = "preserve"
	// NormalizationRedistribute rescales the remaining weights to sum to 1.
	NormalizationRedistribute NormalizationMode = "redistribute"
)

// Options override the engine defaults for one query. Zero fields keep the
// engine configuration.
type Options struct {
	TopKDense  int
	TopKSparse int
	TopKBM25   int
	// RerankTopN > 0 runs the cross-encoder over the ranked list and keeps
	// that many results. Negative disables it for this query.
	RerankTopN int
	// Limit truncates Results. Zero returns every candidate.
	Limit int
}

// Response is the outcome of a hybrid search.
type Response struct {
	Query   string         `json:"query"`
	Results []ScoredResult `json:"results"`
	// BM25 is the local lexical list, returned alongside and never fused.
	BM25 []store.Hit `json:"bm25"`
	// Degraded maps a retrieval name to the reason it returned nothing.
	Degraded map[string]string `json:"degraded,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// IsDegraded reports whether any source failed.
func (r *Response) IsDegraded() bool { return len(r.Degraded) > 0 }

// RawResponse carries unfused dense and sparse lists.
type RawResponse struct {
	Dense    []store.Hit       `json:"dense_results"`
	Sparse   []store.Hit       `json:"sparse_results"`
	Degraded map[string]string `json:"degraded,omitempty"`
}
