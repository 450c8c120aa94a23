package mcp

// HybridSearchInput is the input schema of hybrid_search.
type HybridSearchInput struct {
	Query      string `json:"query" jsonschema:"the natural-language query"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	RerankTopN int    `json:"rerank_top_n,omitempty" jsonschema:"rescore the fused results with the cross-encoder and keep this many"`
}

// BM25SearchInput is the input schema of bm25_search.
type BM25SearchInput struct {
	Query string `json:"query" jsonschema:"the keyword query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
}

type CorpusStatsInput struct{}

// SearchOutput is returned by both search tools.
type SearchOutput struct {
	Results  []SearchResultOutput `json:"results" jsonschema:"ranked results"`
	Degraded map[string]string    `json:"degraded,omitempty" jsonschema:"retrieval sources that failed, with the reason"`
}

type SearchResultOutput struct {
	ID          string         `json:"id"`
	Text        string         `json:"text" jsonschema:"chunk text"`
	Score       float64        `json:"score" jsonschema:"relevance score; for hybrid results the weighted fusion score"`
	Source      string         `json:"source,omitempty" jsonschema:"dense, sparse, both, dense_only, sparse_only or bm25"`
	DenseScore  float64        `json:"dense_score,omitempty"`
	SparseScore float64        `json:"sparse_score,omitempty"`
	RerankScore *float64       `json:"rerank_score,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CorpusStatsOutput describes the local retrieval state.
type CorpusStatsOutput struct {
	Chunks        int    `json:"chunks" jsonschema:"chunks in the local corpus"`
	VocabSize     int    `json:"vocab_size" jsonschema:"distinct tokens in the vocabulary"`
	DocumentCount int    `json:"document_count" jsonschema:"max document frequency, the corpus size used for IDF"`
	DenseBackend  string `json:"dense_backend"`
	SparseBackend string `json:"sparse_backend"`
	CrossEncoder  bool   `json:"cross_encoder" jsonschema:"whether a cross-encoder is configured"`
}

// StatsProvider reports CorpusStatsOutput for corpus_stats.
type StatsProvider interface {
	CorpusStats() (*CorpusStatsOutput, error)
}

// StatsFunc adapts a function to StatsProvider.
type StatsFunc func() (*CorpusStatsOutput, error)

func (f StatsFunc) CorpusStats() (*CorpusStatsOutput, error) { return f() }
