package store

// Chunk is one record of the corpus log and the unit of ingestion.
type Chunk struct {
	ID       string         `json:"id"`
	Text     string         `json:"chunk_text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SparseVector holds parallel token ids and TF-IDF weights. Ids are unique
// and every value is positive.
type SparseVector struct {
	Indices []int     `json:"indices"`
	Values  []float64 `json:"values"`
}

// Len returns the number of non-zero entries.
func (v SparseVector) Len() int { return len(v.Indices) }

// IsEmpty reports whether the vector has nothing to index or query.
func (v SparseVector) IsEmpty() bool { return len(v.Indices) == 0 }

// SparseRecord is what a sparse backend stores for one chunk.
type SparseRecord struct {
	ID       string
	Vector   SparseVector
	Text     string
	Metadata map[string]any
}

// Hit is a scored document returned by any retrieval source.
type Hit struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IDFMode selects how BM25 weights rare and common terms.
type IDFMode string

const (
	// IDFOkapi is ln((N-n+0.5)/(n+0.5)); negative values are replaced by
	// Epsilon times the mean idf of the vocabulary.
	IDFOkapi IDFMode = "okapi"
	// IDFLucene is ln(1 + (N-n+0.5)/(n+0.5)), which is never negative.
	IDFLucene IDFMode = "lucene"
)

// BM25Config holds the Okapi BM25 parameters.
type BM25Config struct {
	// K1 controls term frequency saturation.
	K1 float64
	// B controls document length normalization.
	B float64
	// Epsilon scales the floor for negative Okapi idf values.
	Epsilon float64
	// IDF defaults to IDFOkapi when empty.
	IDF IDFMode
}

func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.5, B: 0.75, Epsilon: 0.25, IDF: IDFOkapi}
}
