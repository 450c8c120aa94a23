package store

import "math"

// Mode selects how Build treats the vocabulary.
type Mode int

const (
	// ModeIngest allocates ids and increments document frequencies.
	ModeIngest Mode = iota
	// ModeQuery only reads the vocabulary.
	ModeQuery
)

func (m Mode) String() string {
	if m == ModeIngest {
		return "ingest"
	}
	return "query"
}

// SparseBuilder turns text into TF-IDF sparse vectors against a Vocabulary.
type SparseBuilder struct {
	vocab *Vocabulary
}

func NewSparseBuilder(vocab *Vocabulary) *SparseBuilder {
	return &SparseBuilder{vocab: vocab}
}

// Build tokenizes text and weighs each distinct token with
// TFIDFWeight(tf, df, N) where N = max(DF), or 1 when DF is empty.
//
// In ModeIngest the token DFs are incremented before N is taken and missing
// ids are created. In ModeQuery nothing is mutated: tokens without an id are
// left out and a missing DF counts as 1.
//
// Entries follow the first occurrence of each token. Text without tokens
// yields an empty vector.
func (b *SparseBuilder) Build(text string, mode Mode) SparseVector {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return SparseVector{Indices: []int{}, Values: []float64{}}
	}

	tf := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if tf[t] == 0 {
			order = append(order, t)
		}
		tf[t]++
	}

	if mode == ModeIngest {
		distinct := make(map[string]struct{}, len(order))
		for _, t := range order {
			distinct[t] = struct{}{}
		}
		b.vocab.IncrementDF(distinct)
	}

	n := b.vocab.MaxDF()
	if n == 0 {
		n = 1
	}

	vec := SparseVector{
		Indices: make([]int, 0, len(order)),
		Values:  make([]float64, 0, len(order)),
	}
	for _, t := range order {
		var id int
		if mode == ModeIngest {
			id = b.vocab.GetOrCreateID(t)
		} else {
			var ok bool
			if id, ok = b.vocab.Lookup(t); !ok {
				continue
			}
		}

		df, ok := b.vocab.DF(t)
		if !ok {
			df = 1
		}
		vec.Indices = append(vec.Indices, id)
		vec.Values = append(vec.Values, TFIDFWeight(tf[t], df, n))
	}
	return vec
}

// TFIDFWeight is (1 + ln tf) * ln((n+1)/(df+1)) + 1. The +1 keeps tokens that
// occur in every document strictly positive.
func TFIDFWeight(tf, df, n int) float64 {
	return (1+math.Log(float64(tf)))*math.Log(float64(n+1)/float64(df+1)) + 1
}
