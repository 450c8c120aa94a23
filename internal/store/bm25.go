package store

import (
	"math"
	"sort"
)

// BM25Index is an immutable Okapi BM25 index over pre-tokenized documents.
// Document i of the index is document i of the corpus it was built from.
type BM25Index struct {
	cfg       BM25Config
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// NewBM25Index computes term statistics for docs.
func NewBM25Index(docs [][]string, cfg BM25Config) *BM25Index {
	idx := &BM25Index{
		cfg:       cfg,
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	total := 0
	for i, doc := range docs {
		tf := make(map[string]int, len(doc))
		for _, t := range doc {
			tf[t]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(doc)
		total += len(doc)
		for t := range tf {
			docFreq[t]++
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(total) / float64(len(docs))
	}

	idx.computeIDF(docFreq, len(docs))
	return idx
}

func (idx *BM25Index) computeIDF(docFreq map[string]int, docs int) {
	n := float64(docs)
	if idx.cfg.IDF == IDFLucene {
		for t, df := range docFreq {
			idx.idf[t] = math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		}
		return
	}

	var sum float64
	var negative []string
	for t, df := range docFreq {
		v := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		idx.idf[t] = v
		sum += v
		if v < 0 {
			negative = append(negative, t)
		}
	}
	if len(docFreq) == 0 {
		return
	}
	floor := idx.cfg.Epsilon * sum / float64(len(docFreq))
	for _, t := range negative {
		idx.idf[t] = floor
	}
}

// Len returns the number of indexed documents.
func (idx *BM25Index) Len() int { return len(idx.docLens) }

// IDF returns the weight of term, and false for a term no document holds.
func (idx *BM25Index) IDF(term string) (float64, bool) {
	v, ok := idx.idf[term]
	return v, ok
}

// Scores returns the BM25 score of every document for the query tokens.
func (idx *BM25Index) Scores(query []string) []float64 {
	scores, _ := idx.score(query)
	return scores
}

// score also reports which documents hold at least one query token. With
// Okapi idf a matching document can score zero or below.
func (idx *BM25Index) score(query []string) ([]float64, []bool) {
	scores := make([]float64, len(idx.docLens))
	matched := make([]bool, len(idx.docLens))
	if idx.avgDocLen == 0 {
		return scores, matched
	}
	k1, b := idx.cfg.K1, idx.cfg.B
	for _, q := range query {
		idf, ok := idx.idf[q]
		if !ok {
			continue
		}
		for i, tf := range idx.termFreqs {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			matched[i] = true
			norm := 1 - b + b*float64(idx.docLens[i])/idx.avgDocLen
			scores[i] += idf * f * (k1 + 1) / (f + k1*norm)
		}
	}
	return scores, matched
}

// ScoredDoc is a document position with its score.
type ScoredDoc struct {
	Doc   int
	Score float64
}

// TopK returns up to k documents holding a query token, best first. Equal
// scores keep index order.
func (idx *BM25Index) TopK(query []string, k int) []ScoredDoc {
	if k <= 0 {
		return nil
	}
	scores, matched := idx.score(query)
	ranked := make([]ScoredDoc, 0, len(scores))
	for i, s := range scores {
		if matched[i] {
			ranked = append(ranked, ScoredDoc{Doc: i, Score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
