package search

import (
	"sort"

	"github.com/jaganraajan/rag-document-parser/internal/store"
)

// Ranker scores candidates with a weighted sum of normalized dense score,
// normalized sparse score and lexical overlap.
type Ranker struct {
	weights Weights
	mode    NormalizationMode
}

func NewRanker(w Weights, mode NormalizationMode) *Ranker {
	if mode == "" {
		mode = NormalizationPreserve
	}
	return &Ranker{weights: w, mode: mode}
}

func (r *Ranker) Weights() Weights { return r.weights }

// Rerank ranks a merged candidate set. Normalization of each source runs over
// candidates with a positive score from that source only. Ties keep merge
// order.
func (r *Ranker) Rerank(query string, set *CandidateSet) []ScoredResult {
	cands := set.Candidates()
	if len(cands) == 0 {
		return []ScoredResult{}
	}

	denseRaw := make([]float64, len(cands))
	sparseRaw := make([]float64, len(cands))
	for i, c := range cands {
		denseRaw[i] = c.DenseScore
		sparseRaw[i] = c.SparseScore
	}
	denseNorm := normalizePositive(denseRaw)
	sparseNorm := normalizePositive(sparseRaw)
	queryTokens := store.UniqueTokens(query)

	results := make([]ScoredResult, len(cands))
	for i, c := range cands {
		b := ScoreBreakdown{
			Dense:   denseNorm[i],
			Sparse:  sparseNorm[i],
			Overlap: overlap(queryTokens, c.Text),
		}
		results[i] = ScoredResult{
			ID:          c.ID,
			Text:        c.Text,
			Metadata:    c.Metadata,
			Source:      c.Source,
			DenseScore:  c.DenseScore,
			SparseScore: c.SparseScore,
			Relevance:   r.weights.Dense*b.Dense + r.weights.Sparse*b.Sparse + r.weights.Overlap*b.Overlap,
			Breakdown:   b,
		}
	}
	sortByRelevance(results)
	return results
}

// RerankSingleSource ranks hits from one source when the other returned
// nothing. source must be SourceDense or SourceSparse; results are labelled
// dense_only or sparse_only. Scores are normalized over all hits.
func (r *Ranker) RerankSingleSource(query string, hits []store.Hit, source Source) []ScoredResult {
	if len(hits) == 0 {
		return []ScoredResult{}
	}

	w, label := r.weights.Dense, SourceDenseOnly
	if source == SourceSparse {
		w, label = r.weights.Sparse, SourceSparseOnly
	}
	wo := r.weights.Overlap
	if r.mode == NormalizationRedistribute {
		if sum := w + wo; sum > 0 {
			w, wo = w/sum, wo/sum
		}
	}

	raw := make([]float64, len(hits))
	for i, h := range hits {
		raw[i] = h.Score
	}
	norm := Normalize(raw)
	queryTokens := store.UniqueTokens(query)

	results := make([]ScoredResult, len(hits))
	for i, h := range hits {
		b := ScoreBreakdown{Overlap: overlap(queryTokens, h.Text)}
		res := ScoredResult{ID: h.ID, Text: h.Text, Metadata: h.Metadata, Source: label}
		if source == SourceSparse {
			b.Sparse = norm[i]
			res.SparseScore = h.Score
		} else {
			b.Dense = norm[i]
			res.DenseScore = h.Score
		}
		res.Breakdown = b
		res.Relevance = w*norm[i] + wo*b.Overlap
		results[i] = res
	}
	sortByRelevance(results)
	return results
}

// LexicalOverlap is the share of distinct query tokens present in text.
func LexicalOverlap(query, text string) float64 {
	return overlap(store.UniqueTokens(query), text)
}

func overlap(queryTokens map[string]struct{}, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	textTokens := store.UniqueTokens(text)
	shared := 0
	for t := range queryTokens {
		if _, ok := textTokens[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(queryTokens))
}

func sortByRelevance(results []ScoredResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
}
