package search

import "github.com/jaganraajan/rag-document-parser/internal/store"

// CandidateSet is an insertion-ordered map of candidates keyed by id.
type CandidateSet struct {
	order []string
	byID  map[string]*Candidate
}

func newCandidateSet(capacity int) *CandidateSet {
	return &CandidateSet{
		order: make([]string, 0, capacity),
		byID:  make(map[string]*Candidate, capacity),
	}
}

func (s *CandidateSet) Len() int { return len(s.order) }

func (s *CandidateSet) Get(id string) (Candidate, bool) {
	c, ok := s.byID[id]
	if !ok {
		return Candidate{}, false
	}
	return *c, true
}

// Candidates returns copies in insertion order.
func (s *CandidateSet) Candidates() []Candidate {
	out := make([]Candidate, len(s.order))
	for i, id := range s.order {
		out[i] = *s.byID[id]
	}
	return out
}

// Merge outer-joins dense and sparse hits by id. Dense hits come first in
// their own order, then sparse hits not seen in the dense list. A repeated id
// within one list overwrites its score but keeps its first position.
func Merge(dense, sparse []store.Hit) *CandidateSet {
	set := newCandidateSet(len(dense) + len(sparse))

	for _, h := range dense {
		c, ok := set.byID[h.ID]
		if !ok {
			c = &Candidate{ID: h.ID, Source: SourceDense}
			set.byID[h.ID] = c
			set.order = append(set.order, h.ID)
		}
		c.DenseScore = h.Score
		fillText(c, h)
	}

	for _, h := range sparse {
		c, ok := set.byID[h.ID]
		if !ok {
			c = &Candidate{ID: h.ID, Source: SourceSparse}
			set.byID[h.ID] = c
			set.order = append(set.order, h.ID)
		} else if c.Source == SourceDense {
			c.Source = SourceBoth
		}
		c.SparseScore = h.Score
		fillText(c, h)
	}
	return set
}

// fillText keeps the first non-empty text and metadata seen for a candidate.
func fillText(c *Candidate, h store.Hit) {
	if c.Text == "" {
		c.Text = h.Text
	}
	if len(c.Metadata) == 0 && len(h.Metadata) > 0 {
		c.Metadata = h.Metadata
	}
}
