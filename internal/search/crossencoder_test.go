package search

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

type fixedScorer struct {
	scores []float64
	err    error
}

func (f fixedScorer) Score(_ context.Context, _ string, _ []string) ([]float64, error) {
	return f.scores, f.err
}

func ranked(ids ...string) []ScoredResult {
	out := make([]ScoredResult, len(ids))
	for i, id := range ids {
		out[i] = ScoredResult{ID: id, Text: "text " + id}
	}
	return out
}

func TestCrossEncoder_RerankSortsAndTruncates(t *testing.T) {
	// Given: scores that invert the order
	ce := NewCrossEncoder(fixedScorer{scores: []float64{0.1, 0.5, 0.9}})
	in := ranked("a", "b", "c")

	// When: reranking with topN 2
	out, err := ce.Rerank(context.Background(), "q", in, 2)

	// Then: highest rerank score first and the input is untouched
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].ID)
	assert.Equal(t, 0.9, *out[0].RerankScore)
	assert.Equal(t, "b", out[1].ID)
	assert.Nil(t, in[0].RerankScore)
}

func TestCrossEncoder_SanitizesNonFinite(t *testing.T) {
	ce := NewCrossEncoder(fixedScorer{scores: []float64{math.NaN(), math.Inf(1), 0, math.Inf(-1)}})

	out, err := ce.Rerank(context.Background(), "q", ranked("nan", "inf", "zero", "neginf"), 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"inf", "zero", "nan", "neginf"}, []string{out[0].ID, out[1].ID, out[2].ID, out[3].ID})
	assert.Equal(t, math.MaxFloat64, *out[0].RerankScore)
	assert.Equal(t, -math.MaxFloat64, *out[2].RerankScore)
}

func TestCrossEncoder_CountMismatchIsError(t *testing.T) {
	ce := NewCrossEncoder(fixedScorer{scores: []float64{1}})

	_, err := ce.Rerank(context.Background(), "q", ranked("a", "b"), 0)

	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeBackendRejected, ragerrors.GetCode(err))
}

func TestCrossEncoder_ScorerError(t *testing.T) {
	ce := NewCrossEncoder(fixedScorer{err: errors.New("down")})
	_, err := ce.Rerank(context.Background(), "q", ranked("a"), 0)
	assert.EqualError(t, err, "down")
}

func TestNoOpScorer_PreservesOrder(t *testing.T) {
	out, err := NewCrossEncoder(NoOpScorer{}).Rerank(context.Background(), "q", ranked("a", "b", "c"), 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

func TestHTTPPairScorer_ScoresInInputOrder(t *testing.T) {
	// Given: a TEI-style server that returns hits sorted by score
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/rerank":
			var req rerankRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.RawScores)
			assert.Equal(t, "virtue", req.Query)
			_ = json.NewEncoder(w).Encode([]rerankHit{{Index: 1, Score: 3.5}, {Index: 0, Score: -1.2}})
		}
	}))
	defer srv.Close()
	s := NewHTTPPairScorer(HTTPPairScorerConfig{Endpoint: srv.URL + "/"})

	// When: probing health and scoring two texts
	require.NoError(t, s.Health(context.Background()))
	scores, err := s.Score(context.Background(), "virtue", []string{"first", "second"})

	// Then: scores line up with the input texts
	require.NoError(t, err)
	assert.Equal(t, []float64{-1.2, 3.5}, scores)
}

func TestHTTPPairScorer_MissingIndexIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]rerankHit{{Index: 0, Score: 1}})
	}))
	defer srv.Close()
	s := NewHTTPPairScorer(HTTPPairScorerConfig{
		Endpoint: srv.URL,
		Retry:    ragerrors.RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, Multiplier: 1},
	})

	_, err := s.Score(context.Background(), "q", []string{"a", "b"})

	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeBackendRejected, ragerrors.GetCode(err))
}
