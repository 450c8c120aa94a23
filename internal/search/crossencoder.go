package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

// PairScorer scores (query, text) pairs jointly. It returns one score per
// text, in input order.
type PairScorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// CrossEncoder reorders ranked results by pair scores.
type CrossEncoder struct {
	scorer PairScorer
}

func NewCrossEncoder(scorer PairScorer) *CrossEncoder {
	return &CrossEncoder{scorer: scorer}
}

// Rerank scores every result in one batch, sorts by rerank score (stable) and
// keeps topN. topN <= 0 keeps all. The input slice is not modified.
func (c *CrossEncoder) Rerank(ctx context.Context, query string, results []ScoredResult, topN int) ([]ScoredResult, error) {
	if len(results) == 0 {
		return []ScoredResult{}, nil
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}

	scores, err := c.scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(results) {
		return nil, ragerrors.New(ragerrors.ErrCodeBackendRejected,
			fmt.Sprintf("cross-encoder returned %d scores for %d texts", len(scores), len(results)), nil).
			WithDetail("backend", RetrievalRerank)
	}

	out := make([]ScoredResult, len(results))
	copy(out, results)
	for i := range out {
		s := finite(scores[i])
		out[i].RerankScore = &s
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].RerankScore > *out[j].RerankScore
	})
	if topN > 0 && topN < len(out) {
		out = out[:topN]
	}
	return out, nil
}

// finite maps NaN and -Inf to the lowest float and +Inf to the highest so
// sorting stays total.
func finite(s float64) float64 {
	switch {
	case math.IsNaN(s), math.IsInf(s, -1):
		return -math.MaxFloat64
	case math.IsInf(s, 1):
		return math.MaxFloat64
	}
	return s
}

// NoOpScorer keeps the incoming order.
type NoOpScorer struct{}

func (NoOpScorer) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	scores := make([]float64, len(texts))
	for i := range texts {
		scores[i] = float64(len(texts) - i)
	}
	return scores, nil
}

const (
	DefaultCrossEncoderTimeout = 30 * time.Second
	// DefaultCrossEncoderBatch caps texts per /rerank request.
	DefaultCrossEncoderBatch = 64
)

// HTTPPairScorerConfig configures a text-embeddings-inference style
// reranking server.
type HTTPPairScorerConfig struct {
	Endpoint  string
	Timeout   time.Duration
	BatchSize int
	Retry     ragerrors.RetryConfig

	BreakerOptions []ragerrors.CircuitBreakerOption
}

// HTTPPairScorer calls POST {endpoint}/rerank with {query, texts, raw_scores}
// and reads back [{index, score}].
type HTTPPairScorer struct {
	cfg     HTTPPairScorerConfig
	client  *http.Client
	breaker *ragerrors.CircuitBreaker
}

var _ PairScorer = (*HTTPPairScorer)(nil)

func NewHTTPPairScorer(cfg HTTPPairScorerConfig) *HTTPPairScorer {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCrossEncoderTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultCrossEncoderBatch
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = ragerrors.DefaultRetryConfig()
	}
	return &HTTPPairScorer{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		breaker: ragerrors.NewCircuitBreaker(RetrievalRerank, cfg.BreakerOptions...),
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Health probes GET {endpoint}/health.
func (h *HTTPPairScorer) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.Endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return ragerrors.BackendError(RetrievalRerank, "cross-encoder unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return ragerrors.BackendError(RetrievalRerank, fmt.Sprintf("cross-encoder unhealthy (status %d)", resp.StatusCode), nil)
	}
	return nil
}

func (h *HTTPPairScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, 0, len(texts))
	for start := 0; start < len(texts); start += h.cfg.BatchSize {
		end := min(start+h.cfg.BatchSize, len(texts))
		batch := texts[start:end]
		part, err := ragerrors.RetryWithResult(ctx, h.cfg.Retry, func() ([]float64, error) {
			return ragerrors.CircuitExecute(h.breaker, func() ([]float64, error) {
				return h.score(ctx, query, batch)
			})
		})
		if err != nil {
			return nil, err
		}
		scores = append(scores, part...)
	}
	return scores, nil
}

func (h *HTTPPairScorer) score(ctx context.Context, query string, texts []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, RawScores: true})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ragerrors.BackendError(RetrievalRerank, "rerank request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		code := ragerrors.ErrCodeBackendRejected
		if resp.StatusCode >= 500 {
			code = ragerrors.ErrCodeBackendUnavailable
		}
		return nil, ragerrors.New(code, fmt.Sprintf("cross-encoder returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil).
			WithDetail("backend", RetrievalRerank)
	}

	var hits []rerankHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, ragerrors.BackendError(RetrievalRerank, "decode rerank response", err)
	}

	// The server sorts by score; put scores back in input order.
	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, hit := range hits {
		if hit.Index < 0 || hit.Index >= len(texts) {
			return nil, ragerrors.New(ragerrors.ErrCodeBackendRejected,
				fmt.Sprintf("cross-encoder returned index %d for %d texts", hit.Index, len(texts)), nil)
		}
		scores[hit.Index] = hit.Score
		seen[hit.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, ragerrors.New(ragerrors.ErrCodeBackendRejected,
				fmt.Sprintf("cross-encoder omitted text %d", i), nil)
		}
	}

	slog.Debug("cross_encoder_scored",
		slog.Int("texts", len(texts)),
		slog.Duration("took", time.Since(start)))
	return scores, nil
}
