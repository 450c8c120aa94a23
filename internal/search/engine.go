package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
	"github.com/jaganraajan/rag-document-parser/internal/store"
	"github.com/jaganraajan/rag-document-parser/internal/telemetry"
)

// ErrNilDependency is returned by NewEngine when a required collaborator is
// missing.
var ErrNilDependency = errors.New("nil dependency")

// EngineConfig holds per-query defaults.
type EngineConfig struct {
	Weights           Weights
	NormalizationMode NormalizationMode

	TopKDense  int
	TopKSparse int
	TopKBM25   int
	RerankTopN int

	DenseTimeout  time.Duration
	SparseTimeout time.Duration
	BM25Timeout   time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Weights:           DefaultWeights(),
		NormalizationMode: NormalizationPreserve,
		TopKDense:         5,
		TopKSparse:        20,
		TopKBM25:          5,
		DenseTimeout:      10 * time.Second,
		SparseTimeout:     10 * time.Second,
		BM25Timeout:       5 * time.Second,
	}
}

// Engine runs hybrid retrieval. It is safe for concurrent use when its
// collaborators are.
type Engine struct {
	cfg     EngineConfig
	dense   DenseSearcher
	sparse  SparseSearcher
	builder *store.SparseBuilder
	corpus  LexicalSearcher
	cross   *CrossEncoder
	ranker  *Ranker
	metrics *telemetry.Metrics
}

type EngineOption func(*Engine)

func WithDense(d DenseSearcher) EngineOption {
	return func(e *Engine) { e.dense = d }
}

// WithSparse sets the sparse backend and the builder that turns queries into
// vectors against the ingestion vocabulary.
func WithSparse(s SparseSearcher, b *store.SparseBuilder) EngineOption {
	return func(e *Engine) {
		e.sparse = s
		e.builder = b
	}
}

func WithCorpus(c LexicalSearcher) EngineOption {
	return func(e *Engine) { e.corpus = c }
}

func WithCrossEncoder(c *CrossEncoder) EngineOption {
	return func(e *Engine) { e.cross = c }
}

func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine builds an engine. At least one retrieval source is required, and
// a sparse backend needs a builder.
func NewEngine(cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.dense == nil && e.sparse == nil && e.corpus == nil {
		return nil, fmt.Errorf("%w: no retrieval source configured", ErrNilDependency)
	}
	if e.sparse != nil && e.builder == nil {
		return nil, fmt.Errorf("%w: sparse backend requires a vector builder", ErrNilDependency)
	}
	e.ranker = NewRanker(cfg.Weights, cfg.NormalizationMode)
	return e, nil
}

func (e *Engine) Config() EngineConfig { return e.cfg }

func (e *Engine) applyDefaults(opts Options) Options {
	if opts.TopKDense == 0 {
		opts.TopKDense = e.cfg.TopKDense
	}
	if opts.TopKSparse == 0 {
		opts.TopKSparse = e.cfg.TopKSparse
	}
	if opts.TopKBM25 == 0 {
		opts.TopKBM25 = e.cfg.TopKBM25
	}
	if opts.RerankTopN == 0 {
		opts.RerankTopN = e.cfg.RerankTopN
	}
	return opts
}

// retrieval is the raw output of one fan-out.
type retrieval struct {
	dense    []store.Hit
	sparse   []store.Hit
	bm25     []store.Hit
	degraded map[string]string
}

// Search runs dense, sparse and BM25 retrieval concurrently, fuses dense and
// sparse hits and ranks them. Source failures are logged and reported in
// Response.Degraded; Search returns an error only if ctx is done.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	resp := &Response{Query: query, Results: []ScoredResult{}, BM25: []store.Hit{}}
	if query == "" {
		return resp, nil
	}
	opts = e.applyDefaults(opts)

	r, err := e.parallelRetrieve(ctx, query, opts.TopKDense, opts.TopKSparse, opts.TopKBM25)
	if err != nil {
		return nil, err
	}
	resp.BM25 = r.bm25
	resp.Degraded = r.degraded

	switch {
	case len(r.dense) > 0 && len(r.sparse) > 0:
		resp.Results = e.ranker.Rerank(query, Merge(r.dense, r.sparse))
	case len(r.dense) > 0:
		resp.Results = e.ranker.RerankSingleSource(query, r.dense, SourceDense)
	case len(r.sparse) > 0:
		resp.Results = e.ranker.RerankSingleSource(query, r.sparse, SourceSparse)
	}

	if e.cross != nil && opts.RerankTopN > 0 && len(resp.Results) > 0 {
		reranked, err := e.cross.Rerank(ctx, query, resp.Results, opts.RerankTopN)
		if err != nil {
			e.metrics.RerankFailed()
			e.degrade(resp, RetrievalRerank, err)
		} else {
			resp.Results = reranked
		}
	}

	if opts.Limit > 0 && len(resp.Results) > opts.Limit {
		resp.Results = resp.Results[:opts.Limit]
	}
	resp.Duration = time.Since(start)

	outcome := telemetry.OutcomeOK
	switch {
	case len(resp.Results) == 0:
		outcome = telemetry.OutcomeEmpty
	case resp.IsDegraded():
		outcome = telemetry.OutcomeDegraded
	}
	e.metrics.ObserveSearch(outcome, len(resp.Results), resp.Duration)

	slog.Debug("hybrid_search",
		slog.String("query", query),
		slog.Int("dense", len(r.dense)),
		slog.Int("sparse", len(r.sparse)),
		slog.Int("bm25", len(r.bm25)),
		slog.Int("results", len(resp.Results)),
		slog.Duration("took", resp.Duration))
	return resp, nil
}

// SearchWithMetadata returns the unfused dense (topK*4) and sparse (topK)
// lists. Failed sources come back empty and are listed in Degraded.
func (e *Engine) SearchWithMetadata(ctx context.Context, query string, topK int) (*RawResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return &RawResponse{Dense: []store.Hit{}, Sparse: []store.Hit{}}, nil
	}
	r, err := e.parallelRetrieve(ctx, query, topK*4, topK, 0)
	if err != nil {
		return nil, err
	}
	return &RawResponse{Dense: r.dense, Sparse: r.sparse, Degraded: r.degraded}, nil
}

// BM25Search queries the local corpus only.
func (e *Engine) BM25Search(ctx context.Context, query string, k int) ([]store.Hit, error) {
	if e.corpus == nil {
		return nil, fmt.Errorf("%w: no corpus configured", ErrNilDependency)
	}
	return e.corpus.Search(ctx, strings.TrimSpace(query), k)
}

// parallelRetrieve fans out to every configured source. A source that errors
// or exceeds its timeout is recorded in degraded and contributes nothing;
// goroutines never fail the group, so only parent cancellation is returned.
func (e *Engine) parallelRetrieve(ctx context.Context, query string, kDense, kSparse, kBM25 int) (*retrieval, error) {
	r := &retrieval{dense: []store.Hit{}, sparse: []store.Hit{}, bm25: []store.Hit{}}
	var denseErr, sparseErr, bm25Err error
	g, gctx := errgroup.WithContext(ctx)

	if e.dense != nil && kDense > 0 {
		g.Go(func() error {
			hits, err := e.timed(gctx, RetrievalDense, e.cfg.DenseTimeout, func(c context.Context) ([]store.Hit, error) {
				return e.dense.Search(c, query, kDense)
			})
			r.dense, denseErr = orEmpty(hits), err
			return nil
		})
	}

	if e.sparse != nil && kSparse > 0 {
		g.Go(func() error {
			vec := e.builder.Build(query, store.ModeQuery)
			if vec.IsEmpty() {
				// Nothing in the query is known to the vocabulary.
				return nil
			}
			hits, err := e.timed(gctx, RetrievalSparse, e.cfg.SparseTimeout, func(c context.Context) ([]store.Hit, error) {
				return e.sparse.Query(c, vec, kSparse)
			})
			r.sparse, sparseErr = orEmpty(hits), err
			return nil
		})
	}

	if e.corpus != nil && kBM25 > 0 {
		g.Go(func() error {
			hits, err := e.timed(gctx, RetrievalBM25, e.cfg.BM25Timeout, func(c context.Context) ([]store.Hit, error) {
				return e.corpus.Search(c, query, kBM25)
			})
			r.bm25, bm25Err = orEmpty(hits), err
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for name, err := range map[string]error{RetrievalDense: denseErr, RetrievalSparse: sparseErr, RetrievalBM25: bm25Err} {
		if err == nil {
			continue
		}
		if r.degraded == nil {
			r.degraded = make(map[string]string, 3)
		}
		r.degraded[name] = err.Error()
		attrs := append([]slog.Attr{slog.String("source", name)}, ragerrors.LogAttrs(err)...)
		slog.LogAttrs(ctx, slog.LevelWarn, name+"_search_failed", attrs...)
	}
	return r, nil
}

// timed runs fn under its own timeout and records latency. A failure yields
// nil hits and a classified error.
func (e *Engine) timed(ctx context.Context, source string, timeout time.Duration, fn func(context.Context) ([]store.Hit, error)) ([]store.Hit, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	hits, err := fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = ragerrors.New(ragerrors.ErrCodeBackendTimeout,
			fmt.Sprintf("%s retrieval exceeded %s", source, timeout), err).WithDetail("backend", source)
	}
	e.metrics.ObserveSource(source, time.Since(start), err != nil)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (e *Engine) degrade(resp *Response, name string, err error) {
	if resp.Degraded == nil {
		resp.Degraded = make(map[string]string, 1)
	}
	resp.Degraded[name] = err.Error()
	attrs := append([]slog.Attr{slog.String("source", name)}, ragerrors.LogAttrs(err)...)
	slog.LogAttrs(context.Background(), slog.LevelWarn, "rerank_failed", attrs...)
}

func orEmpty(hits []store.Hit) []store.Hit {
	if hits == nil {
		return []store.Hit{}
	}
	return hits
}
