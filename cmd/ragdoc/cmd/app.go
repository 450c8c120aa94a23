package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jaganraajan/rag-document-parser/internal/config"
	"github.com/jaganraajan/rag-document-parser/internal/embed"
	"github.com/jaganraajan/rag-document-parser/internal/ingest"
	"github.com/jaganraajan/rag-document-parser/internal/mcp"
	"github.com/jaganraajan/rag-document-parser/internal/pinecone"
	"github.com/jaganraajan/rag-document-parser/internal/search"
	"github.com/jaganraajan/rag-document-parser/internal/store"
	"github.com/jaganraajan/rag-document-parser/internal/telemetry"
)

// app holds everything a command needs, built once from configuration.
type app struct {
	cfg     *config.Config
	vocab   *store.Vocabulary
	corpus  *store.Corpus
	builder *store.SparseBuilder
	metrics *telemetry.Metrics

	denseSearch  search.DenseSearcher
	denseWrite   search.DenseWriter
	sparseSearch search.SparseSearcher
	sparseWrite  search.SparseWriter
	// localDense is set for the local dense backend so serve can reload it.
	localDense *search.LocalDense

	// localClearers are emptied by every clear; remoteClearers only with
	// --remote.
	localClearers  []ingest.Clearer
	remoteClearers []ingest.Clearer

	engine  *search.Engine
	closers []func() error
}

// projectDir is --config-dir, defaulting to the working directory.
func projectDir() (string, error) {
	if configDir != "" {
		return configDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return wd, nil
}

func loadConfig() (*config.Config, error) {
	dir, err := projectDir()
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}

// openApp loads configuration and opens the stores and backends. Callers
// must Close the app.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func newApp(_ context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	a := &app{cfg: cfg, metrics: telemetry.New()}
	a.vocab = store.OpenVocabulary(cfg.Paths.VocabularyPath(), cfg.Paths.DocumentFrequencyPath())
	a.builder = store.NewSparseBuilder(a.vocab)
	a.corpus = store.NewCorpus(cfg.Paths.CorpusPath(), store.BM25Config{
		K1:      cfg.BM25.K1,
		B:       cfg.BM25.B,
		Epsilon: cfg.BM25.Epsilon,
		IDF:     store.IDFMode(cfg.BM25.IDF),
	})

	if err := a.openSparse(); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.openDense()

	engine, err := search.NewEngine(engineConfig(cfg), a.engineOptions()...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.engine = engine

	slog.Debug("app_opened",
		slog.String("data_dir", cfg.Paths.DataDir),
		slog.String("dense_backend", cfg.Dense.Backend),
		slog.String("sparse_backend", cfg.Sparse.Backend))
	return a, nil
}

func (a *app) openSparse() error {
	switch a.cfg.Sparse.Backend {
	case config.BackendLocal:
		idx, err := store.NewSQLiteSparseIndex(a.cfg.Paths.SparseDBPath(), a.cfg.Ingest.MaxStoredText)
		if err != nil {
			return err
		}
		a.sparseSearch, a.sparseWrite = idx, idx
		a.localClearers = append(a.localClearers, idx)
		a.closers = append(a.closers, idx.Close)
	case config.BackendPinecone:
		idx := pinecone.NewSparseIndex(pinecone.Config{
			APIKey:         a.cfg.APIKey,
			Host:           a.cfg.Sparse.IndexHost,
			IndexName:      a.cfg.Sparse.IndexName,
			Namespace:      a.cfg.Sparse.Namespace,
			BreakerOptions: a.metrics.BreakerOptions(),
		})
		a.sparseSearch, a.sparseWrite = idx, idx
		a.remoteClearers = append(a.remoteClearers, idx)
		a.closers = append(a.closers, idx.Close)
	}
	return nil
}

func (a *app) openDense() {
	switch a.cfg.Dense.Backend {
	case config.BackendLocal:
		ollama := embed.DefaultOllamaConfig()
		ollama.Host = a.cfg.Dense.OllamaHost
		ollama.Model = a.cfg.Dense.Model
		ollama.BreakerOptions = a.metrics.BreakerOptions()
		embedder := embed.NewCachedEmbedder(embed.NewOllamaEmbedder(ollama), a.cfg.Dense.CacheSize)
		path := a.cfg.Paths.VectorIndexPath()
		local := search.NewLocalDense(embedder, store.OpenVectorIndex(path), a.corpus, path)
		a.denseSearch, a.denseWrite = local, local
		a.localDense = local
		a.localClearers = append(a.localClearers, local)
	case config.BackendPinecone:
		idx := pinecone.NewDenseIndex(pinecone.Config{
			APIKey:         a.cfg.APIKey,
			Host:           a.cfg.Dense.IndexHost,
			IndexName:      a.cfg.Dense.IndexName,
			Namespace:      a.cfg.Dense.Namespace,
			BreakerOptions: a.metrics.BreakerOptions(),
		})
		a.denseSearch, a.denseWrite = idx, idx
		a.remoteClearers = append(a.remoteClearers, idx)
		a.closers = append(a.closers, idx.Close)
	}
}

func (a *app) engineOptions() []search.EngineOption {
	opts := []search.EngineOption{search.WithCorpus(a.corpus), search.WithMetrics(a.metrics)}
	if a.denseSearch != nil {
		opts = append(opts, search.WithDense(a.denseSearch))
	}
	if a.sparseSearch != nil {
		opts = append(opts, search.WithSparse(a.sparseSearch, a.builder))
	}
	if ep := a.cfg.CrossEncoder.Endpoint; ep != "" {
		scorer := search.NewHTTPPairScorer(search.HTTPPairScorerConfig{
			Endpoint:       ep,
			Timeout:        config.Duration(a.cfg.CrossEncoder.Timeout, search.DefaultCrossEncoderTimeout),
			BreakerOptions: a.metrics.BreakerOptions(),
		})
		opts = append(opts, search.WithCrossEncoder(search.NewCrossEncoder(scorer)))
	}
	return opts
}

func engineConfig(cfg *config.Config) search.EngineConfig {
	def := search.DefaultEngineConfig()
	return search.EngineConfig{
		Weights: search.Weights{
			Dense:   cfg.Search.WeightDense,
			Sparse:  cfg.Search.WeightSparse,
			Overlap: cfg.Search.WeightOverlap,
		},
		NormalizationMode: search.NormalizationMode(cfg.Search.NormalizationMode),
		TopKDense:         cfg.Search.TopKDense,
		TopKSparse:        cfg.Search.TopKSparse,
		TopKBM25:          cfg.Search.TopKBM25,
		RerankTopN:        cfg.Search.RerankTopN,
		DenseTimeout:      config.Duration(cfg.Search.DenseTimeout, def.DenseTimeout),
		SparseTimeout:     config.Duration(cfg.Search.SparseTimeout, def.SparseTimeout),
		BM25Timeout:       config.Duration(cfg.Search.BM25Timeout, def.BM25Timeout),
	}
}

// pipeline builds an ingestion pipeline over the app's destinations.
func (a *app) pipeline(progress func(done, total int)) (*ingest.Pipeline, error) {
	opts := []ingest.Option{
		ingest.WithBatchSize(a.cfg.Ingest.BatchSize),
		ingest.WithMetrics(a.metrics),
		ingest.WithProgress(progress),
	}
	if a.sparseWrite != nil {
		opts = append(opts, ingest.WithSparseWriter(a.sparseWrite))
	}
	if a.denseWrite != nil {
		opts = append(opts, ingest.WithDenseWriter(a.denseWrite))
	}
	return ingest.NewPipeline(a.vocab, a.corpus, opts...)
}

// clear empties the local state, and the remote indexes when remote is set.
func (a *app) clear(ctx context.Context, resetVocab, remote bool) error {
	targets := append([]ingest.Clearer{}, a.localClearers...)
	if remote {
		targets = append(targets, a.remoteClearers...)
	}
	return ingest.ClearAll(ctx, a.corpus, a.vocab, resetVocab, targets...)
}

// stats reports the local retrieval state for `stats` and corpus_stats.
func (a *app) stats() (*mcp.CorpusStatsOutput, error) {
	n, err := a.corpus.Len()
	if err != nil {
		return nil, err
	}
	vs := a.vocab.Stats()
	a.metrics.SetState(vs.VocabSize, n)
	return &mcp.CorpusStatsOutput{
		Chunks:        n,
		VocabSize:     vs.VocabSize,
		DocumentCount: vs.DocumentCount,
		DenseBackend:  a.cfg.Dense.Backend,
		SparseBackend: a.cfg.Sparse.Backend,
		CrossEncoder:  a.cfg.CrossEncoder.Endpoint != "",
	}, nil
}

// writeMetrics exports the registry as a textfile when path is set.
func (a *app) writeMetrics(path string) {
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		slog.Warn("metrics_write_failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
