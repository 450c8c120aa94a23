package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
	"github.com/jaganraajan/rag-document-parser/internal/search"
	"github.com/jaganraajan/rag-document-parser/internal/store"
	"github.com/jaganraajan/rag-document-parser/internal/telemetry"
)

const DefaultBatchSize = 100

// Backend names used in BatchFailure and metrics.
const (
	BackendCorpus = "corpus"
	BackendSparse = "sparse"
	BackendDense  = "dense"
)

// BatchFailure records one batch a backend rejected.
type BatchFailure struct {
	Backend string `json:"backend"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Error   string `json:"error"`
}

type Result struct {
	Total int `json:"total"`
	// Stored counts chunks appended to the corpus.
	Stored int `json:"stored"`
	// SparseSkipped counts chunks whose text produced no sparse terms.
	SparseSkipped int            `json:"sparse_skipped"`
	Failed        []BatchFailure `json:"failed,omitempty"`
	VocabSize     int            `json:"vocab_size"`
	Duration      time.Duration  `json:"duration"`
}

// saver is implemented by backends that persist explicitly, such as the
// local HNSW graph.
type saver interface {
	Save() error
}

// Pipeline writes chunks to every configured destination. The corpus and
// vocabulary are required; dense and sparse writers are optional.
type Pipeline struct {
	vocab     *store.Vocabulary
	builder   *store.SparseBuilder
	corpus    *store.Corpus
	sparse    search.SparseWriter
	dense     search.DenseWriter
	batchSize int
	metrics   *telemetry.Metrics
	progress  func(done, total int)
}

type Option func(*Pipeline)

func WithSparseWriter(w search.SparseWriter) Option {
	return func(p *Pipeline) { p.sparse = w }
}

func WithDenseWriter(w search.DenseWriter) Option {
	return func(p *Pipeline) { p.dense = w }
}

func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithProgress registers a callback invoked after each batch.
func WithProgress(fn func(done, total int)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

func NewPipeline(vocab *store.Vocabulary, corpus *store.Corpus, opts ...Option) (*Pipeline, error) {
	if vocab == nil || corpus == nil {
		return nil, fmt.Errorf("%w: ingestion needs a vocabulary and a corpus", search.ErrNilDependency)
	}
	p := &Pipeline{
		vocab:     vocab,
		builder:   store.NewSparseBuilder(vocab),
		corpus:    corpus,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// SourceIDKey is the metadata key that keeps an id supplied by the caller.
const SourceIDKey = "source_id"

// Run ingests chunks in batches. Every chunk is stored under the next id_N
// after the current corpus size; an id carried by the input moves to
// metadata under SourceIDKey. The returned error is non-nil only for
// cancellation or a failed vocabulary save; backend failures are in
// Result.Failed.
func (p *Pipeline) Run(ctx context.Context, chunks []store.Chunk) (*Result, error) {
	start := time.Now()
	res := &Result{Total: len(chunks)}

	existing, err := p.corpus.Len()
	if err != nil {
		return nil, err
	}
	ids := NewIDStrategy(existing)

	var runErr error
	for lo := 0; lo < len(chunks); lo += p.batchSize {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		hi := min(lo+p.batchSize, len(chunks))
		batch := make([]store.Chunk, hi-lo)
		copy(batch, chunks[lo:hi])
		p.runBatch(ctx, lo, batch, ids, res)
		if p.progress != nil {
			p.progress(hi, len(chunks))
		}
	}

	if err := p.vocab.Save(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if s, ok := p.dense.(saver); ok {
		if err := s.Save(); err != nil {
			runErr = errors.Join(runErr, ragerrors.StateError("save dense index", err))
		}
	}

	res.VocabSize = p.vocab.Size()
	res.Duration = time.Since(start)
	corpusLen, _ := p.corpus.Len()
	p.metrics.SetState(res.VocabSize, corpusLen)
	p.metrics.AddChunks("stored", res.Stored)
	p.metrics.AddChunks("sparse_skipped", res.SparseSkipped)

	slog.Info("ingest_complete",
		slog.Int("total", res.Total),
		slog.Int("stored", res.Stored),
		slog.Int("sparse_skipped", res.SparseSkipped),
		slog.Int("failed_batches", len(res.Failed)),
		slog.Int("vocab_size", res.VocabSize),
		slog.Duration("took", res.Duration))
	return res, runErr
}

func (p *Pipeline) runBatch(ctx context.Context, offset int, batch []store.Chunk, ids *IDStrategy, res *Result) {
	records := make([]store.SparseRecord, 0, len(batch))
	for i := range batch {
		batch[i] = assignID(batch[i], ids.Next())
		vec := p.builder.Build(batch[i].Text, store.ModeIngest)
		if vec.IsEmpty() {
			res.SparseSkipped++
			slog.Debug("chunk_not_indexable", slog.String("id", batch[i].ID))
			continue
		}
		records = append(records, store.SparseRecord{
			ID:       batch[i].ID,
			Vector:   vec,
			Text:     batch[i].Text,
			Metadata: batch[i].Metadata,
		})
	}

	end := offset + len(batch)
	fail := func(backend string, err error) {
		res.Failed = append(res.Failed, BatchFailure{Backend: backend, Start: offset, End: end, Error: err.Error()})
		attrs := append([]slog.Attr{
			slog.String("backend", backend),
			slog.Int("start", offset),
			slog.Int("end", end),
		}, ragerrors.LogAttrs(err)...)
		slog.LogAttrs(ctx, slog.LevelWarn, "ingest_batch_failed", attrs...)
	}

	err := p.corpus.Append(batch...)
	p.metrics.ObserveBatch(BackendCorpus, err)
	if err != nil {
		fail(BackendCorpus, err)
	} else {
		res.Stored += len(batch)
	}

	if p.sparse != nil && len(records) > 0 {
		err := p.sparse.Upsert(ctx, records)
		p.metrics.ObserveBatch(BackendSparse, err)
		if err != nil {
			fail(BackendSparse, err)
		}
	}

	if p.dense != nil {
		err := p.dense.Upsert(ctx, batch)
		p.metrics.ObserveBatch(BackendDense, err)
		if err != nil {
			fail(BackendDense, err)
		}
	}

	slog.Debug("ingest_batch",
		slog.Int("start", offset),
		slog.Int("end", end),
		slog.Int("sparse_records", len(records)))
}

// assignID stores ch under id without touching the caller's metadata map.
func assignID(ch store.Chunk, id string) store.Chunk {
	if ch.ID != "" && ch.ID != id {
		meta := make(map[string]any, len(ch.Metadata)+1)
		for k, v := range ch.Metadata {
			meta[k] = v
		}
		meta[SourceIDKey] = ch.ID
		ch.Metadata = meta
	}
	ch.ID = id
	return ch
}
