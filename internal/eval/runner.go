package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jaganraajan/rag-document-parser/internal/search"
	"github.com/jaganraajan/rag-document-parser/internal/store"
)

// Method names compared by default.
const (
	MethodVector = "vector"
	MethodBM25   = "bm25"
	MethodHybrid = "hybrid"
)

// Doc is a retrieved result as seen by the evaluator.
type Doc struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// SearchFunc retrieves up to k documents for query.
type SearchFunc func(ctx context.Context, query string, k int) ([]Doc, error)

type Method struct {
	Name   string
	Search SearchFunc
}

// EngineMethods exposes the engine's dense list, BM25 list and fused list as
// the vector, bm25 and hybrid methods.
func EngineMethods(e *search.Engine) []Method {
	return []Method{
		{Name: MethodVector, Search: func(ctx context.Context, q string, k int) ([]Doc, error) {
			raw, err := e.SearchWithMetadata(ctx, q, k)
			if err != nil {
				return nil, err
			}
			dense := raw.Dense
			if len(dense) > k {
				dense = dense[:k]
			}
			return hitsToDocs(dense), degradedErr(raw.Degraded, search.RetrievalDense)
		}},
		{Name: MethodBM25, Search: func(ctx context.Context, q string, k int) ([]Doc, error) {
			hits, err := e.BM25Search(ctx, q, k)
			return hitsToDocs(hits), err
		}},
		{Name: MethodHybrid, Search: func(ctx context.Context, q string, k int) ([]Doc, error) {
			resp, err := e.Search(ctx, q, search.Options{Limit: k})
			if err != nil {
				return nil, err
			}
			docs := make([]Doc, len(resp.Results))
			for i, r := range resp.Results {
				docs[i] = Doc{ID: r.ID, Text: r.Text, Score: r.Relevance}
			}
			return docs, nil
		}},
	}
}

func degradedErr(degraded map[string]string, source string) error {
	if reason, ok := degraded[source]; ok {
		return fmt.Errorf("%s search degraded: %s", source, reason)
	}
	return nil
}

func hitsToDocs(hits []store.Hit) []Doc {
	docs := make([]Doc, len(hits))
	for i, h := range hits {
		docs[i] = Doc{ID: h.ID, Text: h.Text, Score: h.Score}
	}
	return docs
}

// MethodResult is one method's outcome for one query.
type MethodResult struct {
	Metrics   Metrics         `json:"metrics"`
	LatencyMS float64         `json:"latency_ms"`
	Error     string          `json:"error,omitempty"`
	Results   []ResultPreview `json:"results"`
}

type ResultPreview struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Relevant bool    `json:"relevant"`
}

type QueryResult struct {
	Query              string                  `json:"query"`
	RelevantSubstrings []string                `json:"relevant_substrings"`
	Methods            map[string]MethodResult `json:"methods"`
}

// Runner evaluates each method on each item in turn. Methods run
// sequentially so latencies do not interfere.
type Runner struct {
	methods []Method
	k       int
}

func NewRunner(k int, methods ...Method) *Runner {
	if k <= 0 {
		k = 5
	}
	return &Runner{methods: methods, k: k}
}

func (r *Runner) K() int { return r.k }

// Run stops early only when ctx is done. A failing method scores zero for
// that query.
func (r *Runner) Run(ctx context.Context, items []Item) ([]QueryResult, error) {
	out := make([]QueryResult, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		qr := QueryResult{
			Query:              item.Query,
			RelevantSubstrings: item.RelevantSubstrings,
			Methods:            make(map[string]MethodResult, len(r.methods)),
		}
		for _, m := range r.methods {
			qr.Methods[m.Name] = r.runOne(ctx, m, item)
		}
		out = append(out, qr)
	}
	return out, nil
}

func (r *Runner) runOne(ctx context.Context, m Method, item Item) MethodResult {
	start := time.Now()
	docs, err := m.Search(ctx, item.Query, r.k)
	latency := float64(time.Since(start).Microseconds()) / 1000

	res := MethodResult{LatencyMS: latency}
	if err != nil {
		res.Error = err.Error()
		slog.Warn("eval_method_failed",
			slog.String("method", m.Name),
			slog.String("query", item.Query),
			slog.String("error", err.Error()))
		docs = nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	res.Metrics = Calculate(texts, item.RelevantSubstrings, r.k)

	limit := min(len(docs), r.k)
	res.Results = make([]ResultPreview, limit)
	for i, d := range docs[:limit] {
		res.Results[i] = ResultPreview{
			ID:       d.ID,
			Text:     preview(d.Text, 100),
			Score:    d.Score,
			Relevant: IsRelevant(d.Text, item.RelevantSubstrings),
		}
	}
	return res
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Summary aggregates one method across all queries.
type Summary struct {
	Method       string  `json:"method"`
	Queries      int     `json:"queries"`
	AvgCoverage  float64 `json:"avg_coverage"`
	AvgPrecision float64 `json:"avg_precision"`
	AvgMRR       float64 `json:"avg_mrr"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	P95LatencyMS float64 `json:"p95_latency_ms"`
}

// Summarize averages metrics per method in the runner's method order.
func (r *Runner) Summarize(results []QueryResult) []Summary {
	out := make([]Summary, 0, len(r.methods))
	for _, m := range r.methods {
		var cov, prec, mrr, lat []float64
		for _, qr := range results {
			mr, ok := qr.Methods[m.Name]
			if !ok {
				continue
			}
			cov = append(cov, mr.Metrics.CoverageAtK)
			prec = append(prec, mr.Metrics.PrecisionAtK)
			mrr = append(mrr, mr.Metrics.MRRAtK)
			lat = append(lat, mr.LatencyMS)
		}
		out = append(out, Summary{
			Method:       m.Name,
			Queries:      len(cov),
			AvgCoverage:  mean(cov),
			AvgPrecision: mean(prec),
			AvgMRR:       mean(mrr),
			AvgLatencyMS: mean(lat),
			P95LatencyMS: P95(lat),
		})
	}
	return out
}

// CoverageQualityCorrelation correlates the hybrid coverage of each query
// with its answer_quality grade, where present.
func CoverageQualityCorrelation(results []QueryResult, items []Item) (float64, bool) {
	var xs, ys []float64
	for i, qr := range results {
		if i >= len(items) || items[i].AnswerQuality == nil {
			continue
		}
		mr, ok := qr.Methods[MethodHybrid]
		if !ok {
			continue
		}
		xs = append(xs, mr.Metrics.CoverageAtK)
		ys = append(ys, *items[i].AnswerQuality)
	}
	return Pearson(xs, ys)
}

// SaveResults writes the detailed per-query results as indented JSON.
func SaveResults(path string, results []QueryResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
