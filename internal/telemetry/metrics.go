// Package telemetry holds the Prometheus collectors for search and ingestion.
// Collectors live in a private registry so several engines (and tests) can
// coexist in one process. A nil *Metrics is valid and records nothing.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

const namespace = "ragdoc"

// Search outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeEmpty    = "empty"
)

type Metrics struct {
	registry *prometheus.Registry

	SearchesTotal   *prometheus.CounterVec
	SearchLatency   prometheus.Histogram
	SearchResults   prometheus.Histogram
	SourceLatency   *prometheus.HistogramVec
	SourceFailures  *prometheus.CounterVec
	RerankFailures  prometheus.Counter
	ChunksIngested  *prometheus.CounterVec
	IngestBatches   *prometheus.CounterVec
	VocabularySize  prometheus.Gauge
	CorpusDocuments prometheus.Gauge

	CircuitState       *prometheus.GaugeVec
	CircuitTransitions *prometheus.CounterVec
}

func New() *Metrics {
	latencyBuckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SearchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Hybrid searches by outcome (ok, degraded, empty).",
		}, []string{"outcome"}),
		SearchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_seconds",
			Help:      "End-to-end hybrid search latency.",
			Buckets:   latencyBuckets,
		}),
		SearchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results_count",
			Help:      "Ranked results returned per hybrid search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50},
		}),
		SourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_latency_seconds",
			Help:      "Per-source retrieval latency.",
			Buckets:   latencyBuckets,
		}, []string{"source"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Retrieval sources that failed or timed out and were degraded to empty.",
		}, []string{"source"}),
		RerankFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cross_encoder_failures_total",
			Help:      "Cross-encoder calls that failed; the weighted order was kept.",
		}),
		ChunksIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Chunks processed by ingestion, by status.",
		}, []string{"status"}),
		IngestBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Backend upsert batches by backend and status.",
		}, []string{"backend", "status"}),
		VocabularySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vocabulary_size",
			Help:      "Tokens with an assigned sparse id.",
		}),
		CorpusDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_documents",
			Help:      "Chunks in the BM25 corpus.",
		}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_circuit_state",
			Help:      "Circuit breaker state per backend (0 closed, 1 open, 2 half-open).",
		}, []string{"backend"}),
		CircuitTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_circuit_transitions_total",
			Help:      "Circuit breaker transitions per backend and target state.",
		}, []string{"backend", "to"}),
	}
	m.registry.MustRegister(
		m.SearchesTotal,
		m.SearchLatency,
		m.SearchResults,
		m.SourceLatency,
		m.SourceFailures,
		m.RerankFailures,
		m.ChunksIngested,
		m.IngestBatches,
		m.VocabularySize,
		m.CorpusDocuments,
		m.CircuitState,
		m.CircuitTransitions,
	)
	return m
}

func (m *Metrics) ObserveSearch(outcome string, results int, took time.Duration) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(outcome).Inc()
	m.SearchLatency.Observe(took.Seconds())
	m.SearchResults.Observe(float64(results))
}

// ObserveSource records one retrieval. failed marks a degraded source.
func (m *Metrics) ObserveSource(source string, took time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.SourceLatency.WithLabelValues(source).Observe(took.Seconds())
	if failed {
		m.SourceFailures.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) RerankFailed() {
	if m == nil {
		return
	}
	m.RerankFailures.Inc()
}

func (m *Metrics) AddChunks(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChunksIngested.WithLabelValues(status).Add(float64(n))
}

func (m *Metrics) ObserveBatch(backend string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.IngestBatches.WithLabelValues(backend, status).Inc()
}

func (m *Metrics) SetState(vocabSize, corpusDocs int) {
	if m == nil {
		return
	}
	m.VocabularySize.Set(float64(vocabSize))
	m.CorpusDocuments.Set(float64(corpusDocs))
}

// ObserveCircuit is a ragerrors.StateListener recording breaker transitions.
func (m *Metrics) ObserveCircuit(backend string, _, to ragerrors.State) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(backend).Set(float64(to))
	m.CircuitTransitions.WithLabelValues(backend, to.String()).Inc()
}

// BreakerOptions returns the breaker options that report into m.
func (m *Metrics) BreakerOptions() []ragerrors.CircuitBreakerOption {
	return []ragerrors.CircuitBreakerOption{ragerrors.WithStateListener(m.ObserveCircuit)}
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// WriteTextfile writes the current values in the node_exporter textfile
// format. It is a no-op when path is empty.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{})
}
