package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSearch(OutcomeOK, 3, time.Millisecond)
		m.ObserveSource("dense", time.Millisecond, true)
		m.RerankFailed()
		m.AddChunks("stored", 2)
		m.ObserveBatch("sparse", nil)
		m.SetState(1, 1)
		m.ObserveCircuit("ollama", ragerrors.StateClosed, ragerrors.StateOpen)
	})
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Records(t *testing.T) {
	// Given: fresh metrics
	m := New()

	// When: recording a degraded search and an ingest
	m.ObserveSearch(OutcomeDegraded, 4, 20*time.Millisecond)
	m.ObserveSource("sparse", 5*time.Millisecond, true)
	m.ObserveSource("dense", 5*time.Millisecond, false)
	m.AddChunks("stored", 3)
	m.AddChunks("stored", 0)
	m.ObserveBatch("sparse", errors.New("boom"))
	m.SetState(42, 7)

	// Then: the exposition reflects the calls
	body := scrape(t, m)
	assert.Contains(t, body, `ragdoc_searches_total{outcome="degraded"} 1`)
	assert.Contains(t, body, `ragdoc_source_failures_total{source="sparse"} 1`)
	assert.NotContains(t, body, `ragdoc_source_failures_total{source="dense"}`)
	assert.Contains(t, body, `ragdoc_chunks_ingested_total{status="stored"} 3`)
	assert.Contains(t, body, `ragdoc_ingest_batches_total{backend="sparse",status="failed"} 1`)
	assert.Contains(t, body, "ragdoc_vocabulary_size 42")
	assert.Contains(t, body, "ragdoc_corpus_documents 7")
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.AddChunks("stored", 5)
	path := filepath.Join(t.TempDir(), "ragdoc.prom")

	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ragdoc_chunks_ingested_total{status="stored"} 5`)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RerankFailed()

	assert.Contains(t, scrape(t, m), "ragdoc_cross_encoder_failures_total 1")
}

func TestMetrics_CircuitTransitionsPerBackend(t *testing.T) {
	// Given: a pinecone breaker reporting into fresh metrics
	m := New()
	cb := ragerrors.NewCircuitBreaker("pinecone-sparse", append(m.BreakerOptions(), ragerrors.WithMaxFailures(1))...)

	// When: one call fails and trips it
	_ = cb.Execute(func() error { return errors.New("down") })

	// Then: the gauge shows open and the transition is counted for that backend only
	body := scrape(t, m)
	assert.Contains(t, body, `ragdoc_backend_circuit_state{backend="pinecone-sparse"} 1`)
	assert.Contains(t, body, `ragdoc_backend_circuit_transitions_total{backend="pinecone-sparse",to="open"} 1`)
	assert.NotContains(t, body, `backend="ollama"`)
}
