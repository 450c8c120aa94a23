package preflight

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaganraajan/rag-document-parser/internal/config"
	"github.com/jaganraajan/rag-document-parser/internal/ingest"
	"github.com/jaganraajan/rag-document-parser/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.DataDir = t.TempDir()
	return cfg
}

func seedState(t *testing.T, cfg *config.Config) {
	t.Helper()
	corpus := store.NewCorpus(cfg.Paths.CorpusPath(), store.BM25Config{K1: 1.2, B: 0.75})
	require.NoError(t, corpus.Append(store.Chunk{ID: "id_1", Text: "the allegory of the cave"}))
	vocab := store.OpenVocabulary(cfg.Paths.VocabularyPath(), cfg.Paths.DocumentFrequencyPath())
	vocab.GetOrCreateID("cave")
	vocab.IncrementDF(map[string]struct{}{"cave": {}})
	require.NoError(t, vocab.Save())
}

func ok(msg string) Probe {
	return func(context.Context) (string, error) { return msg, nil }
}

func byName(results []CheckResult) map[string]CheckResult {
	m := make(map[string]CheckResult, len(results))
	for _, r := range results {
		m[r.Name] = r
	}
	return m
}

func TestRunAll_Ready(t *testing.T) {
	// Given: valid local config, seeded state and healthy probes
	cfg := testConfig(t)
	cfg.CrossEncoder.Endpoint = "http://rerank:8080"
	seedState(t, cfg)
	c := New(cfg,
		WithMinFreeBytes(1),
		WithDenseProbe(ok("nomic-embed-text ready")),
		WithSparseProbe(ok("sqlite ok")),
		WithCrossEncoderProbe(ok("healthy")))

	// When: running every check
	results := c.RunAll(context.Background())

	// Then: everything passes
	require.Len(t, results, 9)
	for _, r := range results {
		assert.Equal(t, StatusPass, r.Status, "%s: %s", r.Name, r.Message)
	}
	got := byName(results)
	assert.Equal(t, "1 chunks, 1 tokens, 1 documents", got["state"].Message)
	assert.Equal(t, "local: nomic-embed-text ready", got["dense_backend"].Message)
	assert.Equal(t, "not needed", got["credentials"].Message)
	assert.Equal(t, "ready", SummaryStatus(results))
	assert.False(t, HasCriticalFailures(results))
}

func TestRunAll_InvalidConfigSkipsBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.NormalizationMode = "bogus"
	probed := false
	c := New(cfg, WithMinFreeBytes(1), WithDenseProbe(func(context.Context) (string, error) {
		probed = true
		return "", nil
	}))

	results := c.RunAll(context.Background())

	assert.Len(t, results, 6)
	assert.False(t, probed)
	assert.True(t, results[0].IsCritical())
	assert.Equal(t, "failed", SummaryStatus(results))
}

func TestCheckCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sparse.Backend = config.BackendPinecone

	r := New(cfg).CheckCredentials()
	assert.Equal(t, StatusFail, r.Status)
	assert.Contains(t, r.Message, config.APIKeyEnv)

	cfg.APIKey = "secret"
	r = New(cfg).CheckCredentials()
	assert.Equal(t, StatusPass, r.Status)
	assert.NotContains(t, r.Message, "secret")
}

func TestCheckBackend_FailureIsWarning(t *testing.T) {
	// Given: an unreachable dense backend and a disabled sparse one
	cfg := testConfig(t)
	cfg.Sparse.Backend = config.BackendNone
	seedState(t, cfg)
	c := New(cfg, WithMinFreeBytes(1), WithDenseProbe(func(context.Context) (string, error) {
		return "", errors.New("connection refused")
	}))

	// When: running
	results := c.RunAll(context.Background())

	// Then: search still works, with a warning
	got := byName(results)
	assert.Equal(t, StatusWarn, got["dense_backend"].Status)
	assert.Contains(t, got["dense_backend"].Message, "connection refused")
	assert.Equal(t, "disabled", got["sparse_backend"].Message)
	assert.Equal(t, "not configured", got["cross_encoder"].Message)
	assert.Equal(t, "ready_with_warnings", SummaryStatus(results))
	assert.False(t, HasCriticalFailures(results))
}

func TestCheckBackend_ProbeTimeout(t *testing.T) {
	cfg := testConfig(t)
	c := New(cfg, WithProbeTimeout(10*time.Millisecond))

	r := c.checkBackend(context.Background(), "dense_backend", config.BackendPinecone, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	assert.Equal(t, StatusWarn, r.Status)
	assert.Contains(t, r.Message, "deadline exceeded")
}

func TestCheckBackend_NoProbe(t *testing.T) {
	r := New(testConfig(t)).checkBackend(context.Background(), "dense_backend", config.BackendLocal, nil)

	assert.Equal(t, StatusWarn, r.Status)
	assert.Equal(t, "local: not checked", r.Message)
}

func TestCheckIngestLock(t *testing.T) {
	cfg := testConfig(t)
	c := New(cfg)
	assert.Equal(t, "free", c.CheckIngestLock().Message)

	held := ingest.NewFileLock(cfg.Paths.LockPath())
	require.NoError(t, held.MustTryLock())
	defer func() { _ = held.Unlock() }()

	r := c.CheckIngestLock()
	assert.Equal(t, StatusWarn, r.Status)
	assert.Contains(t, r.Message, "running")
}

func TestCheckState(t *testing.T) {
	t.Run("empty corpus", func(t *testing.T) {
		r := New(testConfig(t)).CheckState()
		assert.Equal(t, StatusWarn, r.Status)
		assert.Contains(t, r.Message, "ragdoc ingest")
	})
	t.Run("corpus without vocabulary", func(t *testing.T) {
		cfg := testConfig(t)
		corpus := store.NewCorpus(cfg.Paths.CorpusPath(), store.BM25Config{K1: 1.2, B: 0.75})
		require.NoError(t, corpus.Append(store.Chunk{ID: "id_1", Text: "cave"}))

		r := New(cfg).CheckState()

		assert.Equal(t, StatusWarn, r.Status)
		assert.Contains(t, r.Message, "--reset")
	})
}

func TestCheckDiskSpace_BelowMinimum(t *testing.T) {
	cfg := testConfig(t)

	r := New(cfg, WithMinFreeBytes(math.MaxUint64)).CheckDiskSpace(cfg.Paths.DataDir)

	if r.Status == StatusWarn {
		t.Skip("disk space is not checked on this platform")
	}
	assert.True(t, r.IsCritical())
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	c := New(testConfig(t), WithOutput(&buf), WithVerbose(true))

	c.PrintResults([]CheckResult{
		{Name: "config", Status: StatusPass, Message: "dense=local sparse=local", Required: true},
		{Name: "dense_backend", Status: StatusWarn, Message: "local: refused", Details: "search continues without this retriever"},
	})

	out := buf.String()
	assert.Contains(t, out, "ragdoc doctor")
	assert.Contains(t, out, "✓ config")
	assert.Contains(t, out, "! dense_backend")
	assert.Contains(t, out, "search continues")
	assert.Contains(t, out, "READY_WITH_WARNINGS")
}

func TestCheckStatus_Text(t *testing.T) {
	b, err := StatusWarn.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "warn", string(b))
	var back CheckStatus
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, StatusWarn, back)
	assert.Error(t, back.UnmarshalText([]byte("maybe")))
	assert.Equal(t, "UNKNOWN", CheckStatus(9).String())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "100.0 MB", formatBytes(MinFreeBytes))
	assert.Equal(t, "2.0 GB", formatBytes(2<<30))
}
