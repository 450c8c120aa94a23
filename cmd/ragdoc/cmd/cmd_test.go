package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaganraajan/rag-document-parser/internal/config"
	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
	"github.com/jaganraajan/rag-document-parser/internal/ingest"
	"github.com/jaganraajan/rag-document-parser/internal/mcp"
	"github.com/jaganraajan/rag-document-parser/internal/preflight"
	"github.com/jaganraajan/rag-document-parser/internal/search"
)

const testChunks = `{"id":"a","chunk_text":"Virtue is knowledge, said Socrates in the agora.","metadata":{"author":"Plato","tags":["ethics"]}}
not json
{"id":"b","chunk_text":"The allegory of the cave describes prisoners watching shadows.","metadata":{"author":"Plato"}}

{"id":"c","chunk_text":"Happiness is the highest good, according to Aristotle."}
`

// project creates an isolated project using only local, offline backends.
func project(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{"APP_ENV", config.APIKeyEnv, "RAGDOC_DATA_DIR", "RAGDOC_DENSE_BACKEND", "RAGDOC_SPARSE_BACKEND", "RAGDOC_RERANK_TOP_N", "RAGDOC_CROSS_ENCODER_ENDPOINT"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	yml := "dense:\n  backend: none\nsparse:\n  backend: local\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectConfigName), []byte(yml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunks.jsonl"), []byte(testChunks), 0o644))
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--config-dir", dir}, args...))
	err := root.Execute()
	return buf.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, args...)
	require.NoError(t, err, out)
	return out
}

func TestIngestThenSearch(t *testing.T) {
	// Given: an ingested chunk file with one malformed line
	dir := project(t)
	out := mustRun(t, dir, "ingest", filepath.Join(dir, "chunks.jsonl"))
	assert.Contains(t, out, "Ingested 3 of 3 chunks")
	assert.Contains(t, out, "line 2")

	// When: searching with JSON output
	out = mustRun(t, dir, "search", "virtue", "knowledge", "--format", "json")

	// Then: the sparse source alone ranks the Socrates chunk first
	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Results)
	first := resp.Results[0]
	assert.Equal(t, "id_1", first.ID)
	assert.Equal(t, search.SourceSparseOnly, first.Source)
	assert.Contains(t, first.Text, "Virtue is knowledge")
	assert.Equal(t, "Plato", first.Metadata["author"])
	require.NotEmpty(t, resp.BM25)
	assert.Equal(t, "id_1", resp.BM25[0].ID)
}

func TestSearch_TextAndContextFormats(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "ingest", filepath.Join(dir, "chunks.jsonl"))

	text := mustRun(t, dir, "search", "cave", "shadows")
	assert.Contains(t, text, `Results for "cave shadows"`)
	assert.Contains(t, text, "*cave*")
	assert.Contains(t, text, "sparse_only")

	ctx := mustRun(t, dir, "search", "cave", "--format", "context")
	assert.Contains(t, ctx, "--- Chunk 1 ---")
}

func TestSearch_RejectsBadInput(t *testing.T) {
	dir := project(t)

	_, err := run(t, dir, "search", "   ")
	assert.Equal(t, ragerrors.ErrCodeEmptyInput, ragerrors.GetCode(err))

	_, err = run(t, dir, "search", "cave", "--format", "yaml")
	assert.Equal(t, ragerrors.ErrCodeInvalidInput, ragerrors.GetCode(err))
}

func TestSearch_EmptyCorpus(t *testing.T) {
	dir := project(t)

	out := mustRun(t, dir, "search", "anything")

	assert.Contains(t, out, `No results for "anything"`)
}

func TestBM25Command(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "ingest", filepath.Join(dir, "chunks.jsonl"))

	out := mustRun(t, dir, "bm25", "Aristotle", "-n", "1")

	assert.Contains(t, out, "1. id_3")
	assert.NotContains(t, out, "2. ")
}

func TestIngestTwice_ContinuesIDs(t *testing.T) {
	dir := project(t)
	chunks := filepath.Join(dir, "chunks.jsonl")
	mustRun(t, dir, "ingest", chunks)

	mustRun(t, dir, "ingest", chunks)

	out := mustRun(t, dir, "stats", "--json")
	var st mcp.CorpusStatsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 6, st.Chunks)
	assert.Equal(t, 2, st.DocumentCount)

	out = mustRun(t, dir, "bm25", "Aristotle")
	assert.Contains(t, out, "id_6")
}

func TestIngest_ResetStartsOver(t *testing.T) {
	dir := project(t)
	chunks := filepath.Join(dir, "chunks.jsonl")
	mustRun(t, dir, "ingest", chunks)

	mustRun(t, dir, "ingest", "--reset", chunks)

	out := mustRun(t, dir, "stats", "--json")
	var st mcp.CorpusStatsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 3, st.Chunks)
	assert.Equal(t, 1, st.DocumentCount)
}

func TestIngest_Errors(t *testing.T) {
	dir := project(t)

	_, err := run(t, dir, "ingest", filepath.Join(dir, "missing.jsonl"))
	assert.Equal(t, ragerrors.ErrCodePathMissing, ragerrors.GetCode(err))

	empty := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o644))
	_, err = run(t, dir, "ingest", empty)
	assert.Equal(t, ragerrors.ErrCodeEmptyInput, ragerrors.GetCode(err))
}

func TestIngest_RefusedWhileLocked(t *testing.T) {
	// Given: another writer holding the ingestion lock
	dir := project(t)
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(cfg.Paths.DataDir, 0o755))
	other := ingest.NewFileLock(cfg.Paths.LockPath())
	require.NoError(t, other.MustTryLock())
	defer func() { _ = other.Unlock() }()

	// When: ingesting
	_, err = run(t, dir, "ingest", filepath.Join(dir, "chunks.jsonl"))

	// Then: the command refuses
	assert.Equal(t, ragerrors.ErrCodeLockHeld, ragerrors.GetCode(err))
}

func TestClear(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "ingest", filepath.Join(dir, "chunks.jsonl"))

	t.Run("keeps vocabulary by default", func(t *testing.T) {
		out := mustRun(t, dir, "clear")
		assert.Contains(t, out, "Cleared corpus")

		var st mcp.CorpusStatsOutput
		require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "stats", "--json")), &st))
		assert.Equal(t, 0, st.Chunks)
		assert.Greater(t, st.VocabSize, 0)
	})

	t.Run("reset-vocab", func(t *testing.T) {
		out := mustRun(t, dir, "clear", "--reset-vocab")
		assert.Contains(t, out, "Reset vocabulary")

		var st mcp.CorpusStatsOutput
		require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "stats", "--json")), &st))
		assert.Equal(t, 0, st.VocabSize)
	})
}

func TestStats_Text(t *testing.T) {
	dir := project(t)

	out := mustRun(t, dir, "stats")

	assert.Contains(t, out, "chunks:")
	assert.Contains(t, out, "none")
	assert.Contains(t, out, "local")
}

func TestEval(t *testing.T) {
	// Given: a small labeled dataset
	dir := project(t)
	mustRun(t, dir, "ingest", filepath.Join(dir, "chunks.jsonl"))
	dataset := filepath.Join(dir, "eval.json")
	require.NoError(t, os.WriteFile(dataset, []byte(`[
		{"query": "allegory of the cave", "relevant_substrings": ["cave"]},
		{"query": "highest good", "relevant_substrings": ["Aristotle"]}
	]`), 0o644))
	resultsPath := filepath.Join(dir, "out", "results.json")

	// When: evaluating
	out := mustRun(t, dir, "eval", dataset, "--top-k", "2", "--output", resultsPath)

	// Then: every method is summarized and the detail file is written
	assert.Contains(t, out, "2 queries, k=2")
	for _, m := range []string{"vector", "bm25", "hybrid"} {
		assert.Contains(t, out, m)
	}
	assert.Contains(t, out, "bm25    coverage 1.000")
	assert.FileExists(t, resultsPath)
}

func TestConfigInit_TemplateMatchesDefaults(t *testing.T) {
	// Given: an empty project directory
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	// When: writing the template
	out := mustRun(t, dir, "config", "init")
	assert.Contains(t, out, "Wrote")

	// Then: loading it yields the built-in defaults
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	def := config.NewConfig()
	assert.Equal(t, def.Search, cfg.Search)
	assert.Equal(t, def.BM25, cfg.BM25)
	assert.Equal(t, def.Dense, cfg.Dense)
	assert.Equal(t, def.Ingest, cfg.Ingest)

	// A second init keeps the file; --force backs it up.
	out = mustRun(t, dir, "config", "init")
	assert.Contains(t, out, "already exists")
	mustRun(t, dir, "config", "init", "--force")
	backups, err := filepath.Glob(filepath.Join(dir, config.ProjectConfigName+".bak.*"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestConfigShow(t *testing.T) {
	dir := project(t)

	out := mustRun(t, dir, "config", "show")
	assert.Contains(t, out, "backend: none")

	out = mustRun(t, dir, "config", "show", "--json")
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Contains(t, m, "search")
}

func TestVersion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())

	out := mustRun(t, dir, "version", "--short")
	assert.Equal(t, "dev", strings.TrimSpace(out))

	out = mustRun(t, dir, "version")
	assert.True(t, strings.HasPrefix(out, "ragdoc dev"))
}

func TestPineconeBackendNeedsKey(t *testing.T) {
	dir := project(t)
	t.Setenv("RAGDOC_SPARSE_BACKEND", config.BackendPinecone)

	_, err := run(t, dir, "stats")

	assert.Equal(t, ragerrors.ErrCodeCredentialMissing, ragerrors.GetCode(err))
}

func TestDoctor(t *testing.T) {
	// Given: a project with ingested chunks
	dir := project(t)
	mustRun(t, dir, "ingest", filepath.Join(dir, "chunks.jsonl"))

	// When: running doctor with JSON output
	out := mustRun(t, dir, "doctor", "--json")

	// Then: the local sparse index is probed and dense is reported disabled
	var got struct {
		Status string                  `json:"status"`
		Checks []preflight.CheckResult `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	msgs := map[string]string{}
	for _, c := range got.Checks {
		msgs[c.Name] = c.Message
	}
	assert.Equal(t, "disabled", msgs["dense_backend"])
	assert.Equal(t, "local: 3 vectors", msgs["sparse_backend"])
	assert.True(t, strings.HasPrefix(msgs["state"], "3 chunks, "), msgs["state"])
	assert.NotEqual(t, "failed", got.Status)
}

func TestDoctor_InvalidConfigFails(t *testing.T) {
	dir := project(t)
	yml := "dense:\n  backend: none\nsparse:\n  backend: local\nsearch:\n  normalization_mode: sideways\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectConfigName), []byte(yml), 0o644))

	out, err := run(t, dir, "doctor")

	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeConfigInvalid, ragerrors.GetCode(err))
	assert.Contains(t, out, "normalization_mode")
	assert.Contains(t, out, "FAILED")
}
