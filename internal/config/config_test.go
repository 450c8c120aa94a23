package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

// isolate points the user config at an empty directory and clears env
// variables that would leak into Load.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{"APP_ENV", APIKeyEnv, "RAGDOC_LOG_LEVEL", "RAGDOC_DATA_DIR", "RAGDOC_DENSE_BACKEND", "RAGDOC_SPARSE_BACKEND"} {
		t.Setenv(k, "")
	}
	return t.TempDir()
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration
	cfg := NewConfig()

	// Then: retrieval constants match the documented defaults
	assert.Equal(t, 0.5, cfg.Search.WeightDense)
	assert.Equal(t, 0.3, cfg.Search.WeightSparse)
	assert.Equal(t, 0.2, cfg.Search.WeightOverlap)
	assert.Equal(t, NormalizationPreserve, cfg.Search.NormalizationMode)
	assert.Equal(t, 5, cfg.Search.TopKDense)
	assert.Equal(t, 20, cfg.Search.TopKSparse)
	assert.Equal(t, 1.5, cfg.BM25.K1)
	assert.Equal(t, 0.75, cfg.BM25.B)
	assert.Equal(t, 0.25, cfg.BM25.Epsilon)
	assert.Equal(t, IDFOkapi, cfg.BM25.IDF)
	assert.Equal(t, 100, cfg.Ingest.BatchSize)
	assert.Equal(t, 1000, cfg.Ingest.MaxStoredText)
	assert.Equal(t, "__default__", cfg.Sparse.Namespace)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	// Given: a project config changing k1 and the sparse backend
	dir := isolate(t)
	yml := "bm25:\n  k1: 1.8\nsparse:\n  backend: none\nsearch:\n  weight_overlap: 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte(yml), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: set keys change and unset keys keep defaults, including explicit zero
	require.NoError(t, err)
	assert.Equal(t, 1.8, cfg.BM25.K1)
	assert.Equal(t, 0.75, cfg.BM25.B)
	assert.Equal(t, BackendNone, cfg.Sparse.Backend)
	assert.Equal(t, 0.0, cfg.Search.WeightOverlap)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Paths.DataDir)
	assert.Equal(t, filepath.Join(dir, "data", "vocab.json"), cfg.Paths.VocabularyPath())
}

func TestLoad_UserConfigBelowProjectConfig(t *testing.T) {
	dir := isolate(t)
	userPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte("bm25:\n  k1: 2.0\n  b: 0.5\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("bm25:\n  k1: 1.1\n"), 0o644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 1.1, cfg.BM25.K1)
	assert.Equal(t, 0.5, cfg.BM25.B)
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	// Given: a project file and env variables
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("search:\n  weight_dense: 0.4\n"), 0o644))
	t.Setenv("RAGDOC_WEIGHT_DENSE", "0.6")
	t.Setenv("RAGDOC_NORMALIZATION_MODE", NormalizationRedistribute)
	t.Setenv(APIKeyEnv, "pc-secret")

	// When: loading
	cfg, err := Load(dir)

	// Then: env wins and the API key is picked up
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Search.WeightDense)
	assert.Equal(t, NormalizationRedistribute, cfg.Search.NormalizationMode)
	assert.Equal(t, "pc-secret", cfg.APIKey)
}

func TestLoad_AppEnvDevSelectsDebug(t *testing.T) {
	dir := isolate(t)
	t.Setenv("APP_ENV", "DEV")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_InvalidYAMLIsConfigurationError(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("bm25: [oops"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.True(t, ragerrors.IsFatal(err))
	assert.Equal(t, ragerrors.ErrCodeConfigInvalid, ragerrors.GetCode(err))
}

func TestLoadUnvalidated_KeepsInvalidValues(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("bm25:\n  b: 3\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)

	cfg, err := LoadUnvalidated(dir)
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.BM25.B)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Paths.DataDir)
	assert.Error(t, cfg.Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weight above one", func(c *Config) { c.Search.WeightDense = 1.5 }},
		{"negative weight", func(c *Config) { c.Search.WeightSparse = -0.1 }},
		{"all weights zero", func(c *Config) { c.Search.WeightDense, c.Search.WeightSparse, c.Search.WeightOverlap = 0, 0, 0 }},
		{"unknown normalization", func(c *Config) { c.Search.NormalizationMode = "squash" }},
		{"b above one", func(c *Config) { c.BM25.B = 2 }},
		{"negative k1", func(c *Config) { c.BM25.K1 = -1 }},
		{"negative epsilon", func(c *Config) { c.BM25.Epsilon = -0.1 }},
		{"unknown idf", func(c *Config) { c.BM25.IDF = "robertson" }},
		{"unknown backend", func(c *Config) { c.Dense.Backend = "faiss" }},
		{"bad timeout", func(c *Config) { c.Search.DenseTimeout = "soon" }},
		{"zero batch", func(c *Config) { c.Ingest.BatchSize = 0 }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, ragerrors.IsFatal(err))
		})
	}
}

func TestRequireCredentials(t *testing.T) {
	// Given: local backends without a key
	cfg := NewConfig()
	require.NoError(t, cfg.RequireCredentials())

	// When: a Pinecone backend is selected
	cfg.Sparse.Backend = BackendPinecone
	err := cfg.RequireCredentials()

	// Then: the missing key is a fatal credential error
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeCredentialMissing, ragerrors.GetCode(err))

	cfg.APIKey = "k"
	assert.NoError(t, cfg.RequireCredentials())
}

func TestWriteYAML_OmitsSecret(t *testing.T) {
	cfg := NewConfig()
	cfg.APIKey = "do-not-write"
	path := filepath.Join(t.TempDir(), "out.yaml")

	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "do-not-write")
	assert.Contains(t, string(data), "normalization_mode: preserve")
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, Duration("2s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("nope", time.Minute))
}

func TestBackupFile_KeepsNewest(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectConfigName)

	got, err := BackupFile(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))
	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupFile(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	matches, err := filepath.Glob(path + ".bak.*")
	require.NoError(t, err)
	assert.Len(t, matches, MaxBackups)
}
