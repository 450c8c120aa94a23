// Package config loads ragdoc configuration from defaults, the user config
// file, the project .ragdoc.yaml and RAGDOC_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

// Backend names accepted by dense.backend and sparse.backend.
const (
	BackendLocal    = "local"
	BackendPinecone = "pinecone"
	BackendNone     = "none"
)

// Normalization modes for the single-source rerank path.
const (
	NormalizationPreserve     = "preserve"
	NormalizationRedistribute = "redistribute"
)

// APIKeyEnv holds the Pinecone secret. It is never read from YAML.
const APIKeyEnv = "PINECONE_API_KEY"

// ProjectConfigName is the per-project configuration file.
const ProjectConfigName = ".ragdoc.yaml"

type Config struct {
	Version int `yaml:"version" json:"version"`
	// Env is dev or prod, taken from APP_ENV when set.
	Env          string             `yaml:"env" json:"env"`
	Paths        PathsConfig        `yaml:"paths" json:"paths"`
	Search       SearchConfig       `yaml:"search" json:"search"`
	BM25         BM25Config         `yaml:"bm25" json:"bm25"`
	Dense        DenseConfig        `yaml:"dense" json:"dense"`
	Sparse       SparseConfig       `yaml:"sparse" json:"sparse"`
	CrossEncoder CrossEncoderConfig `yaml:"cross_encoder" json:"cross_encoder"`
	Ingest       IngestConfig       `yaml:"ingest" json:"ingest"`
	Server       ServerConfig       `yaml:"server" json:"server"`

	APIKey string `yaml:"-" json:"-"`
}

// PathsConfig names the persisted state. Relative file names resolve against
// DataDir; a relative DataDir resolves against the project directory.
type PathsConfig struct {
	DataDir           string `yaml:"data_dir" json:"data_dir"`
	Vocabulary        string `yaml:"vocabulary" json:"vocabulary"`
	DocumentFrequency string `yaml:"document_frequency" json:"document_frequency"`
	Corpus            string `yaml:"corpus" json:"corpus"`
	SparseDB          string `yaml:"sparse_db" json:"sparse_db"`
	VectorIndex       string `yaml:"vector_index" json:"vector_index"`
}

type SearchConfig struct {
	WeightDense   float64 `yaml:"weight_dense" json:"weight_dense"`
	WeightSparse  float64 `yaml:"weight_sparse" json:"weight_sparse"`
	WeightOverlap float64 `yaml:"weight_overlap" json:"weight_overlap"`
	// NormalizationMode is preserve or redistribute.
	NormalizationMode string `yaml:"normalization_mode" json:"normalization_mode"`
	TopKDense         int    `yaml:"top_k_dense" json:"top_k_dense"`
	TopKSparse        int    `yaml:"top_k_sparse" json:"top_k_sparse"`
	TopKBM25          int    `yaml:"top_k_bm25" json:"top_k_bm25"`
	DenseTimeout      string `yaml:"dense_timeout" json:"dense_timeout"`
	SparseTimeout     string `yaml:"sparse_timeout" json:"sparse_timeout"`
	BM25Timeout       string `yaml:"bm25_timeout" json:"bm25_timeout"`
	// RerankTopN enables the cross-encoder stage when > 0.
	RerankTopN int `yaml:"rerank_top_n" json:"rerank_top_n"`
}

type BM25Config struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
	// Epsilon scales the floor applied to negative Okapi idf values.
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`
	// IDF is okapi or lucene.
	IDF string `yaml:"idf" json:"idf"`
}

// BM25 idf modes.
const (
	IDFOkapi  = "okapi"
	IDFLucene = "lucene"
)

type DenseConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	// Pinecone: IndexHost wins over IndexName when both are set.
	IndexName string `yaml:"index_name" json:"index_name"`
	IndexHost string `yaml:"index_host" json:"index_host"`
	Namespace string `yaml:"namespace" json:"namespace"`
	// Local backend embedder.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	Model      string `yaml:"model" json:"model"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

type SparseConfig struct {
	Backend   string `yaml:"backend" json:"backend"`
	IndexName string `yaml:"index_name" json:"index_name"`
	IndexHost string `yaml:"index_host" json:"index_host"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

type CrossEncoderConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Timeout  string `yaml:"timeout" json:"timeout"`
}

type IngestConfig struct {
	BatchSize     int `yaml:"batch_size" json:"batch_size"`
	MaxStoredText int `yaml:"max_stored_text" json:"max_stored_text"`
}

type ServerConfig struct {
	LogLevel      string `yaml:"log_level" json:"log_level"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Env:     "prod",
		Paths: PathsConfig{
			DataDir:           "data",
			Vocabulary:        "vocab.json",
			DocumentFrequency: "df.json",
			Corpus:            "chunks_corpus.jsonl",
			SparseDB:          "sparse.db",
			VectorIndex:       "vectors.hnsw",
		},
		Search: SearchConfig{
			WeightDense:       0.5,
			WeightSparse:      0.3,
			WeightOverlap:     0.2,
			NormalizationMode: NormalizationPreserve,
			TopKDense:         5,
			TopKSparse:        20,
			TopKBM25:          5,
			DenseTimeout:      "10s",
			SparseTimeout:     "10s",
			BM25Timeout:       "5s",
		},
		BM25: BM25Config{K1: 1.5, B: 0.75, Epsilon: 0.25, IDF: IDFOkapi},
		Dense: DenseConfig{
			Backend:    BackendLocal,
			IndexName:  "philosophy-rag",
			Namespace:  "__default__",
			OllamaHost: "http://localhost:11434",
			Model:      "nomic-embed-text",
			CacheSize:  1000,
		},
		Sparse: SparseConfig{
			Backend:   BackendLocal,
			IndexName: "philosophy-rag-sparse",
			Namespace: "__default__",
		},
		CrossEncoder: CrossEncoderConfig{Timeout: "30s"},
		Ingest:       IngestConfig{BatchSize: 100, MaxStoredText: 1000},
		Server:       ServerConfig{LogLevel: "info", WatchDebounce: "500ms"},
	}
}

// GetUserConfigPath follows XDG: $XDG_CONFIG_HOME/ragdoc/config.yaml, else
// ~/.config/ragdoc/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragdoc", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragdoc", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragdoc", "config.yaml")
}

// Load applies, in increasing precedence: defaults, user config, the
// project's .ragdoc.yaml in dir, APP_ENV and RAGDOC_* variables. The result is
// validated and its data directory resolved against dir.
func Load(dir string) (*Config, error) {
	cfg, err := LoadUnvalidated(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without Validate, for callers that report
// problems instead of refusing to start. It still fails on unreadable YAML.
func LoadUnvalidated(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
		return nil, err
	}
	if err := cfg.loadYAML(filepath.Join(dir, ProjectConfigName)); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if !filepath.IsAbs(cfg.Paths.DataDir) {
		cfg.Paths.DataDir = filepath.Join(dir, cfg.Paths.DataDir)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values, so keys absent from the
// file keep their earlier value. A missing file is not an error.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return ragerrors.ConfigError("read config file "+path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return ragerrors.ConfigError("parse config file "+path, err).WithDetail("path", path)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Env = strings.ToLower(v)
	}
	if c.Env == "dev" && os.Getenv("RAGDOC_LOG_LEVEL") == "" {
		c.Server.LogLevel = "debug"
	}
	c.APIKey = os.Getenv(APIKeyEnv)

	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	setFloat := func(env string, dst *float64) {
		if v := os.Getenv(env); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setInt := func(env string, dst *int) {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("RAGDOC_DATA_DIR", &c.Paths.DataDir)
	setString("RAGDOC_LOG_LEVEL", &c.Server.LogLevel)
	setString("RAGDOC_DENSE_BACKEND", &c.Dense.Backend)
	setString("RAGDOC_DENSE_INDEX_HOST", &c.Dense.IndexHost)
	setString("RAGDOC_SPARSE_BACKEND", &c.Sparse.Backend)
	setString("RAGDOC_SPARSE_INDEX_HOST", &c.Sparse.IndexHost)
	setString("RAGDOC_OLLAMA_HOST", &c.Dense.OllamaHost)
	setString("RAGDOC_EMBED_MODEL", &c.Dense.Model)
	setString("RAGDOC_CROSS_ENCODER_ENDPOINT", &c.CrossEncoder.Endpoint)
	setString("RAGDOC_NORMALIZATION_MODE", &c.Search.NormalizationMode)
	setFloat("RAGDOC_WEIGHT_DENSE", &c.Search.WeightDense)
	setFloat("RAGDOC_WEIGHT_SPARSE", &c.Search.WeightSparse)
	setFloat("RAGDOC_WEIGHT_OVERLAP", &c.Search.WeightOverlap)
	setFloat("RAGDOC_BM25_K1", &c.BM25.K1)
	setFloat("RAGDOC_BM25_B", &c.BM25.B)
	setFloat("RAGDOC_BM25_EPSILON", &c.BM25.Epsilon)
	setString("RAGDOC_BM25_IDF", &c.BM25.IDF)
	setInt("RAGDOC_RERANK_TOP_N", &c.Search.RerankTopN)
}

// Validate checks ranges and enumerations. It does not check credentials;
// see RequireCredentials.
func (c *Config) Validate() error {
	for name, w := range map[string]float64{
		"weight_dense":   c.Search.WeightDense,
		"weight_sparse":  c.Search.WeightSparse,
		"weight_overlap": c.Search.WeightOverlap,
	} {
		if w < 0 || w > 1 {
			return ragerrors.ConfigError(fmt.Sprintf("search.%s must be between 0 and 1, got %g", name, w), nil)
		}
	}
	if c.Search.WeightDense+c.Search.WeightSparse+c.Search.WeightOverlap == 0 {
		return ragerrors.ConfigError("search weights must not all be zero", nil)
	}

	switch c.Search.NormalizationMode {
	case NormalizationPreserve, NormalizationRedistribute:
	default:
		return ragerrors.ConfigError(fmt.Sprintf("search.normalization_mode must be %q or %q, got %q",
			NormalizationPreserve, NormalizationRedistribute, c.Search.NormalizationMode), nil)
	}

	if c.Search.TopKDense < 0 || c.Search.TopKSparse < 0 || c.Search.TopKBM25 < 0 || c.Search.RerankTopN < 0 {
		return ragerrors.ConfigError("search top_k values must be non-negative", nil)
	}
	if c.BM25.K1 < 0 {
		return ragerrors.ConfigError(fmt.Sprintf("bm25.k1 must be non-negative, got %g", c.BM25.K1), nil)
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		return ragerrors.ConfigError(fmt.Sprintf("bm25.b must be between 0 and 1, got %g", c.BM25.B), nil)
	}
	if c.BM25.Epsilon < 0 {
		return ragerrors.ConfigError(fmt.Sprintf("bm25.epsilon must be non-negative, got %g", c.BM25.Epsilon), nil)
	}
	switch c.BM25.IDF {
	case IDFOkapi, IDFLucene:
	default:
		return ragerrors.ConfigError(fmt.Sprintf("bm25.idf must be %q or %q, got %q", IDFOkapi, IDFLucene, c.BM25.IDF), nil)
	}

	for field, v := range map[string]string{
		"dense.backend":  c.Dense.Backend,
		"sparse.backend": c.Sparse.Backend,
	} {
		switch v {
		case BackendLocal, BackendPinecone, BackendNone:
		default:
			return ragerrors.ConfigError(fmt.Sprintf("%s must be local, pinecone or none, got %q", field, v), nil)
		}
	}

	for field, v := range map[string]string{
		"search.dense_timeout":  c.Search.DenseTimeout,
		"search.sparse_timeout": c.Search.SparseTimeout,
		"search.bm25_timeout":   c.Search.BM25Timeout,
		"cross_encoder.timeout": c.CrossEncoder.Timeout,
		"server.watch_debounce": c.Server.WatchDebounce,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return ragerrors.ConfigError(fmt.Sprintf("%s is not a duration: %q", field, v), err)
		}
	}

	if c.Ingest.BatchSize <= 0 {
		return ragerrors.ConfigError(fmt.Sprintf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize), nil)
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return ragerrors.ConfigError(fmt.Sprintf("server.log_level must be debug, info, warn or error, got %q", c.Server.LogLevel), nil)
	}
	return nil
}

// RequireCredentials fails when a Pinecone backend is selected without
// PINECONE_API_KEY.
func (c *Config) RequireCredentials() error {
	if (c.Dense.Backend == BackendPinecone || c.Sparse.Backend == BackendPinecone) && c.APIKey == "" {
		return ragerrors.CredentialError(APIKeyEnv)
	}
	return nil
}

// WriteYAML writes the configuration, without secrets, to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Duration parses s, returning fallback when s is empty or malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
