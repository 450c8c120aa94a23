package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultBatchSize   = 32
)

// OllamaConfig configures the Ollama /api/embed client.
type OllamaConfig struct {
	Host      string
	Model     string
	BatchSize int
	Timeout   time.Duration
	Retry     ragerrors.RetryConfig
	// BreakerOptions extend the "ollama" circuit breaker, e.g. with a
	// metrics listener.
	BreakerOptions []ragerrors.CircuitBreakerOption
}

func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:      DefaultOllamaHost,
		Model:     DefaultOllamaModel,
		BatchSize: DefaultBatchSize,
		Timeout:   60 * time.Second,
		Retry:     ragerrors.DefaultRetryConfig(),
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaEmbedder calls a local Ollama server. Calls are retried with backoff
// and guarded by a circuit breaker.
type OllamaEmbedder struct {
	cfg     OllamaConfig
	client  *http.Client
	breaker *ragerrors.CircuitBreaker
}

func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	def := DefaultOllamaConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = def.Retry
	}
	breakerOpts := append([]ragerrors.CircuitBreakerOption{ragerrors.WithMaxFailures(3)}, cfg.BreakerOptions...)
	return &OllamaEmbedder{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: ragerrors.NewCircuitBreaker("ollama", breakerOpts...),
	}
}

func (e *OllamaEmbedder) ModelName() string { return e.cfg.Model }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in request batches of cfg.BatchSize.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		batch := texts[start:end]

		vecs, err := ragerrors.RetryWithResult(ctx, e.cfg.Retry, func() ([][]float32, error) {
			return ragerrors.CircuitExecute(e.breaker, func() ([][]float32, error) {
				return e.doEmbed(ctx, batch)
			})
		})
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, ragerrors.BackendError("ollama", "embed request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		code := ragerrors.ErrCodeBackendRejected
		if resp.StatusCode >= 500 {
			code = ragerrors.ErrCodeBackendUnavailable
		}
		return nil, ragerrors.New(code, fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil).
			WithDetail("backend", "ollama")
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ragerrors.BackendError("ollama", "decode embed response", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, ragerrors.New(ragerrors.ErrCodeBackendRejected,
			fmt.Sprintf("ollama returned %d embeddings for %d texts", len(parsed.Embeddings), len(texts)), nil)
	}

	vecs := make([][]float32, len(parsed.Embeddings))
	for i, emb := range parsed.Embeddings {
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		vecs[i] = normalize(v)
	}
	slog.Debug("ollama_embed",
		slog.Int("texts", len(texts)),
		slog.Duration("took", time.Since(start)))
	return vecs, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Health checks that the server answers GET /api/tags and has the configured
// model pulled. A model configured without a tag matches name:latest.
func (e *OllamaEmbedder) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return ragerrors.BackendError("ollama", "ollama unreachable at "+e.cfg.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return ragerrors.BackendError("ollama", fmt.Sprintf("ollama returned %d for /api/tags", resp.StatusCode), nil)
	}
	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return ragerrors.BackendError("ollama", "decode /api/tags response", err)
	}
	want := e.cfg.Model
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range tags.Models {
		if m.Name == want || m.Name == e.cfg.Model {
			return nil
		}
	}
	return ragerrors.New(ragerrors.ErrCodeBackendRejected, "ollama model "+e.cfg.Model+" is not pulled", nil).
		WithDetail("backend", "ollama").
		WithSuggestion("run: ollama pull " + e.cfg.Model)
}
