package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jaganraajan/rag-document-parser/internal/config"
	"github.com/jaganraajan/rag-document-parser/internal/ingest"
	"github.com/jaganraajan/rag-document-parser/internal/output"
	"github.com/jaganraajan/rag-document-parser/internal/store"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

func (s *CheckStatus) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "PASS":
		*s = StatusPass
	case "WARN":
		*s = StatusWarn
	case "FAIL":
		*s = StatusFail
	default:
		return fmt.Errorf("unknown check status %q", text)
	}
	return nil
}

// CheckResult holds the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Probe checks one remote dependency and returns a short description of
// what it found.
type Probe func(ctx context.Context) (string, error)

const (
	// MinFreeBytes is the free space required under the data directory.
	MinFreeBytes = 100 * 1024 * 1024

	DefaultProbeTimeout = 5 * time.Second
)

// Checker runs checks against one resolved configuration.
type Checker struct {
	cfg          *config.Config
	out          io.Writer
	verbose      bool
	minFree      uint64
	probeTimeout time.Duration

	dense  Probe
	sparse Probe
	rerank Probe
}

type Option func(*Checker)

func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.out = w }
}

// WithVerbose prints check details below each line.
func WithVerbose(v bool) Option {
	return func(c *Checker) { c.verbose = v }
}

func WithMinFreeBytes(n uint64) Option {
	return func(c *Checker) { c.minFree = n }
}

func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) { c.probeTimeout = d }
}

// WithDenseProbe, WithSparseProbe and WithCrossEncoderProbe register the
// backend probes. A backend without a probe is reported as not checked.
func WithDenseProbe(p Probe) Option {
	return func(c *Checker) { c.dense = p }
}

func WithSparseProbe(p Probe) Option {
	return func(c *Checker) { c.sparse = p }
}

func WithCrossEncoderProbe(p Probe) Option {
	return func(c *Checker) { c.rerank = p }
}

func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:          cfg,
		out:          os.Stdout,
		minFree:      MinFreeBytes,
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check in a fixed order. Backend probes are skipped when
// the configuration itself is invalid.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	results := []CheckResult{c.CheckConfig()}
	configOK := results[0].Status == StatusPass

	results = append(results,
		c.CheckCredentials(),
		c.CheckDataDir(),
		c.CheckDiskSpace(c.cfg.Paths.DataDir),
		c.CheckIngestLock(),
		c.CheckState(),
	)
	if !configOK {
		return results
	}
	results = append(results,
		c.checkBackend(ctx, "dense_backend", c.cfg.Dense.Backend, c.dense),
		c.checkBackend(ctx, "sparse_backend", c.cfg.Sparse.Backend, c.sparse),
		c.CheckCrossEncoder(ctx),
	)
	return results
}

func (c *Checker) CheckConfig() CheckResult {
	r := CheckResult{Name: "config", Required: true}
	if err := c.cfg.Validate(); err != nil {
		r.Status = StatusFail
		r.Message = err.Error()
		return r
	}
	r.Message = fmt.Sprintf("dense=%s sparse=%s", c.cfg.Dense.Backend, c.cfg.Sparse.Backend)
	return r
}

func (c *Checker) CheckCredentials() CheckResult {
	r := CheckResult{Name: "credentials", Required: true}
	if err := c.cfg.RequireCredentials(); err != nil {
		r.Status = StatusFail
		r.Message = err.Error()
		return r
	}
	if c.cfg.APIKey == "" {
		r.Message = "not needed"
	} else {
		r.Message = config.APIKeyEnv + " is set"
	}
	return r
}

// CheckDataDir creates the data directory if needed and writes a probe file
// into it.
func (c *Checker) CheckDataDir() CheckResult {
	r := CheckResult{Name: "data_dir", Required: true, Details: c.cfg.Paths.DataDir}
	if err := os.MkdirAll(c.cfg.Paths.DataDir, 0o755); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot create: %v", err)
		return r
	}
	f, err := os.CreateTemp(c.cfg.Paths.DataDir, ".ragdoc-preflight-*")
	if err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("not writable: %v", err)
		return r
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	r.Message = "writable"
	return r
}

// CheckIngestLock warns while another process holds the ingest lock.
func (c *Checker) CheckIngestLock() CheckResult {
	r := CheckResult{Name: "ingest_lock", Details: c.cfg.Paths.LockPath()}
	lock := ingest.NewFileLock(c.cfg.Paths.LockPath())
	ok, err := lock.TryLock()
	switch {
	case err != nil:
		r.Status = StatusWarn
		r.Message = err.Error()
	case !ok:
		r.Status = StatusWarn
		r.Message = "an ingest or clear is running"
	default:
		_ = lock.Unlock()
		r.Message = "free"
	}
	return r
}

// CheckState reads the corpus and vocabulary. An empty corpus is a warning;
// a corpus without a vocabulary means sparse queries cannot match anything.
func (c *Checker) CheckState() CheckResult {
	r := CheckResult{Name: "state", Details: c.cfg.Paths.CorpusPath()}
	corpus := store.NewCorpus(c.cfg.Paths.CorpusPath(), store.BM25Config{K1: c.cfg.BM25.K1, B: c.cfg.BM25.B})
	n, err := corpus.Len()
	if err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("corpus unreadable: %v", err)
		return r
	}
	vocab := store.OpenVocabulary(c.cfg.Paths.VocabularyPath(), c.cfg.Paths.DocumentFrequencyPath()).Stats()
	switch {
	case n == 0:
		r.Status = StatusWarn
		r.Message = "corpus is empty; run ragdoc ingest"
	case vocab.VocabSize == 0 && c.cfg.Sparse.Backend != config.BackendNone:
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("%d chunks but no vocabulary; re-ingest with --reset", n)
	default:
		r.Message = fmt.Sprintf("%d chunks, %d tokens, %d documents", n, vocab.VocabSize, vocab.DocumentCount)
	}
	return r
}

func (c *Checker) checkBackend(ctx context.Context, name, backend string, probe Probe) CheckResult {
	r := CheckResult{Name: name}
	switch {
	case backend == config.BackendNone:
		r.Message = "disabled"
		return r
	case probe == nil:
		r.Status = StatusWarn
		r.Message = backend + ": not checked"
		return r
	}
	msg, err := c.runProbe(ctx, probe)
	if err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("%s: %v", backend, err)
		r.Details = "search continues without this retriever"
		return r
	}
	r.Message = backend + ": " + msg
	return r
}

func (c *Checker) CheckCrossEncoder(ctx context.Context) CheckResult {
	r := CheckResult{Name: "cross_encoder", Details: c.cfg.CrossEncoder.Endpoint}
	if c.cfg.CrossEncoder.Endpoint == "" {
		r.Message = "not configured"
		return r
	}
	if c.rerank == nil {
		r.Status = StatusWarn
		r.Message = "not checked"
		return r
	}
	msg, err := c.runProbe(ctx, c.rerank)
	if err != nil {
		r.Status = StatusWarn
		r.Message = err.Error()
		return r
	}
	r.Message = msg
	return r
}

func (c *Checker) runProbe(ctx context.Context, p Probe) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	return p(ctx)
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus is failed, ready_with_warnings or ready.
func SummaryStatus(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes one line per check and the summary.
func (c *Checker) PrintResults(results []CheckResult) {
	w := output.New(c.out)
	w.Header("ragdoc doctor")
	for _, r := range results {
		line := fmt.Sprintf("%-15s %s", r.Name, r.Message)
		switch r.Status {
		case StatusPass:
			w.Success(line)
		case StatusWarn:
			w.Warning(line)
		default:
			w.Error(line)
		}
		if c.verbose && r.Details != "" {
			w.Status("", "  "+r.Details)
		}
	}
	w.Newline()
	w.KeyValue("status", strings.ToUpper(SummaryStatus(results)))
}
