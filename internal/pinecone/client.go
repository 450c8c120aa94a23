// Package pinecone adapts the two Pinecone indexes used by the hybrid engine
// to the store interfaces: a dense index with integrated embedding (records
// API) and a sparse index queried with explicit sparse vectors. Both ride on
// the official go-pinecone SDK.
//
// Every call goes through Retry and a per-index CircuitBreaker from
// internal/errors. Server-side outages (gRPC Unavailable or ResourceExhausted,
// HTTP 5xx or 429) are retryable; other failures are reported as
// ERR_303_BACKEND_REJECTED and returned at once.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	pc "github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

const (
	// DefaultNamespace is the name Pinecone reports for the unnamed namespace.
	DefaultNamespace = "__default__"
	DefaultTimeout   = 30 * time.Second
)

// Breaker names, also used as the backend label in metrics.
const (
	BackendDense  = "pinecone-dense"
	BackendSparse = "pinecone-sparse"
)

// Config identifies one index.
type Config struct {
	APIKey string
	// Host is the data-plane host. When empty it is resolved from IndexName
	// through the control plane on first use.
	Host      string
	IndexName string
	Namespace string
	// ControlPlane overrides the SDK's default API host.
	ControlPlane   string
	Timeout        time.Duration
	Retry          ragerrors.RetryConfig
	BreakerOptions []ragerrors.CircuitBreakerOption
}

// dataPlane is the subset of *pc.IndexConnection the indexes call.
type dataPlane interface {
	UpsertVectors(ctx context.Context, in []*pc.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pc.QueryByVectorValuesRequest) (*pc.QueryVectorsResponse, error)
	UpsertRecords(ctx context.Context, records []*pc.IntegratedRecord) error
	SearchRecords(ctx context.Context, in *pc.SearchRecordsRequest) (*pc.SearchRecordsResponse, error)
	DescribeIndexStats(ctx context.Context) (*pc.DescribeIndexStatsResponse, error)
	DeleteAllVectorsInNamespace(ctx context.Context) error
	Close() error
}

var _ dataPlane = (*pc.IndexConnection)(nil)

type dialFunc func(ctx context.Context, cfg Config) (dataPlane, error)

type client struct {
	cfg     Config
	breaker *ragerrors.CircuitBreaker
	dial    dialFunc

	mu   sync.Mutex
	conn dataPlane
}

func newClient(cfg Config, backend string) *client {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = ragerrors.DefaultRetryConfig()
	}
	return &client{
		cfg:     cfg,
		breaker: ragerrors.NewCircuitBreaker(backend, cfg.BreakerOptions...),
		dial:    dialIndex,
	}
}

// dialIndex opens a data-plane connection, describing the index through the
// control plane when no host was configured.
func dialIndex(ctx context.Context, cfg Config) (dataPlane, error) {
	if cfg.Host == "" && cfg.IndexName == "" {
		return nil, ragerrors.ConfigError("pinecone index name or host is required", nil)
	}
	params := pc.NewClientParams{
		ApiKey:     cfg.APIKey,
		RestClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.ControlPlane != "" {
		params.Host = cfg.ControlPlane
	}
	sdk, err := pc.NewClient(params)
	if err != nil {
		return nil, ragerrors.ConfigError("create pinecone client", err)
	}

	host := cfg.Host
	if host == "" {
		idx, err := sdk.DescribeIndex(ctx, cfg.IndexName)
		if err != nil {
			return nil, err
		}
		if idx.Host == "" {
			return nil, ragerrors.New(ragerrors.ErrCodeBackendRejected,
				fmt.Sprintf("index %q has no host", cfg.IndexName), nil)
		}
		host = idx.Host
		slog.Debug("pinecone_host_resolved",
			slog.String("index", cfg.IndexName),
			slog.String("host", host))
	}

	conn, err := sdk.Index(pc.NewIndexConnParams{Host: host, Namespace: cfg.Namespace})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// connection dials once and reuses the connection. A failed dial is retried
// on the next call.
func (c *client) connection(ctx context.Context) (dataPlane, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := c.dial(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// call runs one data-plane operation with retry and circuit breaking.
func (c *client) call(ctx context.Context, op string, fn func(dataPlane) error) error {
	return ragerrors.Retry(ctx, c.cfg.Retry, func() error {
		return c.breaker.Execute(func() error {
			conn, err := c.connection(ctx)
			if err != nil {
				return c.classify(ctx, "connect", err)
			}
			start := time.Now()
			err = fn(conn)
			slog.Debug("pinecone_request",
				slog.String("backend", c.breaker.Name()),
				slog.String("op", op),
				slog.Bool("ok", err == nil),
				slog.Duration("took", time.Since(start)))
			return c.classify(ctx, op, err)
		})
	})
}

// classify maps SDK errors onto ragdoc error codes. RAGErrors pass through.
func (c *client) classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	backend := c.breaker.Name()
	var re *ragerrors.RAGError
	if errors.As(err, &re) {
		return re.WithDetail("backend", backend)
	}
	if ctx.Err() != nil {
		return ragerrors.New(ragerrors.ErrCodeBackendTimeout, "pinecone "+op+" cancelled", err).
			WithDetail("backend", backend)
	}
	code := ragerrors.ErrCodeBackendRejected
	if isOutage(err) {
		code = ragerrors.ErrCodeBackendUnavailable
	}
	return ragerrors.New(code, fmt.Sprintf("pinecone %s failed: %v", op, err), err).
		WithDetail("backend", backend)
}

// isOutage reports whether err says the service is down or overloaded, as
// opposed to rejecting the request.
func isOutage(err error) bool {
	var pe *pc.PineconeError
	if errors.As(err, &pe) {
		return pe.Code >= http.StatusInternalServerError || pe.Code == http.StatusTooManyRequests
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		}
		return false
	}
	// transport failure below both protocols
	return true
}

// deleteAll removes every vector or record in the configured namespace.
func (c *client) deleteAll(ctx context.Context) error {
	return c.call(ctx, "delete_namespace", func(dp dataPlane) error {
		return dp.DeleteAllVectorsInNamespace(ctx)
	})
}

// namespaceCount returns the number of vectors or records in the configured
// namespace. A namespace Pinecone does not list yet counts as zero.
func (c *client) namespaceCount(ctx context.Context) (int, error) {
	var stats *pc.DescribeIndexStatsResponse
	err := c.call(ctx, "describe_index_stats", func(dp dataPlane) error {
		var err error
		stats, err = dp.DescribeIndexStats(ctx)
		return err
	})
	if err != nil || stats == nil {
		return 0, err
	}
	ns, ok := stats.Namespaces[c.cfg.Namespace]
	if !ok && c.cfg.Namespace == DefaultNamespace {
		ns = stats.Namespaces[""]
	}
	if ns == nil {
		return 0, nil
	}
	return int(ns.VectorCount), nil
}

func (c *client) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
