package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jaganraajan/rag-document-parser/internal/search"
	"github.com/jaganraajan/rag-document-parser/internal/store"
	"github.com/jaganraajan/rag-document-parser/pkg/version"
)

const (
	ServerName = "ragdoc"

	defaultHybridLimit = 10
	defaultBM25Limit   = 5
	maxLimit           = 50
)

// Searcher is the part of search.Engine the tools call.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) (*search.Response, error)
	BM25Search(ctx context.Context, query string, k int) ([]store.Hit, error)
}

var _ Searcher = (*search.Engine)(nil)

// ToolInfo names a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "hybrid_search",
		Description: "Search the ingested documents. Combines semantic and keyword retrieval, fuses and ranks the results, and reports which sources were unavailable.",
	},
	{
		Name:        "bm25_search",
		Description: "Keyword-only BM25 search over the local corpus. Use for exact terms, names and quotations.",
	},
	{
		Name:        "corpus_stats",
		Description: "Report how many chunks and vocabulary tokens are indexed and which backends are active.",
	},
}

// Server bridges MCP clients and the search engine.
type Server struct {
	mcp    *mcp.Server
	engine Searcher
	stats  StatsProvider
	logger *slog.Logger
}

// NewServer registers the tools. stats may be nil, in which case
// corpus_stats reports an internal error.
func NewServer(engine Searcher, stats StatsProvider) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	s := &Server{engine: engine, stats: stats, logger: slog.Default()}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

func (s *Server) MCPServer() *mcp.Server { return s.mcp }

func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpHybridHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpBM25Handler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpStatsHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// CallTool invokes a tool with loosely typed arguments, as decoded from JSON.
// Search tools return markdown.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "hybrid_search":
		in := HybridSearchInput{Query: stringArg(args, "query"), Limit: intArg(args, "limit"), RerankTopN: intArg(args, "rerank_top_n")}
		out, err := s.hybridSearch(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatResults(strings.TrimSpace(in.Query), out), nil
	case "bm25_search":
		in := BM25SearchInput{Query: stringArg(args, "query"), Limit: intArg(args, "limit")}
		out, err := s.bm25Search(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatResults(strings.TrimSpace(in.Query), out), nil
	case "corpus_stats":
		return s.corpusStats()
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) hybridSearch(ctx context.Context, in HybridSearchInput) (SearchOutput, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if in.RerankTopN < 0 {
		return SearchOutput{}, NewInvalidParamsError("rerank_top_n must not be negative")
	}
	limit := clampLimit(in.Limit, defaultHybridLimit, 1, maxLimit)

	start := time.Now()
	requestID := generateRequestID()
	resp, err := s.engine.Search(ctx, query, search.Options{Limit: limit, RerankTopN: in.RerankTopN})
	if err != nil {
		s.logger.Error("hybrid_search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return SearchOutput{}, MapError(err)
	}
	s.logger.Info("hybrid_search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(resp.Results)),
		slog.Bool("degraded", resp.IsDegraded()))
	return toHybridOutput(resp), nil
}

func (s *Server) bm25Search(ctx context.Context, in BM25SearchInput) (SearchOutput, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	limit := clampLimit(in.Limit, defaultBM25Limit, 1, maxLimit)

	hits, err := s.engine.BM25Search(ctx, query, limit)
	if err != nil {
		s.logger.Error("bm25_search_failed", slog.String("error", err.Error()))
		return SearchOutput{}, MapError(err)
	}
	return toBM25Output(hits), nil
}

func (s *Server) corpusStats() (*CorpusStatsOutput, error) {
	if s.stats == nil {
		return nil, &MCPError{Code: ErrCodeInternalError, Message: "corpus statistics are not available"}
	}
	out, err := s.stats.CorpusStats()
	if err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

func (s *Server) mcpHybridHandler(ctx context.Context, _ *mcp.CallToolRequest, in HybridSearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	out, err := s.hybridSearch(ctx, in)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) mcpBM25Handler(ctx context.Context, _ *mcp.CallToolRequest, in BM25SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	out, err := s.bm25Search(ctx, in)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) mcpStatsHandler(_ context.Context, _ *mcp.CallToolRequest, _ CorpusStatsInput) (*mcp.CallToolResult, *CorpusStatsOutput, error) {
	out, err := s.corpusStats()
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve runs the server on stdio until ctx is done or the client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return fmt.Errorf("mcp server: %w", err)
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// intArg accepts JSON numbers (float64) and ints.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
