package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
	"github.com/jaganraajan/rag-document-parser/internal/output"
	"github.com/jaganraajan/rag-document-parser/internal/search"
	"github.com/jaganraajan/rag-document-parser/internal/store"
)

// Output formats of the search command.
const (
	formatText    = "text"
	formatJSON    = "json"
	formatContext = "context"
)

const previewRunes = 300

func newSearchCmd() *cobra.Command {
	var (
		limit       int
		format      string
		rerankTopN  int
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid search across the dense, sparse and BM25 indexes",
		Long: `Run dense and sparse retrieval in parallel, fuse and rank the hits, and show
the local BM25 results alongside. Sources that fail or time out are skipped
and reported.

Formats:
  text     ranked results with highlighted query terms (default)
  json     the full response
  context  the top results joined into an LLM context block`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return ragerrors.New(ragerrors.ErrCodeEmptyInput, "query is empty", nil)
			}
			switch format {
			case formatText, formatJSON, formatContext:
			default:
				return ragerrors.InputError(fmt.Sprintf("unknown format %q (text, json or context)", format))
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.engine.Search(cmd.Context(), query, search.Options{Limit: limit, RerankTopN: rerankTopN})
			a.writeMetrics(metricsFile)
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), format, resp)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of fused results")
	cmd.Flags().StringVar(&format, "format", formatText, "Output format: text, json or context")
	cmd.Flags().IntVar(&rerankTopN, "rerank-top-n", 0, "Rescore with the cross-encoder and keep this many (0 uses the config)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write prometheus metrics to this textfile")
	return cmd
}

func writeResponse(w io.Writer, format string, resp *search.Response) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case formatContext:
		_, err := fmt.Fprintln(w, search.BuildContext(resp.Results, search.DefaultContextChunkChars, search.DefaultContextTotalChars))
		return err
	}

	out := output.New(w)
	for _, name := range sortedKeys(resp.Degraded) {
		out.Warningf("%s unavailable: %s", name, resp.Degraded[name])
	}
	if len(resp.Results) == 0 && len(resp.BM25) == 0 {
		out.Warningf("No results for %q", resp.Query)
		return nil
	}

	out.Header(fmt.Sprintf("Results for %q", resp.Query))
	out.Newline()
	for i, r := range resp.Results {
		labels := []string{string(r.Source)}
		if r.RerankScore != nil {
			labels = append(labels, fmt.Sprintf("rerank %.3f", *r.RerankScore))
		}
		text := search.Highlight(output.Truncate(r.Text, previewRunes), resp.Query, out.Mark)
		out.Result(i+1, r.ID, r.Relevance, labels, text)
	}

	if len(resp.BM25) > 0 {
		out.Header("BM25")
		out.Newline()
		writeHits(out, resp.BM25, resp.Query)
	}
	out.Statusf("", "%d results in %s", len(resp.Results), resp.Duration.Round(time.Millisecond))
	return nil
}

func writeHits(out *output.Writer, hits []store.Hit, query string) {
	for i, h := range hits {
		text := search.Highlight(output.Truncate(h.Text, previewRunes), query, out.Mark)
		out.Result(i+1, h.ID, h.Score, nil, text)
	}
}

func newBM25Cmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "bm25 <query>",
		Short: "Keyword search over the local corpus only",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return ragerrors.New(ragerrors.ErrCodeEmptyInput, "query is empty", nil)
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			hits, err := a.engine.BM25Search(cmd.Context(), query, limit)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if len(hits) == 0 {
				out.Warningf("No results for %q", query)
				return nil
			}
			writeHits(out, hits, query)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	return cmd
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
