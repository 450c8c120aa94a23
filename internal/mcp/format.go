package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jaganraajan/rag-document-parser/internal/search"
	"github.com/jaganraajan/rag-document-parser/internal/store"
)

const previewRunes = 400

func toHybridOutput(resp *search.Response) SearchOutput {
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(resp.Results)), Degraded: resp.Degraded}
	for _, r := range resp.Results {
		out.Results = append(out.Results, SearchResultOutput{
			ID:          r.ID,
			Text:        r.Text,
			Score:       r.Relevance,
			Source:      string(r.Source),
			DenseScore:  r.DenseScore,
			SparseScore: r.SparseScore,
			RerankScore: r.RerankScore,
			Metadata:    r.Metadata,
		})
	}
	return out
}

func toBM25Output(hits []store.Hit) SearchOutput {
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(hits))}
	for _, h := range hits {
		out.Results = append(out.Results, SearchResultOutput{
			ID:       h.ID,
			Text:     h.Text,
			Score:    h.Score,
			Source:   search.RetrievalBM25,
			Metadata: h.Metadata,
		})
	}
	return out
}

// FormatResults renders results as markdown for text-only clients.
func FormatResults(query string, out SearchOutput) string {
	if len(out.Results) == 0 {
		msg := fmt.Sprintf("No results found for \"%s\"", query)
		if len(out.Degraded) > 0 {
			msg += "\n\n" + formatDegraded(out.Degraded)
		}
		return msg
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(out.Results))
	if len(out.Results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")
	if len(out.Degraded) > 0 {
		sb.WriteString(formatDegraded(out.Degraded))
		sb.WriteString("\n\n")
	}

	for i, r := range out.Results {
		fmt.Fprintf(&sb, "### %d. %s (score %.3f", i+1, r.ID, r.Score)
		if r.Source != "" {
			fmt.Fprintf(&sb, ", %s", r.Source)
		}
		sb.WriteString(")\n\n")
		sb.WriteString(truncateRunes(r.Text, previewRunes))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func formatDegraded(d map[string]string) string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return "_Partial results: " + strings.Join(names, ", ") + " unavailable._"
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// clampLimit returns defaultVal for a non-positive limit and bounds the rest.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
