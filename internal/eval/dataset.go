// Package eval measures retrieval quality against a labelled query set.
//
// A query counts a result as relevant when its text contains any of the
// query's relevant substrings, case-insensitively. Coverage@k, Precision@k
// and MRR@k are averaged per method, alongside mean and p95 latency.
package eval

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

// Item is one labelled query.
type Item struct {
	Query              string   `json:"query"`
	RelevantSubstrings []string `json:"relevant_substrings"`
	Notes              string   `json:"notes,omitempty"`
	// AnswerQuality is an optional human grade used for correlation.
	AnswerQuality *float64 `json:"answer_quality,omitempty"`
}

// LoadDataset reads a .json array of items or a .csv file with a header row
// and semicolon-separated relevant_substrings.
func LoadDataset(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ragerrors.New(ragerrors.ErrCodePathMissing, "evaluation file not found", err).WithDetail("path", path)
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var items []Item
		if err := json.NewDecoder(f).Decode(&items); err != nil {
			return nil, ragerrors.New(ragerrors.ErrCodeInvalidInput, "decode evaluation json", err).WithDetail("path", path)
		}
		return items, nil
	case ".csv":
		return decodeCSV(f)
	default:
		return nil, ragerrors.InputError(fmt.Sprintf("unsupported dataset format %q", filepath.Ext(path))).
			WithSuggestion("use a .json or .csv evaluation file")
	}
}

func decodeCSV(r io.Reader) ([]Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeInvalidInput, "read csv header", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	if _, ok := col["query"]; !ok {
		return nil, ragerrors.InputError("csv dataset has no query column")
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var items []Item
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ragerrors.New(ragerrors.ErrCodeInvalidInput, fmt.Sprintf("csv line %d", line), err)
		}
		item := Item{
			Query:              field(rec, "query"),
			RelevantSubstrings: splitSubstrings(field(rec, "relevant_substrings")),
			Notes:              field(rec, "notes"),
		}
		if q := strings.TrimSpace(field(rec, "answer_quality")); q != "" {
			v, err := strconv.ParseFloat(q, 64)
			if err != nil {
				return nil, ragerrors.New(ragerrors.ErrCodeInvalidInput, fmt.Sprintf("csv line %d: answer_quality", line), err)
			}
			item.AnswerQuality = &v
		}
		items = append(items, item)
	}
	return items, nil
}

func splitSubstrings(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
