package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatResults_Empty(t *testing.T) {
	assert.Equal(t, `No results found for "cave"`, FormatResults("cave", SearchOutput{}))

	got := FormatResults("cave", SearchOutput{Degraded: map[string]string{"sparse": "x", "dense": "y"}})
	assert.Contains(t, got, "_Partial results: dense, sparse unavailable._")
}

func TestFormatResults_TruncatesLongText(t *testing.T) {
	out := SearchOutput{Results: []SearchResultOutput{
		{ID: "a", Score: 1, Text: strings.Repeat("x", previewRunes+10)},
		{ID: "b", Score: 0.25, Source: "bm25", Text: "short"},
	}}

	got := FormatResults("q", out)

	assert.Contains(t, got, "Found 2 results")
	assert.Contains(t, got, "### 1. a (score 1.000)")
	assert.Contains(t, got, strings.Repeat("x", previewRunes)+"...")
	assert.Contains(t, got, "### 2. b (score 0.250, bm25)")
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		limit, want int
	}{
		{0, 10}, {-3, 10}, {7, 7}, {99, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampLimit(tt.limit, 10, 1, 50))
	}
}
