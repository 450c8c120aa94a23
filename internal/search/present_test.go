package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHighlight(t *testing.T) {
	tests := []struct {
		name, text, query, want string
	}{
		{"case insensitive", "The Cave and the cave", "cave", "The <mark>Cave</mark> and the <mark>cave</mark>"},
		{"short words ignored", "an ox is here", "an ox", "an ox is here"},
		{"longest first no nesting", "catalogue of cats", "cat catalogue", "<mark>catalogue</mark> of <mark>cat</mark>s"},
		{"regex metacharacters", "costs $5.00 (approx)", "(approx)", "costs $5.00 <mark>(approx)</mark>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Highlight(tt.text, tt.query, nil))
		})
	}
}

func TestHighlight_CustomMark(t *testing.T) {
	got := Highlight("virtue", "virtue", func(s string) string { return "**" + s + "**" })
	assert.Equal(t, "**virtue**", got)
}

func TestBuildContext(t *testing.T) {
	// Given: one long and one short result
	results := []ScoredResult{{Text: strings.Repeat("a", 600)}, {Text: "short"}}

	// When: building with default limits
	got := BuildContext(results, 0, 0)

	// Then: the long chunk is cut and both sections are numbered
	assert.True(t, strings.HasPrefix(got, "\n--- Chunk 1 ---\n"+strings.Repeat("a", 500)+"..."))
	assert.Contains(t, got, "--- Chunk 2 ---\nshort")
}

func TestBuildContext_StopsAtTotal(t *testing.T) {
	results := []ScoredResult{{Text: strings.Repeat("x", 40)}, {Text: strings.Repeat("y", 40)}}

	got := BuildContext(results, 500, 70)

	assert.Contains(t, got, "Chunk 1")
	assert.NotContains(t, got, "Chunk 2")
	assert.Empty(t, BuildContext(nil, 10, 10))
}
