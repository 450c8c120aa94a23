package search

import (
	"fmt"
	"strings"
)

const (
	DefaultContextChunkChars = 500
	DefaultContextTotalChars = 8000
)

// BuildContext renders ranked results as an LLM prompt context. Each chunk
// is cut to perChunk characters (with "..." appended) and the block stops
// before it would exceed total characters.
func BuildContext(results []ScoredResult, perChunk, total int) string {
	if perChunk <= 0 {
		perChunk = DefaultContextChunkChars
	}
	if total <= 0 {
		total = DefaultContextTotalChars
	}

	var parts []string
	used := 0
	for i, r := range results {
		text := []rune(r.Text)
		chunk := r.Text
		if len(text) > perChunk {
			chunk = string(text[:perChunk]) + "..."
		}
		section := fmt.Sprintf("\n--- Chunk %d ---\n%s", i+1, chunk)
		n := len([]rune(section))
		if used+n > total {
			break
		}
		parts = append(parts, section)
		used += n
	}
	return strings.Join(parts, "\n")
}
