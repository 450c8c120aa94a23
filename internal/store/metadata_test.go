package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlattenMetadata(t *testing.T) {
	// Given: metadata with scalars, lists, empties and nested values
	meta := map[string]any{
		"title":       "Republic",
		"page_number": 3.0,
		"is_preface":  false,
		"authors":     []any{"Plato", nil, "", 42},
		"tags":        []string{"ethics", ""},
		"empty":       "",
		"nothing":     nil,
		"no_list":     []any{},
		"nested":      map[string]any{"a": 1},
		"blank_map":   map[string]any{},
	}

	// When: flattening
	flat := FlattenMetadata(meta)

	// Then: keys are prefixed, empties dropped, lists stringified
	assert.Equal(t, map[string]any{
		"meta_title":       "Republic",
		"meta_page_number": 3.0,
		"meta_is_preface":  false,
		"meta_authors":     []string{"Plato", "42"},
		"meta_tags":        []string{"ethics"},
		"meta_nested":      "map[a:1]",
	}, flat)
}

func TestUnflattenMetadata(t *testing.T) {
	fields := map[string]any{
		"chunk_text":      "text",
		"meta_title":      "Republic",
		"meta_page":       2.0,
		"unprefixed_flag": true,
	}

	meta := UnflattenMetadata(fields)

	assert.Equal(t, map[string]any{
		"title":           "Republic",
		"page":            2.0,
		"unprefixed_flag": true,
	}, meta)
}

func TestStoredFields_TruncatesText(t *testing.T) {
	long := make([]rune, 1500)
	for i := range long {
		long[i] = 'é'
	}

	fields := StoredFields(string(long), map[string]any{"title": "x"}, DefaultMaxStoredText)

	assert.Len(t, []rune(fields[TextField].(string)), 1000)
	assert.Equal(t, "x", fields["meta_title"])
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", TruncateText("abcdef", 3))
	assert.Equal(t, "ab", TruncateText("ab", 3))
	assert.Equal(t, "abcdef", TruncateText("abcdef", 0))
}
