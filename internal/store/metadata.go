package store

import (
	"fmt"
	"strings"
)

const (
	// MetaPrefix marks flattened metadata fields stored alongside chunk text.
	MetaPrefix = "meta_"
	// TextField is the stored field holding the chunk text.
	TextField = "chunk_text"
	// DefaultMaxStoredText caps the chunk text kept in sparse backend metadata.
	DefaultMaxStoredText = 1000
)

// FlattenMetadata prepares chunk metadata for a backend that only stores flat
// scalar or string-list fields. Keys gain MetaPrefix. Nil, empty strings and
// empty collections are dropped, lists become lists of non-empty strings and
// any other value is formatted with %v.
func FlattenMetadata(meta map[string]any) map[string]any {
	flat := make(map[string]any, len(meta))
	for k, v := range meta {
		if isEmptyValue(v) {
			continue
		}
		key := MetaPrefix + k
		switch val := v.(type) {
		case string, bool, int, int32, int64, float32, float64:
			flat[key] = val
		case []string:
			flat[key] = nonEmptyStrings(val)
		case []any:
			items := make([]string, 0, len(val))
			for _, item := range val {
				if item == nil {
					continue
				}
				items = append(items, fmt.Sprint(item))
			}
			flat[key] = nonEmptyStrings(items)
		default:
			flat[key] = fmt.Sprint(val)
		}
	}
	return flat
}

// UnflattenMetadata reverses FlattenMetadata on stored fields: MetaPrefix is
// stripped and the chunk text field is dropped. Unprefixed keys pass through.
func UnflattenMetadata(fields map[string]any) map[string]any {
	meta := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == TextField {
			continue
		}
		meta[strings.TrimPrefix(k, MetaPrefix)] = v
	}
	return meta
}

// StoredFields builds the metadata map a sparse or dense backend stores for
// a chunk: the truncated text plus flattened metadata.
func StoredFields(text string, meta map[string]any, maxText int) map[string]any {
	fields := FlattenMetadata(meta)
	fields[TextField] = TruncateText(text, maxText)
	return fields
}

// TruncateText cuts s to at most max runes. max <= 0 disables truncation.
func TruncateText(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}

func nonEmptyStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
