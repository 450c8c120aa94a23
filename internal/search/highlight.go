package search

import (
	"regexp"
	"sort"
	"strings"
)

// MarkHTML wraps a match in <mark> tags.
func MarkHTML(s string) string { return "<mark>" + s + "</mark>" }

// Highlight wraps case-insensitive occurrences of each query word longer than
// two characters with mark. Matching is a single pass, longest word first, so
// marks never nest.
func Highlight(text, query string, mark func(string) string) string {
	if mark == nil {
		mark = MarkHTML
	}
	seen := make(map[string]struct{})
	var words []string
	for _, w := range strings.Fields(query) {
		lw := strings.ToLower(w)
		if len([]rune(w)) <= 2 {
			continue
		}
		if _, dup := seen[lw]; dup {
			continue
		}
		seen[lw] = struct{}{}
		words = append(words, regexp.QuoteMeta(w))
	}
	if len(words) == 0 {
		return text
	}
	sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })

	re := regexp.MustCompile("(?i)" + strings.Join(words, "|"))
	return re.ReplaceAllStringFunc(text, mark)
}
