package store

import (
	"regexp"
	"strings"
)

// StopWords is the fixed list of English words removed by Tokenize.
var StopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"has", "he", "in", "is", "it", "its", "of", "on", "that", "the",
	"to", "was", "will", "with", "i", "you", "we", "they", "this", "but",
	"not", "or", "have", "had", "been", "their", "if", "would", "could", "should",
	"can", "may", "might", "must",
}

var (
	stopWordSet = buildStopWordSet(StopWords)
	wordPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)
)

func buildStopWordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Tokenize lowercases text, extracts maximal ASCII alphanumeric runs, and
// drops single characters and stopwords. Order and duplicates are kept.
func Tokenize(text string) []string {
	words := wordPattern.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		w = strings.ToLower(w)
		if _, stop := stopWordSet[w]; stop {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// UniqueTokens returns the distinct tokens of text as a set.
func UniqueTokens(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
