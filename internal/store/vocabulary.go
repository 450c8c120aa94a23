package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

// Vocabulary maps tokens to stable integer ids and tracks, per token, how
// many ingested documents contained it.
//
// Ids start at 1, grow by one and are never reassigned. Document frequencies
// only grow. Changes stay in memory until Save.
type Vocabulary struct {
	vocabPath string
	dfPath    string

	mu     sync.RWMutex
	ids    map[string]int
	df     map[string]int
	nextID int
}

// VocabularyStats summarizes a vocabulary.
type VocabularyStats struct {
	VocabSize int `json:"vocab_size"`
	// DocumentCount is max(DF), the proxy for the number of ingested documents.
	DocumentCount int `json:"document_count"`
}

// NewVocabulary returns an empty, unpersisted vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{
		ids:    make(map[string]int),
		df:     make(map[string]int),
		nextID: 1,
	}
}

// OpenVocabulary loads vocab.json and df.json. Each file is independent: a
// missing or unreadable one starts empty and a corrupt one is logged and
// ignored, so opening never fails.
func OpenVocabulary(vocabPath, dfPath string) *Vocabulary {
	v := NewVocabulary()
	v.vocabPath = vocabPath
	v.dfPath = dfPath

	v.ids = loadCounts(vocabPath, "vocabulary")
	v.df = loadCounts(dfPath, "document_frequency")
	for _, id := range v.ids {
		if id >= v.nextID {
			v.nextID = id + 1
		}
	}
	return v
}

// Reload replaces the in-memory state with the files on disk. A serving
// process calls it after another process has ingested and saved.
func (v *Vocabulary) Reload() {
	ids := loadCounts(v.vocabPath, "vocabulary")
	df := loadCounts(v.dfPath, "document_frequency")
	next := 1
	for _, id := range ids {
		if id >= next {
			next = id + 1
		}
	}
	v.mu.Lock()
	v.ids, v.df, v.nextID = ids, df, next
	v.mu.Unlock()
}

func loadCounts(path, kind string) map[string]int {
	m := make(map[string]int)
	if path == "" {
		return m
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m
	}
	if err == nil {
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		attrs := append([]slog.Attr{slog.String("path", path)},
			ragerrors.LogAttrs(ragerrors.StateError("starting with empty "+kind, err))...)
		slog.LogAttrs(context.Background(), slog.LevelWarn, kind+"_load_failed", attrs...)
		return make(map[string]int)
	}
	return m
}

// GetOrCreateID returns the id for token, allocating the next id when the
// token is new. Ingest only.
func (v *Vocabulary) GetOrCreateID(token string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id, ok := v.ids[token]; ok {
		return id
	}
	id := v.nextID
	v.ids[token] = id
	v.nextID++
	return id
}

// Lookup returns the id of token without allocating one.
func (v *Vocabulary) Lookup(token string) (int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	id, ok := v.ids[token]
	return id, ok
}

// IncrementDF adds one to the document frequency of each distinct token.
func (v *Vocabulary) IncrementDF(tokens map[string]struct{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for t := range tokens {
		v.df[t]++
	}
}

// DF returns the document frequency of token.
func (v *Vocabulary) DF(token string) (int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n, ok := v.df[token]
	return n, ok
}

// MaxDF is the largest document frequency, or 0 when none is recorded.
func (v *Vocabulary) MaxDF() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.maxDFLocked()
}

// DocumentCount is MaxDF under the name used in stats output.
func (v *Vocabulary) DocumentCount() int { return v.MaxDF() }

func (v *Vocabulary) maxDFLocked() int {
	max := 0
	for _, n := range v.df {
		if n > max {
			max = n
		}
	}
	return max
}

func (v *Vocabulary) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.ids)
}

func (v *Vocabulary) Stats() VocabularyStats {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return VocabularyStats{VocabSize: len(v.ids), DocumentCount: v.maxDFLocked()}
}

// Save rewrites both files atomically. Calling Save on a vocabulary created by
// NewVocabulary is a no-op.
func (v *Vocabulary) Save() error {
	v.mu.RLock()
	vocabData, err := json.MarshalIndent(v.ids, "", "  ")
	if err != nil {
		v.mu.RUnlock()
		return fmt.Errorf("marshal vocabulary: %w", err)
	}
	dfData, err := json.MarshalIndent(v.df, "", "  ")
	v.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal document frequencies: %w", err)
	}

	if v.vocabPath != "" {
		if err := writeFileAtomic(v.vocabPath, vocabData); err != nil {
			return ragerrors.New(ragerrors.ErrCodeStateWrite, "save vocabulary", err).WithDetail("path", v.vocabPath)
		}
	}
	if v.dfPath != "" {
		if err := writeFileAtomic(v.dfPath, dfData); err != nil {
			return ragerrors.New(ragerrors.ErrCodeStateWrite, "save document frequencies", err).WithDetail("path", v.dfPath)
		}
	}
	return nil
}

// Reset clears all tokens and frequencies in memory and removes both files.
func (v *Vocabulary) Reset() error {
	v.mu.Lock()
	v.ids = make(map[string]int)
	v.df = make(map[string]int)
	v.nextID = 1
	v.mu.Unlock()

	for _, p := range []string{v.vocabPath, v.dfPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}
