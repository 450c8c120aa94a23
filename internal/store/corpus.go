package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

// Corpus is the append-only JSONL log of ingested chunks and the BM25 index
// built over it. The file is read on first use and the index is built lazily
// on first search, then reused until Invalidate.
type Corpus struct {
	path     string
	cfg      BM25Config
	tokenize func(string) []string

	mu     sync.Mutex
	loaded bool
	chunks []Chunk
	byID   map[string]int
	index  *BM25Index
}

// CorpusOption configures a Corpus.
type CorpusOption func(*Corpus)

// WithTokenizer replaces Tokenize for both documents and queries.
func WithTokenizer(fn func(string) []string) CorpusOption {
	return func(c *Corpus) {
		c.tokenize = fn
	}
}

func NewCorpus(path string, cfg BM25Config, opts ...CorpusOption) *Corpus {
	c := &Corpus{
		path:     path,
		cfg:      cfg,
		tokenize: Tokenize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the corpus file location.
func (c *Corpus) Path() string { return c.path }

// Append writes chunks to the end of the log and invalidates the index.
func (c *Corpus) Append(chunks ...Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create corpus directory: %w", err)
	}

	var sb strings.Builder
	for _, ch := range chunks {
		if ch.Metadata == nil {
			ch.Metadata = map[string]any{}
		}
		line, err := json.Marshal(ch)
		if err != nil {
			return fmt.Errorf("encode chunk %s: %w", ch.ID, err)
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodeStateWrite, "open corpus", err).WithDetail("path", c.path)
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		_ = f.Close()
		return ragerrors.New(ragerrors.ErrCodeStateWrite, "append corpus", err).WithDetail("path", c.path)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close corpus: %w", err)
	}

	if c.loaded {
		for _, ch := range chunks {
			c.addLocked(ch)
		}
	}
	c.index = nil
	return nil
}

// Load reads the corpus file, replacing anything held in memory. A missing
// file is an empty corpus.
func (c *Corpus) Load() ([]Chunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(); err != nil {
		return nil, err
	}
	out := make([]Chunk, len(c.chunks))
	copy(out, c.chunks)
	return out, nil
}

func (c *Corpus) loadLocked() error {
	c.chunks = nil
	c.byID = make(map[string]int)
	c.index = nil

	f, err := os.Open(c.path)
	if os.IsNotExist(err) {
		slog.Warn("corpus_not_found", slog.String("path", c.path))
		c.loaded = true
		return nil
	}
	if err != nil {
		return ragerrors.StateError("open corpus", err).WithDetail("path", c.path)
	}
	defer f.Close()

	chunks, bad := DecodeChunks(f)
	for _, e := range bad {
		slog.Warn("corpus_line_malformed", slog.String("path", c.path), slog.String("error", e.Error()))
	}
	for _, ch := range chunks {
		c.addLocked(ch)
	}
	c.loaded = true
	return nil
}

// addLocked keeps one record per id. A later record for a known id replaces
// the earlier one in place.
func (c *Corpus) addLocked(ch Chunk) {
	if i, dup := c.byID[ch.ID]; dup {
		slog.Debug("corpus_id_replaced", slog.String("id", ch.ID))
		c.chunks[i] = ch
		return
	}
	c.byID[ch.ID] = len(c.chunks)
	c.chunks = append(c.chunks, ch)
}

func (c *Corpus) ensureLoadedLocked() error {
	if c.loaded {
		return nil
	}
	return c.loadLocked()
}

// Rebuild reloads the file and rebuilds the BM25 index now.
func (c *Corpus) Rebuild() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(); err != nil {
		return err
	}
	c.buildLocked()
	return nil
}

// Invalidate drops the in-memory copy so the next call rereads the file.
func (c *Corpus) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.index = nil
}

func (c *Corpus) buildLocked() {
	docs := make([][]string, len(c.chunks))
	for i, ch := range c.chunks {
		docs[i] = c.tokenize(ch.Text)
	}
	c.index = NewBM25Index(docs, c.cfg)
	slog.Debug("bm25_index_built", slog.Int("documents", len(docs)))
}

// Search returns up to k chunks by BM25 score, best first, ties in corpus
// order. Chunks sharing no token with the query are not returned.
func (c *Corpus) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	if len(c.chunks) == 0 {
		return []Hit{}, nil
	}
	if c.index == nil {
		c.buildLocked()
	}

	ranked := c.index.TopK(c.tokenize(query), k)
	hits := make([]Hit, 0, len(ranked))
	for _, r := range ranked {
		ch := c.chunks[r.Doc]
		hits = append(hits, Hit{ID: ch.ID, Score: r.Score, Text: ch.Text, Metadata: ch.Metadata})
	}
	return hits, nil
}

// Get returns the chunk stored under id.
func (c *Corpus) Get(id string) (Chunk, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoadedLocked(); err != nil {
		return Chunk{}, false, err
	}
	i, ok := c.byID[id]
	if !ok {
		return Chunk{}, false, nil
	}
	return c.chunks[i], true, nil
}

// Len returns the number of distinct chunk ids.
func (c *Corpus) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoadedLocked(); err != nil {
		return 0, err
	}
	return len(c.chunks), nil
}

// Clear deletes the corpus file and forgets every chunk.
func (c *Corpus) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove corpus: %w", err)
	}
	c.chunks = nil
	c.byID = make(map[string]int)
	c.index = nil
	c.loaded = true
	return nil
}

// DecodeChunks reads chunk records, one JSON object per line. Blank lines are
// ignored; lines that fail to decode are reported in bad and
// skipped.
func DecodeChunks(r io.Reader) (chunks []Chunk, bad []error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ch Chunk
		if err := json.Unmarshal([]byte(line), &ch); err != nil {
			bad = append(bad, ragerrors.New(ragerrors.ErrCodeRecordMalformed, fmt.Sprintf("line %d: %v", lineNo, err), err))
			continue
		}
		chunks = append(chunks, ch)
	}
	if err := sc.Err(); err != nil {
		bad = append(bad, ragerrors.New(ragerrors.ErrCodeRecordMalformed, fmt.Sprintf("line %d: %v", lineNo+1, err), err))
	}
	return chunks, bad
}
