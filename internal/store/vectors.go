package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// VectorIndex is the local dense backend: a cosine HNSW graph keyed by chunk
// id. Re-adding an id orphans its previous node instead of deleting it from
// the graph; orphans are filtered from results.
type VectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	dims    int
	keys    map[string]uint64
	ids     map[uint64]string
	nextKey uint64
}

// VectorHit is a nearest-neighbour result with a similarity in [0, 1].
type VectorHit struct {
	ID    string
	Score float64
}

type vectorMeta struct {
	Keys    map[string]uint64
	NextKey uint64
	Dims    int
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 40
	g.Ml = 0.25
	return g
}

// NewVectorIndex returns an empty index. The dimension is fixed by the first
// vector added.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		graph: newGraph(),
		keys:  make(map[string]uint64),
		ids:   make(map[uint64]string),
	}
}

// OpenVectorIndex loads the index saved at path. A missing index is empty; an
// unreadable one is logged and replaced by an empty index.
func OpenVectorIndex(path string) *VectorIndex {
	v := NewVectorIndex()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return v
	}
	if err := v.load(path); err != nil {
		slog.Warn("vector_index_load_failed", slog.String("path", path), slog.String("error", err.Error()))
		return NewVectorIndex()
	}
	return v
}

// Reload swaps in the index saved at path, for a process that did not write
// it. A missing index empties v; an unreadable one leaves v unchanged.
func (v *VectorIndex) Reload(path string) error {
	fresh := NewVectorIndex()
	if _, err := os.Stat(path); err == nil {
		if err := fresh.load(path); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.graph = fresh.graph
	v.dims = fresh.dims
	v.keys = fresh.keys
	v.ids = fresh.ids
	v.nextKey = fresh.nextKey
	return nil
}

// Add inserts or replaces vectors by id.
func (v *VectorIndex) Add(_ context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, id := range ids {
		vec := vectors[i]
		if v.dims == 0 {
			v.dims = len(vec)
		}
		if len(vec) != v.dims {
			return fmt.Errorf("vector %s has dimension %d, index has %d", id, len(vec), v.dims)
		}
		if old, ok := v.keys[id]; ok {
			delete(v.ids, old)
		}
		key := v.nextKey
		v.nextKey++
		v.graph.Add(hnsw.MakeNode(key, unit(vec)))
		v.keys[id] = key
		v.ids[key] = id
	}
	return nil
}

// Search returns up to k ids nearest to query by cosine similarity.
func (v *VectorIndex) Search(_ context.Context, query []float32, k int) ([]VectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.graph.Len() == 0 || k <= 0 {
		return []VectorHit{}, nil
	}
	if len(query) != v.dims {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(query), v.dims)
	}

	q := unit(query)
	// Orphaned nodes can crowd out live ones, so over-fetch by the orphan count.
	fetch := k + (v.graph.Len() - len(v.keys))
	nodes := v.graph.Search(q, fetch)

	hits := make([]VectorHit, 0, k)
	for _, n := range nodes {
		id, ok := v.ids[n.Key]
		if !ok {
			continue
		}
		d := v.graph.Distance(q, n.Value)
		hits = append(hits, VectorHit{ID: id, Score: float64(1 - d/2)})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Count returns the number of live vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}

// Save writes the graph to path and the id mapping to path.meta, each via
// temp file and rename.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := saveWith(path, func(f *os.File) error { return v.graph.Export(f) }); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	meta := vectorMeta{Keys: v.keys, NextKey: v.nextKey, Dims: v.dims}
	if err := saveWith(path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(meta) }); err != nil {
		return fmt.Errorf("save vector metadata: %w", err)
	}
	return nil
}

// Clear forgets every vector and removes the files saved at path.
func (v *VectorIndex) Clear(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.graph = newGraph()
	v.dims = 0
	v.nextKey = 0
	v.keys = make(map[string]uint64)
	v.ids = make(map[uint64]string)
	if path == "" {
		return nil
	}
	for _, p := range []string{path, path + ".meta"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func saveWith(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (v *VectorIndex) load(path string) error {
	mf, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open vector metadata: %w", err)
	}
	var meta vectorMeta
	err = gob.NewDecoder(mf).Decode(&meta)
	_ = mf.Close()
	if err != nil {
		return fmt.Errorf("decode vector metadata: %w", err)
	}

	gf, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open graph: %w", err)
	}
	defer gf.Close()
	g := newGraph()
	if err := g.Import(bufio.NewReader(gf)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	v.graph = g
	v.dims = meta.Dims
	v.nextKey = meta.NextKey
	v.keys = meta.Keys
	if v.keys == nil {
		v.keys = make(map[string]uint64)
	}
	v.ids = make(map[uint64]string, len(v.keys))
	for id, key := range v.keys {
		v.ids[key] = id
	}
	return nil
}

func unit(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	var sum float64
	for _, x := range out {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range out {
		out[i] *= inv
	}
	return out
}
