package config

import "path/filepath"

func (p PathsConfig) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.DataDir, name)
}

func (p PathsConfig) VocabularyPath() string        { return p.resolve(p.Vocabulary) }
func (p PathsConfig) DocumentFrequencyPath() string { return p.resolve(p.DocumentFrequency) }
func (p PathsConfig) CorpusPath() string            { return p.resolve(p.Corpus) }
func (p PathsConfig) SparseDBPath() string          { return p.resolve(p.SparseDB) }
func (p PathsConfig) VectorIndexPath() string       { return p.resolve(p.VectorIndex) }

// LockPath is the single-writer ingestion lock.
func (p PathsConfig) LockPath() string { return filepath.Join(p.DataDir, ".ingest.lock") }
