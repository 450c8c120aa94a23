package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

// SQLiteSparseIndex is the local sparse backend. It keeps one posting per
// (token id, chunk) with the TF-IDF weight and scores a query vector by dot
// product, the same metric a managed sparse index uses.
type SQLiteSparseIndex struct {
	db      *sql.DB
	path    string
	maxText int
}

var sparseSchema = []string{
	`CREATE TABLE IF NOT EXISTS sparse_docs (
		id         TEXT PRIMARY KEY,
		chunk_text TEXT NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS postings (
		token_id INTEGER NOT NULL,
		doc_id   TEXT NOT NULL,
		value    REAL NOT NULL,
		PRIMARY KEY (token_id, doc_id)
	) WITHOUT ROWID`,
	`CREATE INDEX IF NOT EXISTS idx_postings_doc ON postings(doc_id)`,
}

// The query vector arrives as a JSON array of [token_id, weight] pairs.
const sparseQuery = `
WITH q(token_id, weight) AS (
	SELECT json_extract(value, '$[0]'), json_extract(value, '$[1]') FROM json_each(?)
)
SELECT d.id, d.chunk_text, d.metadata, SUM(p.value * q.weight) AS score
FROM q
JOIN postings p ON p.token_id = q.token_id
JOIN sparse_docs d ON d.id = p.doc_id
GROUP BY d.id
ORDER BY score DESC, d.rowid ASC
LIMIT ?`

// NewSQLiteSparseIndex opens or creates the index at path. An empty path
// opens an in-memory database. A file failing the integrity check is removed
// and recreated empty.
func NewSQLiteSparseIndex(path string, maxText int) (*SQLiteSparseIndex, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		if err := checkIntegrity(path); err != nil {
			slog.Warn("sparse_index_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, ragerrors.StateError("sparse index corrupted and cannot be removed", rmErr).WithDetail("path", path)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sparse index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16384",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	for _, stmt := range sparseSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create sparse schema: %w", err)
		}
	}

	if maxText <= 0 {
		maxText = DefaultMaxStoredText
	}
	return &SQLiteSparseIndex{db: db, path: path, maxText: maxText}, nil
}

func checkIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	return nil
}

// Upsert replaces the stored postings and fields of each record in one
// transaction. Records with empty vectors are skipped.
func (s *SQLiteSparseIndex) Upsert(ctx context.Context, records []SparseRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	docStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sparse_docs (id, chunk_text, metadata) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET chunk_text = excluded.chunk_text, metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("prepare doc insert: %w", err)
	}
	defer docStmt.Close()

	delStmt, err := tx.PrepareContext(ctx, `DELETE FROM postings WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare posting delete: %w", err)
	}
	defer delStmt.Close()

	postStmt, err := tx.PrepareContext(ctx, `INSERT INTO postings (token_id, doc_id, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare posting insert: %w", err)
	}
	defer postStmt.Close()

	for _, r := range records {
		if r.Vector.IsEmpty() {
			continue
		}
		meta, err := json.Marshal(FlattenMetadata(r.Metadata))
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", r.ID, err)
		}
		if _, err := docStmt.ExecContext(ctx, r.ID, TruncateText(r.Text, s.maxText), string(meta)); err != nil {
			return fmt.Errorf("insert doc %s: %w", r.ID, err)
		}
		if _, err := delStmt.ExecContext(ctx, r.ID); err != nil {
			return fmt.Errorf("clear postings %s: %w", r.ID, err)
		}
		for i, tokenID := range r.Vector.Indices {
			if _, err := postStmt.ExecContext(ctx, tokenID, r.ID, r.Vector.Values[i]); err != nil {
				return fmt.Errorf("insert posting %s/%d: %w", r.ID, tokenID, err)
			}
		}
	}
	return tx.Commit()
}

// Query returns the topK chunks with the largest dot product against vec.
func (s *SQLiteSparseIndex) Query(ctx context.Context, vec SparseVector, topK int) ([]Hit, error) {
	if vec.IsEmpty() || topK <= 0 {
		return []Hit{}, nil
	}
	pairs := make([][2]float64, len(vec.Indices))
	for i, id := range vec.Indices {
		pairs[i] = [2]float64{float64(id), vec.Values[i]}
	}
	qjson, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("encode query vector: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sparseQuery, string(qjson), topK)
	if err != nil {
		return nil, ragerrors.BackendError("sqlite-sparse", "sparse query failed", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, topK)
	for rows.Next() {
		var (
			h        Hit
			metaJSON string
		)
		if err := rows.Scan(&h.ID, &h.Text, &metaJSON, &h.Score); err != nil {
			return nil, fmt.Errorf("scan sparse hit: %w", err)
		}
		fields := map[string]any{}
		if err := json.Unmarshal([]byte(metaJSON), &fields); err != nil {
			slog.Warn("sparse_metadata_malformed", slog.String("id", h.ID), slog.String("error", err.Error()))
		}
		h.Metadata = UnflattenMetadata(fields)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Count returns the number of stored chunks.
func (s *SQLiteSparseIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sparse_docs").Scan(&n)
	return n, err
}

// Clear deletes every chunk and posting.
func (s *SQLiteSparseIndex) Clear(ctx context.Context) error {
	for _, stmt := range []string{"DELETE FROM postings", "DELETE FROM sparse_docs"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear sparse index: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSparseIndex) Close() error {
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
