package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"talent-match/internal/embeddings"
)

// SQLitePersister keeps index entries in a local SQLite file. Vectors are
// stored as little-endian float32 blobs.
type SQLitePersister struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLitePersister, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("index: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initIndexSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: init schema: %w", err)
	}
	return &SQLitePersister{db: db}, nil
}

func initIndexSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS candidate_index (
		candidate_id      TEXT PRIMARY KEY,
		embedding         BLOB,
		embedding_version TEXT NOT NULL DEFAULT '',
		updated_at        TEXT,
		source_updated_at TEXT,
		metadata          TEXT NOT NULL
	)`)
	return err
}

func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

func (p *SQLitePersister) Save(ctx context.Context, s State) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var blob []byte
	if len(s.Embedding) > 0 {
		blob = embeddings.SerializeEmbedding(s.Embedding)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO candidate_index (candidate_id, embedding, embedding_version, updated_at, source_updated_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(candidate_id) DO UPDATE SET
			embedding = excluded.embedding,
			embedding_version = excluded.embedding_version,
			updated_at = excluded.updated_at,
			source_updated_at = excluded.source_updated_at,
			metadata = excluded.metadata
	`, s.CandidateID, blob, s.EmbeddingVersion, formatTime(s.UpdatedAt), formatTime(s.SourceUpdatedAt), string(meta))
	return err
}

func (p *SQLitePersister) Delete(ctx context.Context, candidateID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM candidate_index WHERE candidate_id = ?`, candidateID)
	return err
}

func (p *SQLitePersister) LoadAll(ctx context.Context) ([]State, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT candidate_id, embedding, embedding_version, updated_at, source_updated_at, metadata
		FROM candidate_index
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []State
	for rows.Next() {
		var (
			s               State
			blob            []byte
			updated, source sql.NullString
			meta            string
		)
		if err := rows.Scan(&s.CandidateID, &blob, &s.EmbeddingVersion, &updated, &source, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", s.CandidateID, err)
		}
		s.Embedding = embeddings.DeserializeEmbedding(blob)
		s.UpdatedAt = parseTime(updated.String)
		s.SourceUpdatedAt = parseTime(source.String)
		out = append(out, s)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
