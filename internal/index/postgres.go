package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"talent-match/internal/storage"
)

// PostgresPersister keeps index entries in the candidate_index table next to
// the canonical store. Requires the pgvector extension.
type PostgresPersister struct {
	db *storage.DB
}

func NewPostgresPersister(db *storage.DB) (*PostgresPersister, error) {
	if !db.HasIndexTable() {
		return nil, fmt.Errorf("candidate_index table is missing (is the pgvector extension installed?)")
	}
	return &PostgresPersister{db: db}, nil
}

func (p *PostgresPersister) Save(ctx context.Context, s State) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var vec any
	if len(s.Embedding) > 0 {
		vec = pgvector.NewVector(s.Embedding)
	}
	_, err = p.db.GetConnection().ExecContext(ctx, `
		INSERT INTO candidate_index (candidate_id, embedding, embedding_version, updated_at, source_updated_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (candidate_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			embedding_version = EXCLUDED.embedding_version,
			updated_at = EXCLUDED.updated_at,
			source_updated_at = EXCLUDED.source_updated_at,
			metadata = EXCLUDED.metadata
	`, s.CandidateID, vec, s.EmbeddingVersion, nullTime(s.UpdatedAt), nullTime(s.SourceUpdatedAt), meta)
	return err
}

func (p *PostgresPersister) Delete(ctx context.Context, candidateID string) error {
	_, err := p.db.GetConnection().ExecContext(ctx, `DELETE FROM candidate_index WHERE candidate_id = $1`, candidateID)
	return err
}

func (p *PostgresPersister) LoadAll(ctx context.Context) ([]State, error) {
	rows, err := p.db.GetConnection().QueryContext(ctx, `
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
			vec             pgvector.Vector
			raw             sql.NullString
			updated, source sql.NullTime
			meta            []byte
		)
		if err := rows.Scan(&s.CandidateID, &raw, &s.EmbeddingVersion, &updated, &source, &meta); err != nil {
			return nil, err
		}
		if raw.Valid {
			if err := vec.Scan(raw.String); err != nil {
				return nil, fmt.Errorf("decode embedding of %s: %w", s.CandidateID, err)
			}
			s.Embedding = vec.Slice()
		}
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", s.CandidateID, err)
		}
		s.UpdatedAt = updated.Time
		s.SourceUpdatedAt = source.Time
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
