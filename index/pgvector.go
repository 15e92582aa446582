package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorIndex stores collections as pgvector tables, one table per
// logical collection.
type PgVectorIndex struct {
	pool *pgxpool.Pool
}

func NewPgVectorIndex(pool *pgxpool.Pool) *PgVectorIndex {
	return &PgVectorIndex{pool: pool}
}

func (p *PgVectorIndex) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS %s (
		id UUID PRIMARY KEY,
		doc_id UUID NOT NULL,
		payload JSONB NOT NULL,
		embedding vector(%d) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_%s_doc_id ON %s(doc_id);
	`, collection, dimension, collection, collection, collection, collection)

	_, err := p.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("error creating collection %s: %w", collection, err)
	}
	return nil
}

func (p *PgVectorIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	query := fmt.Sprintf(`
	INSERT INTO %s (id, doc_id, payload, embedding)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET
		doc_id = EXCLUDED.doc_id,
		payload = EXCLUDED.payload,
		embedding = EXCLUDED.embedding
	`, collection)

	for _, pt := range points {
		docID, err := uuid.Parse(pt.Payload.DocID)
		if err != nil {
			return fmt.Errorf("invalid doc id in payload: %w", err)
		}
		payload, err := json.Marshal(pt.Payload)
		if err != nil {
			return fmt.Errorf("error marshaling payload: %w", err)
		}
		if _, err := p.pool.Exec(ctx, query, pt.ID, docID, payload, pgvector.NewVector(pt.Vector)); err != nil {
			return fmt.Errorf("error upserting point %s: %w", pt.ID, err)
		}
	}
	return nil
}

func (p *PgVectorIndex) Search(ctx context.Context, collection string, vector []float32, k int, filter *Filter) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	query := fmt.Sprintf(`
	SELECT id, payload, 1 - (embedding <=> $1) AS score
	FROM %s
	WHERE ($2::uuid IS NULL OR doc_id = $2::uuid)
	  AND ($3::text IS NULL OR payload->>'category' = $3::text)
	ORDER BY embedding <=> $1
	LIMIT $4
	`, collection)

	var docID, category *string
	if filter != nil {
		if filter.DocID != "" {
			docID = &filter.DocID
		}
		if filter.Category != "" {
			category = &filter.Category
		}
	}

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), docID, category, k)
	if err != nil {
		return nil, fmt.Errorf("error searching collection %s: %w", collection, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		var payload []byte
		if err := rows.Scan(&hit.ID, &payload, &hit.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &hit.Payload); err != nil {
			return nil, fmt.Errorf("error unmarshaling payload: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (p *PgVectorIndex) DeleteByDocument(ctx context.Context, collection string, docID uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", collection)
	_, err := p.pool.Exec(ctx, query, docID)
	return err
}

func (p *PgVectorIndex) CountByDocument(ctx context.Context, collection string, docID uuid.UUID) (int, error) {
	query := fmt.Sprintf("SELECT count(*) FROM %s WHERE doc_id = $1", collection)
	var count int
	if err := p.pool.QueryRow(ctx, query, docID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
