package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"regcheck/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Storer is the relational store consumed by the pipeline: the mirror of
// the regulatory corpus, submitted documents with their units, and the
// findings store.
type Storer interface {
	SaveRegulatoryDocument(ctx context.Context, doc types.RegulatoryDocument) error
	GetRegulatoryDocument(ctx context.Context, id uuid.UUID) (*types.RegulatoryDocument, error)
	SetRegulatoryStatus(ctx context.Context, id uuid.UUID, status types.ProcessingStatus, chunkCount int) error
	DeleteRegulatoryDocument(ctx context.Context, id uuid.UUID) (bool, error)
	SaveChunks(ctx context.Context, chunks []types.RegulatoryChunk) error
	DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error
	CountChunksByDocID(ctx context.Context, docID uuid.UUID) (int, error)
	LexicalSearch(ctx context.Context, query string, limit int) ([]LexicalHit, error)

	CreateSubmittedDocument(ctx context.Context, doc types.SubmittedDocument, units []string) error
	GetSubmittedDocument(ctx context.Context, id uuid.UUID) (*types.SubmittedDocument, error)
	SetSubmittedStatus(ctx context.Context, id uuid.UUID, status types.ProcessingStatus) error
	GetUnits(ctx context.Context, docID uuid.UUID) ([]types.DocumentUnit, error)

	SaveRun(ctx context.Context, run *types.ComplianceRun) error
	GetLatestRun(ctx context.Context, docID uuid.UUID) (*types.ComplianceRun, error)
	GetFindings(ctx context.Context, runID uuid.UUID) ([]types.Finding, error)
}

// LexicalHit is one keyword-scored chunk from the relational mirror.
type LexicalHit struct {
	ChunkID  string
	DocID    uuid.UUID
	DocTitle string
	Code     string
	Section  string
	Page     int
	Content  string
	Rank     float64
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Pool exposes the underlying pool so the vector index adapter can share
// the same connection set.
func (p *PostgresStore) Pool() *pgxpool.Pool {
	return p.pool
}

func (p *PostgresStore) Init(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS regulatory_documents (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		code TEXT,
		category TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS regulatory_chunks (
		chunk_id TEXT PRIMARY KEY,
		doc_id UUID NOT NULL REFERENCES regulatory_documents(id) ON DELETE CASCADE,
		position INT NOT NULL,
		type TEXT CHECK (type IN ('paragraph','table','figure')),
		section TEXT,
		page INT,
		content TEXT NOT NULL,
		metadata JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_regulatory_chunks_doc_id ON regulatory_chunks(doc_id);
	CREATE INDEX IF NOT EXISTS idx_regulatory_chunks_tsv ON regulatory_chunks
		USING GIN (to_tsvector('simple', content));

	CREATE TABLE IF NOT EXISTS submitted_documents (
		id UUID PRIMARY KEY,
		filename TEXT NOT NULL,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		category TEXT,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_submitted_content_hash ON submitted_documents(content_hash);

	CREATE TABLE IF NOT EXISTS document_units (
		id UUID PRIMARY KEY,
		doc_id UUID NOT NULL REFERENCES submitted_documents(id) ON DELETE CASCADE,
		position INT NOT NULL,
		content TEXT NOT NULL,
		UNIQUE (doc_id, position)
	);

	CREATE TABLE IF NOT EXISTS compliance_runs (
		id UUID PRIMARY KEY,
		doc_id UUID NOT NULL REFERENCES submitted_documents(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		total_findings INT NOT NULL,
		critical_findings INT NOT NULL,
		warning_findings INT NOT NULL,
		info_findings INT NOT NULL,
		compliance_pct DOUBLE PRECISION NOT NULL,
		total_units INT NOT NULL,
		error_units INT NOT NULL,
		started_at TIMESTAMP WITH TIME ZONE,
		finished_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_doc_id ON compliance_runs(doc_id, started_at DESC);

	CREATE TABLE IF NOT EXISTS unit_results (
		run_id UUID NOT NULL REFERENCES compliance_runs(id) ON DELETE CASCADE,
		unit_index INT NOT NULL,
		status TEXT NOT NULL,
		critical INT NOT NULL,
		warning INT NOT NULL,
		info INT NOT NULL,
		PRIMARY KEY (run_id, unit_index)
	);

	CREATE TABLE IF NOT EXISTS findings (
		id UUID PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES compliance_runs(id) ON DELETE CASCADE,
		unit_index INT NOT NULL,
		severity INT NOT NULL CHECK (severity BETWEEN 1 AND 5),
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		recommendation TEXT,
		reference TEXT,
		confidence DOUBLE PRECISION
	);

	CREATE INDEX IF NOT EXISTS idx_findings_run_id ON findings(run_id);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) SaveRegulatoryDocument(ctx context.Context, doc types.RegulatoryDocument) error {
	if doc.Title == "" {
		return types.NewValidationError(map[string]string{"Title": "failed on 'required' tag"})
	}
	query := `INSERT INTO regulatory_documents (id, title, code, category, status, chunk_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			code = EXCLUDED.code,
			category = EXCLUDED.category,
			status = EXCLUDED.status,
			chunk_count = EXCLUDED.chunk_count,
			updated_at = EXCLUDED.updated_at
		`
	_, err := p.pool.Exec(ctx, query,
		doc.ID, doc.Title, doc.Code, doc.Category, doc.Status, doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt)
	return err
}

func (p *PostgresStore) GetRegulatoryDocument(ctx context.Context, id uuid.UUID) (*types.RegulatoryDocument, error) {
	doc := &types.RegulatoryDocument{}
	err := p.pool.QueryRow(ctx,
		`SELECT id, title, code, category, status, chunk_count, created_at, updated_at
		 FROM regulatory_documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.Title, &doc.Code, &doc.Category, &doc.Status, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *PostgresStore) SetRegulatoryStatus(ctx context.Context, id uuid.UUID, status types.ProcessingStatus, chunkCount int) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE regulatory_documents SET status = $2, chunk_count = $3, updated_at = now() WHERE id = $1`,
		id, status, chunkCount)
	return err
}

func (p *PostgresStore) DeleteRegulatoryDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM regulatory_documents WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStore) SaveChunks(ctx context.Context, chunks []types.RegulatoryChunk) error {
	query := `
	INSERT INTO regulatory_chunks (chunk_id, doc_id, position, type, section, page, content, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (chunk_id) DO UPDATE SET
		position = EXCLUDED.position,
		type = EXCLUDED.type,
		section = EXCLUDED.section,
		page = EXCLUDED.page,
		content = EXCLUDED.content,
		metadata = EXCLUDED.metadata
	`
	for _, c := range chunks {
		if c.Content == "" {
			return types.NewValidationError(map[string]string{"Content": "failed on 'required' tag"})
		}
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("error marshaling chunk metadata: %w", err)
		}
		if _, err := p.pool.Exec(ctx, query,
			c.ChunkID, c.DocID, c.Position, c.Type, c.Section, c.Page, c.Content, metadata); err != nil {
			return fmt.Errorf("error saving chunk %s: %w", c.ChunkID, err)
		}
	}
	return nil
}

func (p *PostgresStore) DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM regulatory_chunks WHERE doc_id = $1", docID)
	return err
}

func (p *PostgresStore) CountChunksByDocID(ctx context.Context, docID uuid.UUID) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, "SELECT count(*) FROM regulatory_chunks WHERE doc_id = $1", docID).Scan(&count)
	return count, err
}

// LexicalSearch ranks mirror chunks against the query with Postgres full
// text search. The keyword leg of hybrid retrieval.
func (p *PostgresStore) LexicalSearch(ctx context.Context, query string, limit int) ([]LexicalHit, error) {
	sql := `
	SELECT c.chunk_id, c.doc_id, d.title, d.code, c.section, c.page, c.content,
	       ts_rank(to_tsvector('simple', c.content), plainto_tsquery('simple', $1)) AS rank
	FROM regulatory_chunks c
	JOIN regulatory_documents d ON c.doc_id = d.id
	WHERE to_tsvector('simple', c.content) @@ plainto_tsquery('simple', $1)
	ORDER BY rank DESC
	LIMIT $2
	`
	rows, err := p.pool.Query(ctx, sql, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.ChunkID, &h.DocID, &h.DocTitle, &h.Code, &h.Section, &h.Page, &h.Content, &h.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
