package store

import (
	"context"
	"errors"
	"fmt"

	"regcheck/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateSubmittedDocument registers a submitted document and its units in
// one transaction. A content hash already present on an active document
// rejects the submission with ErrDuplicateSubmission.
func (p *PostgresStore) CreateSubmittedDocument(ctx context.Context, doc types.SubmittedDocument, units []string) error {
	if doc.Filename == "" || doc.ContentHash == "" {
		fields := map[string]string{}
		if doc.Filename == "" {
			fields["Filename"] = "failed on 'required' tag"
		}
		if doc.ContentHash == "" {
			fields["ContentHash"] = "failed on 'required' tag"
		}
		return types.NewValidationError(fields)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var active int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM submitted_documents
		 WHERE content_hash = $1 AND status IN ('processing', 'completed')`,
		doc.ContentHash).Scan(&active)
	if err != nil {
		return err
	}
	if active > 0 {
		return fmt.Errorf("%w: content hash %s", types.ErrDuplicateSubmission, doc.ContentHash)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO submitted_documents (id, filename, size_bytes, content_hash, status, category, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.Filename, doc.SizeBytes, doc.ContentHash, doc.Status, doc.Category, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return err
	}

	for i, content := range units {
		_, err = tx.Exec(ctx,
			`INSERT INTO document_units (id, doc_id, position, content) VALUES ($1, $2, $3, $4)`,
			uuid.New(), doc.ID, i, content)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) GetSubmittedDocument(ctx context.Context, id uuid.UUID) (*types.SubmittedDocument, error) {
	doc := &types.SubmittedDocument{}
	err := p.pool.QueryRow(ctx,
		`SELECT id, filename, size_bytes, content_hash, status, category, created_at, updated_at
		 FROM submitted_documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.Filename, &doc.SizeBytes, &doc.ContentHash, &doc.Status, &doc.Category, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *PostgresStore) SetSubmittedStatus(ctx context.Context, id uuid.UUID, status types.ProcessingStatus) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE submitted_documents SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (p *PostgresStore) GetUnits(ctx context.Context, docID uuid.UUID) ([]types.DocumentUnit, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, doc_id, position, content FROM document_units WHERE doc_id = $1 ORDER BY position`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []types.DocumentUnit
	for rows.Next() {
		var u types.DocumentUnit
		if err := rows.Scan(&u.ID, &u.DocID, &u.Position, &u.Content); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
