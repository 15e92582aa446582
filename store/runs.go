package store

import (
	"context"
	"errors"
	"fmt"

	"regcheck/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveRun persists a compliance run, its per-unit results and all findings
// in one transaction. Either every row of the run is visible or none.
func (p *PostgresStore) SaveRun(ctx context.Context, run *types.ComplianceRun) error {
	if run.Status == "" {
		return types.NewValidationError(map[string]string{"Status": "failed on 'required' tag"})
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO compliance_runs
		 (id, doc_id, status, total_findings, critical_findings, warning_findings, info_findings,
		  compliance_pct, total_units, error_units, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.DocID, run.Status, run.Total, run.Critical, run.Warning, run.Info,
		run.CompliancePct, run.TotalUnits, run.ErrorUnits, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("error saving run: %w", err)
	}

	for _, u := range run.Units {
		_, err = tx.Exec(ctx,
			`INSERT INTO unit_results (run_id, unit_index, status, critical, warning, info)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			run.ID, u.UnitIndex, u.Status, u.Critical, u.Warning, u.Info)
		if err != nil {
			return fmt.Errorf("error saving unit result %d: %w", u.UnitIndex, err)
		}

		for _, f := range u.Findings {
			id := f.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO findings
				 (id, run_id, unit_index, severity, category, title, description, recommendation, reference, confidence)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				id, run.ID, u.UnitIndex, f.Severity, f.Category, f.Title, f.Description,
				f.Recommendation, nullIfEmpty(f.Reference), f.Confidence)
			if err != nil {
				return fmt.Errorf("error saving finding %q: %w", f.Title, err)
			}
		}
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) GetLatestRun(ctx context.Context, docID uuid.UUID) (*types.ComplianceRun, error) {
	run := &types.ComplianceRun{}
	err := p.pool.QueryRow(ctx,
		`SELECT id, doc_id, status, total_findings, critical_findings, warning_findings, info_findings,
		        compliance_pct, total_units, error_units, started_at, finished_at
		 FROM compliance_runs WHERE doc_id = $1
		 ORDER BY started_at DESC LIMIT 1`, docID).
		Scan(&run.ID, &run.DocID, &run.Status, &run.Total, &run.Critical, &run.Warning, &run.Info,
			&run.CompliancePct, &run.TotalUnits, &run.ErrorUnits, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT unit_index, status, critical, warning, info
		 FROM unit_results WHERE run_id = $1 ORDER BY unit_index`, run.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u types.UnitResult
		if err := rows.Scan(&u.UnitIndex, &u.Status, &u.Critical, &u.Warning, &u.Info); err != nil {
			return nil, err
		}
		run.Units = append(run.Units, u)
	}
	return run, rows.Err()
}

// GetFindings returns all findings of a run ordered by severity descending,
// then unit order ascending.
func (p *PostgresStore) GetFindings(ctx context.Context, runID uuid.UUID) ([]types.Finding, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, run_id, unit_index, severity, category, title,
		        coalesce(description, ''), coalesce(recommendation, ''), coalesce(reference, ''), coalesce(confidence, 0)
		 FROM findings WHERE run_id = $1
		 ORDER BY severity DESC, unit_index ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []types.Finding
	for rows.Next() {
		var f types.Finding
		if err := rows.Scan(&f.ID, &f.RunID, &f.UnitIndex, &f.Severity, &f.Category, &f.Title,
			&f.Description, &f.Recommendation, &f.Reference, &f.Confidence); err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
