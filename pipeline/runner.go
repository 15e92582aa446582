package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"regcheck/store"
	"regcheck/types"

	"github.com/google/uuid"
)

// UnitAnalyzer is the per-unit half of the pipeline, pluggable for tests.
type UnitAnalyzer interface {
	AnalyzeUnit(ctx context.Context, unit types.DocumentUnit) (types.UnitResult, error)
}

// Runner executes compliance runs over submitted documents.
type Runner struct {
	store    store.Storer
	analyzer UnitAnalyzer
	workers  int
}

func NewRunner(storer store.Storer, analyzer UnitAnalyzer, workers int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		store:    storer,
		analyzer: analyzer,
		workers:  workers,
	}
}

// RunComplianceCheck analyzes every unit of the document with a bounded
// worker pool, aggregates, and persists the run in one transaction. A
// pipeline-level failure or cancellation leaves no partial run behind and
// sets the document status to error.
func (r *Runner) RunComplianceCheck(ctx context.Context, docID uuid.UUID) (*types.ComplianceRun, error) {
	doc, err := r.store.GetSubmittedDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("error loading submitted document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("submitted document %s not found", docID)
	}

	units, err := r.store.GetUnits(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("error loading document units: %w", err)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("submitted document %s has no units", docID)
	}

	if err := r.store.SetSubmittedStatus(ctx, docID, types.StatusProcessing); err != nil {
		return nil, err
	}

	started := time.Now()
	results, err := r.analyzeAll(ctx, units)
	if err != nil {
		if stErr := r.store.SetSubmittedStatus(ctx, docID, types.StatusError); stErr != nil {
			log.Printf("[RUNNER] failed to mark document %s as error: %v", docID, stErr)
		}
		return nil, err
	}

	run := Aggregate(docID, results, started, time.Now())

	if err := r.store.SaveRun(ctx, run); err != nil {
		if stErr := r.store.SetSubmittedStatus(ctx, docID, types.StatusError); stErr != nil {
			log.Printf("[RUNNER] failed to mark document %s as error: %v", docID, stErr)
		}
		return nil, fmt.Errorf("error persisting run: %w", err)
	}

	if err := r.store.SetSubmittedStatus(ctx, docID, types.StatusCompleted); err != nil {
		return nil, err
	}

	log.Printf("[RUNNER] run %s for document %s: %s, %d findings over %d units (%d error units)",
		run.ID, docID, run.Status, run.Total, run.TotalUnits, run.ErrorUnits)
	return run, nil
}

// analyzeAll fans units out to the worker pool. Workers stop taking new
// units once the context is cancelled; a retrieval failure cancels the
// whole run. The aggregator consumes the full set, so completion order
// does not matter.
func (r *Runner) analyzeAll(ctx context.Context, units []types.DocumentUnit) ([]types.UnitResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan types.DocumentUnit, len(units))
	for _, u := range units {
		jobs <- u
	}
	close(jobs)

	var (
		mu       sync.Mutex
		results  []types.UnitResult
		firstErr error
		wg       sync.WaitGroup
	)

	workers := r.workers
	if workers > len(units) {
		workers = len(units)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range jobs {
				// Cancellation happens between units, never mid-unit.
				if runCtx.Err() != nil {
					return
				}

				res, err := r.analyzer.AnalyzeUnit(runCtx, unit)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					cancel()
					return
				}
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("compliance run aborted: %w", firstErr)
	}
	if err := ctx.Err(); err != nil {
		// Cancelled: already-produced unit results are discarded, not
		// partially reported.
		return nil, fmt.Errorf("compliance run cancelled: %w", err)
	}
	return results, nil
}

// GetLatestRun returns the newest run for a document, findings included,
// or nil when the document has never been checked.
func (r *Runner) GetLatestRun(ctx context.Context, docID uuid.UUID) (*types.ComplianceRun, []types.Finding, error) {
	run, err := r.store.GetLatestRun(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, nil
	}
	findings, err := r.store.GetFindings(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	return run, findings, nil
}
