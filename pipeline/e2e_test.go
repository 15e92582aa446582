package pipeline

import (
	"context"
	"testing"
	"time"

	"regcheck/chunker"
	"regcheck/retriever"
	"regcheck/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Full pipeline wiring over in-memory stores: ingest a regulation, submit
// a contradicting document, run the check.
func TestEndToEndViolation(t *testing.T) {
	st := newMemStore()
	idx := newMemIndex()
	embedder := newHashEmbedder()
	ctx := context.Background()

	ing := NewIngestor(st, idx, embedder, chunker.New(50))
	regID := uuid.New()
	_, err := ing.IngestRegulatoryDocument(ctx, regID, types.IngestParams{
		Title: "DBN B.2.6-31 Thermal insulation of buildings",
		Text:  "Minimum wall thickness shall be 200mm for all exterior load-bearing walls.",
	})
	require.NoError(t, err)

	generator := &scriptedGenerator{responses: map[string]string{
		"150mm": `{"findings": [{"severity": 5, "category": "compliance",
			"title": "Wall thickness below minimum",
			"description": "Submitted 150mm is below the required 200mm",
			"recommendation": "Increase wall thickness to at least 200mm",
			"reference": "DBN B.2.6-31", "confidence": 0.95}]}`,
	}}

	cfg := types.Config{TopK: 8, MinRelevance: 0.1, ContextBudget: 5000, UnitTimeout: 10 * time.Second}
	ret := retriever.New(embedder, idx, st, cfg.MinRelevance)
	analyzer := NewAnalyzer(ret, generator, cfg)
	runner := NewRunner(st, analyzer, 2)

	doc, err := runner.SubmitDocument(ctx, types.SubmitParams{
		Filename: "walls.pdf",
		Units:    []string{"Exterior wall thickness: 150mm, load-bearing."},
	})
	require.NoError(t, err)

	run, err := runner.RunComplianceCheck(ctx, doc.ID)
	require.NoError(t, err)

	assert.Equal(t, types.RunFail, run.Status)
	assert.GreaterOrEqual(t, run.Critical, 1)

	_, findings, err := runner.GetLatestRun(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	assert.GreaterOrEqual(t, findings[0].Severity, 4)
	assert.Equal(t, "DBN B.2.6-31", findings[0].Reference)
}

func TestEndToEndClean(t *testing.T) {
	st := newMemStore()
	idx := newMemIndex()
	embedder := newHashEmbedder()
	ctx := context.Background()

	ing := NewIngestor(st, idx, embedder, chunker.New(50))
	_, err := ing.IngestRegulatoryDocument(ctx, uuid.New(), types.IngestParams{
		Title: "DSTU 4344 Rail fastening systems",
		Text:  "Rail fastening bolts shall be torqued to between 180 and 220 newton meters.",
	})
	require.NoError(t, err)

	// Nothing in the scripted generator matches, so every unit comes back
	// with an empty findings payload.
	generator := &scriptedGenerator{}

	cfg := types.Config{TopK: 8, MinRelevance: 0.1, ContextBudget: 5000, UnitTimeout: 10 * time.Second}
	ret := retriever.New(embedder, idx, st, cfg.MinRelevance)
	analyzer := NewAnalyzer(ret, generator, cfg)
	runner := NewRunner(st, analyzer, 2)

	doc, err := runner.SubmitDocument(ctx, types.SubmitParams{
		Filename: "landscaping.pdf",
		Units:    []string{"The garden path is paved with decorative gravel and lined with shrubs."},
	})
	require.NoError(t, err)

	run, err := runner.RunComplianceCheck(ctx, doc.ID)
	require.NoError(t, err)

	assert.Equal(t, types.RunPass, run.Status)
	assert.Equal(t, 0, run.Total)
	assert.InDelta(t, 100.0, run.CompliancePct, 1e-9)
}

func TestEndToEndModelOutage(t *testing.T) {
	st := newMemStore()
	idx := newMemIndex()
	embedder := newHashEmbedder()
	ctx := context.Background()

	ing := NewIngestor(st, idx, embedder, chunker.New(50))
	_, err := ing.IngestRegulatoryDocument(ctx, uuid.New(), types.IngestParams{
		Title: "DBN V.1.1-7 Fire safety",
		Text:  "Escape routes shall be at least 1200mm wide.",
	})
	require.NoError(t, err)

	generator := &scriptedGenerator{err: types.ErrModelUnavailable}

	cfg := types.Config{TopK: 8, MinRelevance: 0.1, ContextBudget: 5000, UnitTimeout: time.Second}
	ret := retriever.New(embedder, idx, st, cfg.MinRelevance)
	analyzer := NewAnalyzer(ret, generator, cfg)
	// Shrink retries so the outage path stays fast.
	analyzer.retry.MaxAttempts = 1

	runner := NewRunner(st, analyzer, 2)
	doc, err := runner.SubmitDocument(ctx, types.SubmitParams{
		Filename: "corridors.pdf",
		Units:    []string{"Corridor width is 1100mm on the second floor."},
	})
	require.NoError(t, err)

	run, err := runner.RunComplianceCheck(ctx, doc.ID)
	require.NoError(t, err)

	// The outage is visible as an error unit, not as a compliance verdict.
	assert.Equal(t, 1, run.ErrorUnits)
	assert.Equal(t, types.RunPass, run.Status)
	assert.Equal(t, 0, run.Total)
	assert.InDelta(t, 0.0, run.CompliancePct, 1e-9)
}
