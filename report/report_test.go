package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"regcheck/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderProducesPDF(t *testing.T) {
	doc := types.SubmittedDocument{ID: uuid.New(), Filename: "project.pdf"}
	run := types.ComplianceRun{
		ID:            uuid.New(),
		DocID:         doc.ID,
		Status:        types.RunFail,
		TotalUnits:    3,
		Total:         2,
		Critical:      1,
		Warning:       1,
		CompliancePct: 100,
		StartedAt:     time.Now(),
	}
	findings := []types.Finding{
		{
			UnitIndex: 0, Severity: 5, Category: types.CategoryCompliance,
			Title:          "Wall thickness below minimum",
			Description:    "Submitted 150mm is below the required 200mm for exterior load-bearing walls.",
			Recommendation: "Increase wall thickness to at least 200mm.",
			Reference:      "DBN B.2.6-31",
			Confidence:     0.95,
		},
		{
			UnitIndex: 2, Severity: 3, Category: types.CategoryFormat,
			Title:       "Missing revision table",
			Description: "The title sheet has no revision table.",
			Confidence:  0.6,
		},
	}

	var buf bytes.Buffer
	err := Render(&buf, doc, run, findings)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestRenderEmptyRun(t *testing.T) {
	doc := types.SubmittedDocument{ID: uuid.New(), Filename: "clean.pdf"}
	run := types.ComplianceRun{ID: uuid.New(), DocID: doc.ID, Status: types.RunPass, StartedAt: time.Now()}

	var buf bytes.Buffer
	err := Render(&buf, doc, run, nil)
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())
}

func TestRenderPaginatesLongRuns(t *testing.T) {
	doc := types.SubmittedDocument{ID: uuid.New(), Filename: "big.pdf"}
	run := types.ComplianceRun{ID: uuid.New(), DocID: doc.ID, Status: types.RunWarning, StartedAt: time.Now()}

	var findings []types.Finding
	for i := 0; i < 80; i++ {
		findings = append(findings, types.Finding{
			UnitIndex:   i,
			Severity:    3,
			Title:       "Deviation",
			Description: strings.Repeat("A long descriptive sentence about the deviation. ", 4),
		})
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, doc, run, findings))
	assert.Greater(t, buf.Len(), 1000)
}

func TestWrap(t *testing.T) {
	lines := wrap("one two three four five", 9)
	assert.Equal(t, []string{"one two", "three", "four five"}, lines)

	assert.Nil(t, wrap("   ", 10))
	assert.Equal(t, []string{"single"}, wrap("single", 80))
}
