package model

import (
	"errors"
	"testing"

	"regcheck/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFindingsCleanJSON(t *testing.T) {
	raw := `{"findings": [
		{"severity": 4, "category": "compliance", "title": "Wall too thin",
		 "description": "150mm is below the 200mm minimum",
		 "recommendation": "Increase thickness to 200mm",
		 "reference": "DBN B.2.6-31 4.2", "confidence": 0.9}
	]}`

	findings, err := ParseFindings(raw)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 4, findings[0].Severity)
	assert.Equal(t, "Wall too thin", findings[0].Title)
	assert.Equal(t, "DBN B.2.6-31 4.2", findings[0].Reference)
	assert.InDelta(t, 0.9, findings[0].Confidence, 1e-9)
}

func TestParseFindingsMarkdownFence(t *testing.T) {
	raw := "Here is my analysis:\n```json\n{\"findings\": [{\"severity\": 3, \"category\": \"format\", \"title\": \"Missing section header\"}]}\n```\nDone."

	findings, err := ParseFindings(raw)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 3, findings[0].Severity)
}

func TestParseFindingsBareArray(t *testing.T) {
	raw := `[{"severity": 2, "title": "Minor note"}, {"severity": 5, "title": "Severe breach"}]`

	findings, err := ParseFindings(raw)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, 5, findings[1].Severity)
}

func TestParseFindingsBareArrayWithProse(t *testing.T) {
	raw := "Here is what I found:\n" +
		`[{"severity": 4, "title": "Slab depth", "details": {"measured": "120mm"}}, {"severity": 3, "title": "Label font"}]`

	findings, err := ParseFindings(raw)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "Slab depth", findings[0].Title)
	assert.Equal(t, 3, findings[1].Severity)
}

func TestParseFindingsTrailingComma(t *testing.T) {
	raw := `{"findings": [{"severity": 3, "title": "Issue",},]}`

	findings, err := ParseFindings(raw)
	require.NoError(t, err)
	require.Len(t, findings, 1)
}

func TestParseFindingsLooseTyping(t *testing.T) {
	raw := `{"findings": [{"severity": "4", "level": 9, "type": "compliance", "issue": "Bad slab", "confidence": "0.7"}]}`

	findings, err := ParseFindings(raw)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 4, findings[0].Severity)
	assert.Equal(t, "Bad slab", findings[0].Title)
	assert.InDelta(t, 0.7, findings[0].Confidence, 1e-9)
}

func TestParseFindingsSeverityClamped(t *testing.T) {
	raw := `[{"severity": 9, "title": "Over the scale"}]`

	findings, err := ParseFindings(raw)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 5, findings[0].Severity)
}

func TestParseFindingsEmptyFindings(t *testing.T) {
	findings, err := ParseFindings(`{"findings": []}`)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestParseFindingsCompliantText(t *testing.T) {
	findings, err := ParseFindings("The document is fully compliant. No violations were identified.")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestParseFindingsSalvageBrokenJSON(t *testing.T) {
	// Outer array is truncated; the individual objects are intact.
	raw := `{"findings": [{"severity": 4, "title": "First issue", "category": "compliance"}, {"severity": 2, "title": "Second issue"`

	findings, err := ParseFindings(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrMalformedModelResponse))
	require.Len(t, findings, 1)
	assert.Equal(t, "First issue", findings[0].Title)
}

func TestParseFindingsSalvagePlainText(t *testing.T) {
	raw := "Wall thickness violation\nSeverity: 4\nThe submitted 150mm is less than required.\n\nLabel formatting problem\nseverity = 2\nDrawing labels use a non-standard font."

	findings, err := ParseFindings(raw)
	require.Error(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, 4, findings[0].Severity)
	assert.Equal(t, "Wall thickness violation", findings[0].Title)
	assert.Equal(t, 2, findings[1].Severity)
}

func TestParseFindingsNeverSilentlyEmpty(t *testing.T) {
	// Unparseable and not a compliance statement: the raw answer must
	// surface as a finding rather than vanish.
	findings, err := ParseFindings("the model rambled about something unrelated entirely")
	require.Error(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "Unstructured model response", findings[0].Title)
}

func TestParseFindingsEmptyResponse(t *testing.T) {
	findings, err := ParseFindings("   ")
	assert.Error(t, err)
	assert.Empty(t, findings)
}
