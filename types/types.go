package types

import (
	"time"

	"github.com/google/uuid"
)

type ChunkType string

const (
	ChunkParagraph ChunkType = "paragraph"
	ChunkTable     ChunkType = "table"
	ChunkFigure    ChunkType = "figure"
)

// ProcessingStatus is the observable state of any ingestion or
// pre-processing job.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusError      ProcessingStatus = "error"
)

// RegulatoryDocument is an authoritative source document. Immutable once
// indexed; re-ingestion replaces all of its chunks.
type RegulatoryDocument struct {
	ID         uuid.UUID
	Title      string
	Code       string // normative code extracted from the title, e.g. "DBN B.2.6-31"
	Category   string
	Status     ProcessingStatus
	ChunkCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RegulatoryChunk is one indexed unit of regulatory text. ChunkID is stable
// across re-ingestion: "{docID}_{position}".
type RegulatoryChunk struct {
	ChunkID  string
	DocID    uuid.UUID
	Position int
	Type     ChunkType
	Section  string
	Page     int
	Content  string
	Metadata map[string]string
}

// RetrievedChunk is a regulatory chunk returned by retrieval, with its
// combined relevance score and parent document attributes attached.
type RetrievedChunk struct {
	ChunkID  string
	DocID    uuid.UUID
	DocTitle string
	Code     string
	Section  string
	Page     int
	Content  string
	Score    float64
}

// SubmittedDocument is a user project document going through compliance
// checking. ContentHash enforces dedup: no two documents with identical
// bytes may coexist in processing/completed state.
type SubmittedDocument struct {
	ID          uuid.UUID
	Filename    string
	SizeBytes   int64
	ContentHash string
	Status      ProcessingStatus
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentUnit is one page or logical section of a submitted document,
// produced by pre-processing and consumed read-only by the pipeline.
type DocumentUnit struct {
	ID       uuid.UUID
	DocID    uuid.UUID
	Position int
	Content  string
}

type FindingCategory string

const (
	CategoryFormat     FindingCategory = "format"
	CategoryContent    FindingCategory = "content"
	CategoryCompliance FindingCategory = "compliance"
	CategoryTechnical  FindingCategory = "technical"
)

// Finding is one discrete compliance observation. Severity is ordinal 1-5;
// levels 4-5 roll up as critical, 3 as warning, 1-2 as info.
type Finding struct {
	ID             uuid.UUID
	RunID          uuid.UUID
	UnitIndex      int
	Severity       int
	Category       FindingCategory
	Title          string
	Description    string
	Recommendation string
	Reference      string // regulatory reference the unit was checked against, may be empty
	Confidence     float64
}

// SeverityBucket maps an ordinal severity level to its rollup bucket.
func SeverityBucket(level int) string {
	switch {
	case level >= 4:
		return "critical"
	case level == 3:
		return "warning"
	default:
		return "info"
	}
}

type UnitStatus string

const (
	UnitPass    UnitStatus = "pass"
	UnitWarning UnitStatus = "warning"
	UnitFail    UnitStatus = "fail"
	// UnitError marks infrastructure failure (model unreachable, timeout),
	// counted separately from a fail verdict.
	UnitError UnitStatus = "error"
)

// UnitResult is the outcome of analyzing one document unit.
type UnitResult struct {
	UnitIndex int
	Status    UnitStatus
	Critical  int
	Warning   int
	Info      int
	Findings  []Finding
}

type RunStatus string

const (
	RunPass    RunStatus = "pass"
	RunWarning RunStatus = "warning"
	RunFail    RunStatus = "fail"
	// RunFailed means the pipeline itself could not execute; distinct from
	// any findings-based verdict.
	RunFailed RunStatus = "run_failed"
)

// ComplianceRun aggregates all unit results of one pipeline execution over
// a submitted document. Invariants: Total == Critical+Warning+Info, and
// Status is fail iff Critical > 0, else warning iff Warning > 0, else pass.
type ComplianceRun struct {
	ID            uuid.UUID
	DocID         uuid.UUID
	Status        RunStatus
	Total         int
	Critical      int
	Warning       int
	Info          int
	CompliancePct float64
	TotalUnits    int
	ErrorUnits    int
	Units         []UnitResult
	StartedAt     time.Time
	FinishedAt    time.Time
}
