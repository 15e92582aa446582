package pipeline

import (
	"sort"
	"time"

	"regcheck/types"

	"github.com/google/uuid"
)

// Aggregate rolls per-unit results up into a document-level run. The sums
// are order-independent; units are re-sorted by index only so reports read
// in document order.
func Aggregate(docID uuid.UUID, units []types.UnitResult, started, finished time.Time) *types.ComplianceRun {
	run := &types.ComplianceRun{
		ID:         uuid.New(),
		DocID:      docID,
		TotalUnits: len(units),
		StartedAt:  started,
		FinishedAt: finished,
	}

	ordered := make([]types.UnitResult, len(units))
	copy(ordered, units)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].UnitIndex < ordered[j].UnitIndex
	})
	run.Units = ordered

	successful := 0
	for _, u := range ordered {
		run.Critical += u.Critical
		run.Warning += u.Warning
		run.Info += u.Info
		if u.Status == types.UnitError {
			run.ErrorUnits++
		} else {
			successful++
		}
	}
	run.Total = run.Critical + run.Warning + run.Info

	if run.TotalUnits > 0 {
		run.CompliancePct = float64(successful) / float64(run.TotalUnits) * 100
	}

	switch {
	case run.Critical > 0:
		run.Status = types.RunFail
	case run.Warning > 0:
		run.Status = types.RunWarning
	default:
		run.Status = types.RunPass
	}
	return run
}
