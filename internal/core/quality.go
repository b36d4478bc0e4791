package core

import (
	"context"

	"virsift/pkg/domain"
)

// QualityFilter keeps records at least MinLength long whose longest run of
// ambiguous bases does not exceed MaxNRun.
type QualityFilter struct {
	MinLength int
	MaxNRun   int

	adjustments []Adjustment
}

// NewQualityFilter clamps negative thresholds to zero.
func NewQualityFilter(minLength, maxNRun int) QualityFilter {
	var adj []Adjustment
	q := QualityFilter{
		MinLength: clampMin(&adj, "min_length", minLength, 0),
		MaxNRun:   clampMin(&adj, "max_n_run", maxNRun, 0),
	}
	q.adjustments = adj
	return q
}

func (QualityFilter) Name() string { return "quality_filter" }

// Adjustments lists clamped parameters.
func (q QualityFilter) Adjustments() []Adjustment { return append([]Adjustment(nil), q.adjustments...) }

func (q QualityFilter) Parameters() map[string]any {
	return map[string]any{"min_length": q.MinLength, "max_n_run": q.MaxNRun}
}

// Keep reports whether r passes both thresholds.
func (q QualityFilter) Keep(r Record) bool {
	return r.Length() >= max(q.MinLength, 0) && r.LongestRun(domain.AmbiguousBase) <= max(q.MaxNRun, 0)
}

func (q QualityFilter) Apply(_ context.Context, in Dataset) (Outcome, error) {
	return Outcome{Dataset: in.Filter(q.Keep), Notes: adjustmentNotes(q.adjustments)}, nil
}
