package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"virsift/pkg/domain"
)

// Lifespan classifies a first-to-last collection span.
type Lifespan string

const (
	LifespanMicro    Lifespan = "micro"
	LifespanSeasonal Lifespan = "seasonal"
	LifespanEndemic  Lifespan = "endemic"
)

// Lifespan thresholds in days.
const (
	microMaxDays    = 90
	seasonalMaxDays = 270
)

// ClassifyLifespan maps a first-to-last span in days to a category.
func ClassifyLifespan(days int) Lifespan {
	switch {
	case days < microMaxDays:
		return LifespanMicro
	case days <= seasonalMaxDays:
		return LifespanSeasonal
	}
	return LifespanEndemic
}

// Period returns the sampling resolution for the category.
func (l Lifespan) Period() FieldKey {
	switch l {
	case LifespanMicro:
		return domain.FieldWeek
	case LifespanSeasonal:
		return domain.FieldMonth
	}
	return domain.FieldQuarter
}

// DatasetLifespan classifies the span between the earliest and latest dated
// records of in. A dataset without dates is treated as seasonal.
func DatasetLifespan(in Dataset) (Lifespan, int) {
	var first, last Date
	for _, r := range in.Records() {
		d := r.Fields.Date
		if d.IsZero() {
			continue
		}
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if last.Before(d) {
			last = d
		}
	}
	if first.IsZero() {
		return LifespanSeasonal, 0
	}
	days := first.DaysUntil(last)
	return ClassifyLifespan(days), days
}

// AdaptiveSampler classifies the working set's lifespan once and keeps the
// earliest record per clone and period (week, month or quarter). Endemic
// sets are sampled at wave crests and troughs when at least two waves are
// detected. Undated records are dropped.
type AdaptiveSampler struct {
	QualifyBySubtype bool
	Workers          int
	Waves            WaveOptions
}

func (AdaptiveSampler) Name() string { return "adaptive_sampling" }

func (a AdaptiveSampler) Parameters() map[string]any {
	opts, _ := a.Waves.normalized()
	return map[string]any{
		"qualify_by_subtype": a.QualifyBySubtype,
		"wave_sensitivity":   opts.Sensitivity,
		"min_peak_height":    opts.MinPeakHeight,
	}
}

func (a AdaptiveSampler) Apply(_ context.Context, in Dataset) (Outcome, error) {
	category, days := DatasetLifespan(in)
	notes := []string{fmt.Sprintf("%s dataset (%d days)", category, days)}

	if category == LifespanEndemic {
		report := DetectWaves(in, a.Waves)
		notes = append(notes, report.Notes...)
		if report.WaveCount() >= 2 {
			kept := waveRepresentatives(in, report, cloneKeys(in, a.QualifyBySubtype, a.Workers))
			notes = append(notes, fmt.Sprintf("sampled at %d waves and %d troughs", report.WaveCount(), len(report.Troughs)))
			return Outcome{Dataset: in.Select(kept), Notes: notes}, nil
		}
	}

	spec := GroupSpec{
		GroupBy:     []FieldKey{domain.FieldSequenceHash, category.Period()},
		SortBy:      domain.FieldDate,
		Keep:        KeepFirst,
		RequireDate: true,
	}
	if a.QualifyBySubtype {
		spec.GroupBy = append(spec.GroupBy, domain.FieldSubtype)
	}
	notes = append(notes, fmt.Sprintf("sampled per %s", category.Period()))
	return Outcome{Dataset: in.Select(spec.retain(in, nil)), Notes: notes}, nil
}

// CheckpointSampler keeps dated records within ToleranceDays of any
// checkpoint date, and for every checkpoint month the earliest record of
// that month. When months are given the earliest and latest dated records
// of the working set are always kept.
type CheckpointSampler struct {
	Checkpoints   []Date
	ToleranceDays int
	Months        []Month
}

func (CheckpointSampler) Name() string { return "checkpoint_sampling" }

func (c CheckpointSampler) Parameters() map[string]any {
	dates := make([]string, len(c.Checkpoints))
	for i, d := range c.Checkpoints {
		dates[i] = d.String()
	}
	months := make([]string, len(c.Months))
	for i, m := range c.Months {
		months[i] = m.String()
	}
	return map[string]any{
		"checkpoints":    strings.Join(dates, ","),
		"tolerance_days": c.ToleranceDays,
		"months":         strings.Join(months, ","),
	}
}

func (c CheckpointSampler) Apply(_ context.Context, in Dataset) (Outcome, error) {
	var adj []Adjustment
	tol := clampMin(&adj, "tolerance_days", c.ToleranceDays, 0)
	notes := adjustmentNotes(adj)

	keep := make(map[int]bool)
	var dated []int
	for i, r := range in.Records() {
		d := r.Fields.Date
		if d.IsZero() {
			continue
		}
		dated = append(dated, i)
		for _, cp := range c.Checkpoints {
			if cp.IsZero() {
				continue
			}
			if !d.Before(cp.AddDays(-tol)) && !cp.AddDays(tol).Before(d) {
				keep[i] = true
				break
			}
		}
	}

	if len(c.Months) > 0 && len(dated) > 0 {
		sort.SliceStable(dated, func(a, b int) bool {
			return in.At(dated[a]).Fields.Date.Before(in.At(dated[b]).Fields.Date)
		})
		keep[dated[0]] = true
		keep[dated[len(dated)-1]] = true
		for _, m := range c.Months {
			found := false
			for _, pos := range dated {
				if m.Contains(in.At(pos).Fields.Date) {
					keep[pos] = true
					found = true
					break
				}
			}
			if !found {
				notes = append(notes, fmt.Sprintf("no records in checkpoint month %s", m))
			}
		}
	}

	kept := make([]int, 0, len(keep))
	for pos := range keep {
		kept = append(kept, pos)
	}
	sort.Ints(kept)
	return Outcome{Dataset: in.Select(kept), Notes: notes}, nil
}
