package core

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Wave detection defaults.
const (
	DefaultWaveSensitivity = 0.5
	DefaultMinPeakHeight   = 5

	minWaveSensitivity = 0.1
	maxWaveSensitivity = 1.0
	peakDistance       = 2
	minWeeksForWaves   = 3
	minMonthsOffSeason = 4
)

// WaveOptions tunes peak detection on the weekly epidemic curve. The zero
// value selects the defaults.
type WaveOptions struct {
	// Sensitivity scales the median non-empty week into the minimum peak
	// prominence. Higher values keep fewer, larger peaks.
	Sensitivity   float64
	MinPeakHeight int
}

func (o WaveOptions) normalized() (WaveOptions, []string) {
	if o == (WaveOptions{}) {
		return WaveOptions{Sensitivity: DefaultWaveSensitivity, MinPeakHeight: DefaultMinPeakHeight}, nil
	}
	var notes []string
	if s := min(max(o.Sensitivity, minWaveSensitivity), maxWaveSensitivity); s != o.Sensitivity {
		notes = append(notes, fmt.Sprintf("sensitivity clamped from %g to %g", o.Sensitivity, s))
		o.Sensitivity = s
	}
	var adj []Adjustment
	o.MinPeakHeight = clampMin(&adj, "min_peak_height", o.MinPeakHeight, 0)
	return o, append(notes, adjustmentNotes(adj)...)
}

// WeekCount is the number of dated records collected in one ISO week.
type WeekCount struct {
	Start Date   `json:"start"`
	Week  string `json:"week"`
	Count int    `json:"count"`
}

// WavePoint is a peak or trough of the weekly curve. Rank orders peaks by
// count, largest first; troughs carry no rank.
type WavePoint struct {
	WeekCount
	Rank int `json:"rank,omitempty"`
}

// MonthCount is the number of dated records collected in one month.
type MonthCount struct {
	Month Month `json:"month"`
	Count int   `json:"count"`
}

// WaveReport describes the epidemic curve of a dataset.
type WaveReport struct {
	Options   WaveOptions  `json:"options"`
	Weeks     []WeekCount  `json:"weeks"`
	Peaks     []WavePoint  `json:"peaks"`
	Troughs   []WavePoint  `json:"troughs"`
	OffSeason []MonthCount `json:"off_season"`
	Notes     []string     `json:"notes,omitempty"`
}

// WaveCount is the number of detected peaks.
func (r WaveReport) WaveCount() int { return len(r.Peaks) }

// DetectWaves builds the weekly curve of in, with empty weeks counted as
// zero, and finds its peaks, the troughs between consecutive peaks and the
// off-season months.
func DetectWaves(in Dataset, opts WaveOptions) WaveReport {
	opts, notes := opts.normalized()
	report := WaveReport{Options: opts, Weeks: weeklyCounts(in), OffSeason: offSeasonMonths(in), Notes: notes}
	if len(report.Weeks) < minWeeksForWaves {
		return report
	}
	counts := make([]float64, len(report.Weeks))
	var positive []float64
	for i, w := range report.Weeks {
		counts[i] = float64(w.Count)
		if w.Count > 0 {
			positive = append(positive, counts[i])
		}
	}
	prominence := max(1, opts.Sensitivity*median(positive))
	peaks := findPeaks(counts, float64(opts.MinPeakHeight), prominence, peakDistance)

	for _, i := range peaks {
		report.Peaks = append(report.Peaks, WavePoint{WeekCount: report.Weeks[i]})
	}
	byCount := make([]int, len(report.Peaks))
	for i := range byCount {
		byCount[i] = i
	}
	sort.SliceStable(byCount, func(a, b int) bool {
		return report.Peaks[byCount[a]].Count > report.Peaks[byCount[b]].Count
	})
	for rank, i := range byCount {
		report.Peaks[i].Rank = rank + 1
	}
	for _, i := range troughsBetween(counts, peaks) {
		report.Troughs = append(report.Troughs, WavePoint{WeekCount: report.Weeks[i]})
	}
	return report
}

func weeklyCounts(in Dataset) []WeekCount {
	counts := make(map[string]int)
	var first, last Date
	for _, r := range in.Records() {
		d := r.Fields.Date
		if d.IsZero() {
			continue
		}
		w := d.WeekStart()
		counts[w.String()]++
		if first.IsZero() || w.Before(first) {
			first = w
		}
		if last.Before(w) {
			last = w
		}
	}
	if first.IsZero() {
		return nil
	}
	var out []WeekCount
	for w := first; !last.Before(w); w = w.AddDays(7) {
		out = append(out, WeekCount{Start: w, Week: w.Week(), Count: counts[w.String()]})
	}
	return out
}

// offSeasonMonths flags observed months whose count is at or below
// max(1, Q1 - 1.5*IQR) of the monthly distribution.
func offSeasonMonths(in Dataset) []MonthCount {
	counts := make(map[Month]int)
	for _, r := range in.Records() {
		if m := r.Fields.Date.Month(); !m.IsZero() {
			counts[m]++
		}
	}
	if len(counts) < minMonthsOffSeason {
		return nil
	}
	months := make([]Month, 0, len(counts))
	values := make([]float64, 0, len(counts))
	for m, n := range counts {
		months = append(months, m)
		values = append(values, float64(n))
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Index() < months[j].Index() })
	sort.Float64s(values)
	q1 := stat.Quantile(0.25, stat.LinInterp, values, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, values, nil)
	low := max(1, q1-1.5*(q3-q1))

	var out []MonthCount
	for _, m := range months {
		if n := counts[m]; n > 0 && float64(n) <= low {
			out = append(out, MonthCount{Month: m, Count: n})
		}
	}
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 1
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.LinInterp, sorted, nil)
}

// findPeaks returns the indices of local maxima of x (flat tops resolve to
// their middle sample) that reach height, are at least distance samples
// from a taller kept peak and stand at least prominence above the higher
// of their two surrounding bases.
func findPeaks(x []float64, height, prominence float64, distance int) []int {
	var peaks []int
	for i := 1; i < len(x)-1; {
		if x[i-1] >= x[i] {
			i++
			continue
		}
		ahead := i + 1
		for ahead < len(x)-1 && x[ahead] == x[i] {
			ahead++
		}
		if x[ahead] < x[i] && x[i] >= height {
			peaks = append(peaks, (i+ahead-1)/2)
		}
		i = ahead
	}

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return x[peaks[order[a]]] > x[peaks[order[b]]] })
	for _, j := range order {
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	var out []int
	for i, p := range peaks {
		if keep[i] && peakProminence(x, p) >= prominence {
			out = append(out, p)
		}
	}
	return out
}

func peakProminence(x []float64, peak int) float64 {
	leftMin := x[peak]
	for i := peak; i >= 0 && x[i] <= x[peak]; i-- {
		leftMin = min(leftMin, x[i])
	}
	rightMin := x[peak]
	for i := peak; i < len(x) && x[i] <= x[peak]; i++ {
		rightMin = min(rightMin, x[i])
	}
	return x[peak] - max(leftMin, rightMin)
}

// troughsBetween returns the lowest interior sample between each pair of
// consecutive peaks, the earliest on ties.
func troughsBetween(x []float64, peaks []int) []int {
	var out []int
	for i := 0; i+1 < len(peaks); i++ {
		start, end := peaks[i], peaks[i+1]
		if end-start < 2 {
			continue
		}
		lowest := start + 1
		for j := start + 2; j < end; j++ {
			if x[j] < x[lowest] {
				lowest = j
			}
		}
		out = append(out, lowest)
	}
	return out
}

// waveRepresentatives keeps the earliest and latest dated records and the
// first record of every peak and trough week, then drops repeated clones in
// that order. Positions are returned in dataset order.
func waveRepresentatives(in Dataset, report WaveReport, keys []string) []int {
	var dated []int
	for i, r := range in.Records() {
		if !r.Fields.Date.IsZero() {
			dated = append(dated, i)
		}
	}
	if len(dated) == 0 {
		return nil
	}
	sort.SliceStable(dated, func(a, b int) bool {
		return in.At(dated[a]).Fields.Date.Before(in.At(dated[b]).Fields.Date)
	})
	picks := []int{dated[0], dated[len(dated)-1]}

	weeks := make(map[string]bool)
	for _, p := range report.Peaks {
		weeks[p.Start.String()] = true
	}
	for _, p := range report.Troughs {
		weeks[p.Start.String()] = true
	}
	firstInWeek := make(map[string]int)
	for i, r := range in.Records() {
		w := r.Fields.Date.WeekStart().String()
		if w == "" || !weeks[w] {
			continue
		}
		if _, ok := firstInWeek[w]; !ok {
			firstInWeek[w] = i
		}
	}
	for _, w := range report.Weeks {
		if pos, ok := firstInWeek[w.Start.String()]; ok {
			picks = append(picks, pos)
		}
	}

	seen := make(map[string]bool)
	var kept []int
	for _, pos := range picks {
		if seen[keys[pos]] {
			continue
		}
		seen[keys[pos]] = true
		kept = append(kept, pos)
	}
	sort.Ints(kept)
	return kept
}

// WaveSampler keeps the wave representatives of the working set: the
// earliest and latest dated records plus the first record of each peak and
// trough week, one per clone.
type WaveSampler struct {
	Options          WaveOptions
	QualifyBySubtype bool
	Workers          int
}

func (WaveSampler) Name() string { return "wave_sampling" }

func (w WaveSampler) Parameters() map[string]any {
	opts, _ := w.Options.normalized()
	return map[string]any{
		"sensitivity":        opts.Sensitivity,
		"min_peak_height":    opts.MinPeakHeight,
		"qualify_by_subtype": w.QualifyBySubtype,
	}
}

func (w WaveSampler) Apply(_ context.Context, in Dataset) (Outcome, error) {
	report := DetectWaves(in, w.Options)
	kept := waveRepresentatives(in, report, cloneKeys(in, w.QualifyBySubtype, w.Workers))
	notes := append(report.Notes, fmt.Sprintf("%d waves, %d troughs", report.WaveCount(), len(report.Troughs)))
	return Outcome{Dataset: in.Select(kept), Notes: notes}, nil
}
