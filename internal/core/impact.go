package core

import (
	"fmt"
	"sort"
)

// ImpactPreview is the curated export set and its metrics.
type ImpactPreview struct {
	Curated            Dataset
	Positions          []int
	InputCount         int
	OutputCloneCount   int
	SelectedCells      int
	IgnoredCells       int
	PassThrough        int
	Fallback           int
	CompressionPercent float64
	CoveragePercent    float64
	Delta              int
	Notes              []string
}

// PreviewImpact computes the curated set for sel: the policy's member of
// each selected active cell, plus the first and last member (by date) of
// every clone below the threshold. A row whose selected cells contribute
// nothing falls back to the same pass-through, so every clone reaches the
// export. Cells that are inactive or name unknown clones are ignored.
func PreviewImpact(m TimelineMatrix, sel Selection) ImpactPreview {
	p := m.Partition
	in := p.dataset
	kept := make(map[int]struct{})
	var out ImpactPreview

	for _, cell := range sel.Cells() {
		pos, ok := m.CellRepresentative(cell)
		if !ok {
			out.IgnoredCells++
			continue
		}
		out.SelectedCells++
		kept[pos] = struct{}{}
	}

	for _, c := range m.Excluded {
		for _, pos := range p.boundaryMembers(c) {
			if _, ok := kept[pos]; !ok {
				kept[pos] = struct{}{}
				out.PassThrough++
			}
		}
	}
	for _, row := range m.Rows {
		if containsAny(kept, row.Clone.Members) {
			continue
		}
		for _, pos := range p.boundaryMembers(row.Clone) {
			kept[pos] = struct{}{}
			out.Fallback++
		}
	}

	out.Positions = make([]int, 0, len(kept))
	clones := make(map[int]struct{})
	for pos := range kept {
		out.Positions = append(out.Positions, pos)
		clones[p.CloneOf(pos)] = struct{}{}
	}
	sort.Ints(out.Positions)
	out.Curated = in.Select(out.Positions)
	out.InputCount = in.Len()
	out.OutputCloneCount = len(clones)
	out.CompressionPercent = CompressionPercent(in.Len(), out.Curated.Len())
	out.CoveragePercent = CoveragePercent(in, out.Curated)
	out.Delta = out.Curated.Len() - in.Len()

	if out.IgnoredCells > 0 {
		out.Notes = append(out.Notes, fmt.Sprintf("%d selected cells have no members and were ignored", out.IgnoredCells))
	}
	if out.Fallback > 0 {
		out.Notes = append(out.Notes, fmt.Sprintf("%d records passed through for rows without selected members", out.Fallback))
	}
	if out.Delta > 0 {
		out.Notes = append(out.Notes, fmt.Sprintf("curated set is %d records larger than the input", out.Delta))
	}
	return out
}

func containsAny(set map[int]struct{}, positions []int) bool {
	for _, pos := range positions {
		if _, ok := set[pos]; ok {
			return true
		}
	}
	return false
}

// CompressionPercent is 100 x (1 - curated/original), clamped to [0,100].
// An empty original compresses by zero.
func CompressionPercent(original, curated int) float64 {
	if original <= 0 {
		return 0
	}
	v := 100 * (1 - float64(curated)/float64(original))
	return min(max(v, 0), 100)
}

// CoveragePercent is the share of original's dated months still present in
// curated. It is zero when original has no dated months.
func CoveragePercent(original, curated Dataset) float64 {
	want := original.Months()
	if len(want) == 0 {
		return 0
	}
	have := 0
	for month := range curated.Months() {
		if _, ok := want[month]; ok {
			have++
		}
	}
	return min(100*float64(have)/float64(len(want)), 100)
}
