package core

import (
	"sort"

	"github.com/maruel/natural"

	"virsift/pkg/domain"
)

// availableThreshold is the populated share at which a field counts as
// available for grouping.
const availableThreshold = 0.10

// FieldStat is the population of one header field.
type FieldStat struct {
	Field     string  `json:"field"`
	Populated int     `json:"populated"`
	Fraction  float64 `json:"fraction"`
	Available bool    `json:"available"`
}

var coverageFields = []FieldKey{
	domain.FieldName,
	domain.FieldSubtype,
	domain.FieldSegment,
	domain.FieldDate,
	domain.FieldAccession,
	domain.FieldClade,
	domain.FieldLocation,
	domain.FieldHost,
}

// FieldCoverage reports how many records carry a known value per field.
func FieldCoverage(in Dataset) []FieldStat {
	out := make([]FieldStat, len(coverageFields))
	for i, k := range coverageFields {
		stat := FieldStat{Field: k.String()}
		for j := 0; j < in.Len(); j++ {
			if v := k.Value(in.At(j)); v != Unknown && v != "" {
				stat.Populated++
			}
		}
		if in.Len() > 0 {
			stat.Fraction = float64(stat.Populated) / float64(in.Len())
		}
		stat.Available = in.Len() > 0 && stat.Fraction >= availableThreshold
		out[i] = stat
	}
	return out
}

// DatasetDiagnostics summarizes redundancy and time span.
type DatasetDiagnostics struct {
	Total             int  `json:"total"`
	UniqueClones      int  `json:"unique_clones"`
	InMultiMember     int  `json:"records_in_multi_member_clones"`
	LargestClone      int  `json:"largest_clone"`
	Undated           int  `json:"undated"`
	Earliest          Date `json:"earliest"`
	Latest            Date `json:"latest"`
	DistinctMonths    int  `json:"distinct_months"`
	DistinctAccession int  `json:"distinct_accessions"`
}

// Diagnostics computes DatasetDiagnostics over a partition.
func Diagnostics(p Partition) DatasetDiagnostics {
	in := p.dataset
	d := DatasetDiagnostics{
		Total:             in.Len(),
		UniqueClones:      p.Len(),
		DistinctMonths:    len(in.Months()),
		DistinctAccession: len(ExtractAccessions(in)),
	}
	for _, c := range p.clones {
		if c.Size() > 1 {
			d.InMultiMember += c.Size()
		}
		d.LargestClone = max(d.LargestClone, c.Size())
		if c.FirstDate.IsZero() {
			continue
		}
		if d.Earliest.IsZero() || c.FirstDate.Before(d.Earliest) {
			d.Earliest = c.FirstDate
		}
		if d.Latest.IsZero() || d.Latest.Before(c.LastDate) {
			d.Latest = c.LastDate
		}
	}
	for i := 0; i < in.Len(); i++ {
		if in.At(i).Fields.Date.IsZero() {
			d.Undated++
		}
	}
	return d
}

// CladeCount is one clade and its record count.
type CladeCount struct {
	Clade string `json:"clade"`
	Count int    `json:"count"`
}

// CladeInventory lists the known clades of in in natural order
// (2.3.4.4b before 2.3.4.10).
func CladeInventory(in Dataset) []CladeCount {
	counts := make(map[string]int)
	for i := 0; i < in.Len(); i++ {
		if c := in.At(i).Fields.Clade; c != Unknown && c != "" {
			counts[c]++
		}
	}
	out := make([]CladeCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, CladeCount{Clade: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return natural.Less(out[i].Clade, out[j].Clade) })
	return out
}
