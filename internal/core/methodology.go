package core

import (
	"fmt"
	"math"
	"time"
)

// Version is the tool version tag recorded in methodology snapshots.
var Version = "Vir-Seq-Sift v2.1.0"

// DateRange is an optional inclusive month range.
type DateRange struct {
	From Month `json:"from,omitzero"`
	To   Month `json:"to,omitzero"`
}

// Methodology records everything needed to recompute a curated set from
// the clustered input.
type Methodology struct {
	ToolVersion         string    `json:"tool_version"`
	RepresentativeLogic string    `json:"representative_logic"`
	MinClusterSize      int       `json:"min_cluster_size"`
	InputSequenceCount  int       `json:"input_sequence_count"`
	OutputCloneCount    int       `json:"output_clone_count"`
	CompressionPercent  float64   `json:"compression_percent"`
	BuildTimestamp      time.Time `json:"build_timestamp"`

	QualifyBySubtype    bool      `json:"qualify_by_subtype"`
	OutputSequenceCount int       `json:"output_sequence_count"`
	CoveragePercent     float64   `json:"coverage_percent"`
	SelectedCells       []string  `json:"selected_cells"`
	DateRange           DateRange `json:"date_range"`
}

// NewMethodology snapshots a preview. Percentages are rounded to two
// decimals.
func NewMethodology(m TimelineMatrix, sel Selection, preview ImpactPreview, at time.Time) Methodology {
	return Methodology{
		ToolVersion:         Version,
		RepresentativeLogic: m.Options.Policy.Label(),
		MinClusterSize:      m.Options.MinClusterSize,
		InputSequenceCount:  preview.InputCount,
		OutputCloneCount:    preview.OutputCloneCount,
		CompressionPercent:  round2(preview.CompressionPercent),
		BuildTimestamp:      at.UTC().Truncate(time.Second),
		QualifyBySubtype:    m.Partition.Options().QualifyBySubtype,
		OutputSequenceCount: preview.Curated.Len(),
		CoveragePercent:     round2(preview.CoveragePercent),
		SelectedCells:       sel.Strings(),
		DateRange:           DateRange{From: m.Options.From, To: m.Options.To},
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// TimelineOptions returns the options the snapshot was built with.
func (m Methodology) TimelineOptions() (TimelineOptions, error) {
	policy, err := ParseRepresentativePolicy(m.RepresentativeLogic)
	if err != nil {
		return TimelineOptions{}, err
	}
	return TimelineOptions{
		MinClusterSize: m.MinClusterSize,
		Policy:         policy,
		From:           m.DateRange.From,
		To:             m.DateRange.To,
	}, nil
}

// Reproduce recomputes the curated set from the clustered input and the
// snapshot. It fails when the input size differs from the recorded count.
func Reproduce(in Dataset, m Methodology) (ImpactPreview, error) {
	if in.Len() != m.InputSequenceCount {
		return ImpactPreview{}, fmt.Errorf("reproduce: input has %d records, snapshot recorded %d", in.Len(), m.InputSequenceCount)
	}
	opts, err := m.TimelineOptions()
	if err != nil {
		return ImpactPreview{}, fmt.Errorf("reproduce: %w", err)
	}
	sel, err := ParseSelection(m.SelectedCells)
	if err != nil {
		return ImpactPreview{}, fmt.Errorf("reproduce: %w", err)
	}
	matrix := BuildTimeline(Cluster(in, ClusterOptions{QualifyBySubtype: m.QualifyBySubtype}), opts)
	return PreviewImpact(matrix, sel), nil
}
