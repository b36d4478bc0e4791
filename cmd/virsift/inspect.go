package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"virsift/internal/core"
	"virsift/pkg/domain"
)

type inspectReport struct {
	Parse       domain.ParseReport      `json:"parse"`
	Coverage    []core.FieldStat        `json:"field_coverage"`
	Diagnostics core.DatasetDiagnostics `json:"diagnostics"`
	Clades      []core.CladeCount       `json:"clades"`
	Lifespan    core.Lifespan           `json:"lifespan"`
	SpanDays    int                     `json:"span_days"`
	Waves       core.WaveReport         `json:"waves"`
}

func newInspectCmd(a *app) *cobra.Command {
	var (
		asJSON  bool
		qualify bool
		waves   core.WaveOptions
	)
	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Parse FASTA files and report header quality, field coverage and redundancy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := a.readInputs(cmd.Context(), args)
			if err != nil {
				return err
			}
			ds := domain.NewDataset(batch.Records)
			p := core.Cluster(ds, core.ClusterOptions{QualifyBySubtype: qualify, Workers: a.cfg.Workers})
			report := inspectReport{
				Parse:       batch.Report,
				Coverage:    core.FieldCoverage(ds),
				Diagnostics: core.Diagnostics(p),
				Clades:      core.CladeInventory(ds),
				Waves:       core.DetectWaves(ds, waves),
			}
			report.Lifespan, report.SpanDays = core.DatasetLifespan(ds)
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			a.printInspect(report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&qualify, "qualify-by-subtype", false, "treat identical sequences of different subtypes as separate clones")
	cmd.Flags().Float64Var(&waves.Sensitivity, "sensitivity", core.DefaultWaveSensitivity, "wave peak prominence as a fraction of the median week")
	cmd.Flags().IntVar(&waves.MinPeakHeight, "min-peak-height", core.DefaultMinPeakHeight, "smallest weekly count that can be a wave peak")
	return cmd
}

func (a *app) printInspect(r inspectReport) {
	heading.Fprintln(a.out, "Records")
	fmt.Fprintf(a.out, "  parsed:   %s\n", humanize.Comma(int64(r.Parse.Records)))
	if r.Parse.Degraded > 0 {
		warn.Fprintf(a.out, "  degraded: %s\n", humanize.Comma(int64(r.Parse.Degraded)))
		keys := make([]string, 0, len(r.Parse.Issues))
		for k := range r.Parse.Issues {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(a.out, "    %-28s %s\n", k, humanize.Comma(int64(r.Parse.Issues[k])))
		}
	}

	heading.Fprintln(a.out, "Field coverage")
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, s := range r.Coverage {
		mark := good.Sprint("available")
		if !s.Available {
			mark = warn.Sprint("sparse")
		}
		fmt.Fprintf(tw, "  %s\t%s\t%.1f%%\t%s\n", s.Field, humanize.Comma(int64(s.Populated)), s.Fraction*100, mark)
	}
	tw.Flush()

	d := r.Diagnostics
	heading.Fprintln(a.out, "Redundancy")
	fmt.Fprintf(a.out, "  unique clones:      %s\n", humanize.Comma(int64(d.UniqueClones)))
	fmt.Fprintf(a.out, "  in shared clones:   %s\n", humanize.Comma(int64(d.InMultiMember)))
	fmt.Fprintf(a.out, "  largest clone:      %s\n", humanize.Comma(int64(d.LargestClone)))
	fmt.Fprintf(a.out, "  distinct accession: %s\n", humanize.Comma(int64(d.DistinctAccession)))
	if d.Earliest.IsZero() {
		warn.Fprintln(a.out, "  no dated records")
	} else {
		fmt.Fprintf(a.out, "  dates:              %s .. %s (%d months)\n", d.Earliest, d.Latest, d.DistinctMonths)
	}
	if d.Undated > 0 {
		warn.Fprintf(a.out, "  undated:            %s\n", humanize.Comma(int64(d.Undated)))
	}

	if len(r.Clades) > 0 {
		heading.Fprintln(a.out, "Clades")
		for _, c := range r.Clades {
			fmt.Fprintf(a.out, "  %-16s %s\n", c.Clade, humanize.Comma(int64(c.Count)))
		}
	}

	a.printWaves(r)
}

func (a *app) printWaves(r inspectReport) {
	heading.Fprintln(a.out, "Epidemic curve")
	fmt.Fprintf(a.out, "  lifespan: %s (%d days)\n", r.Lifespan, r.SpanDays)
	w := r.Waves
	fmt.Fprintf(a.out, "  waves:    %d over %d weeks\n", w.WaveCount(), len(w.Weeks))
	for _, p := range w.Peaks {
		fmt.Fprintf(a.out, "    peak   %s  %s records (rank %d)\n", p.Week, humanize.Comma(int64(p.Count)), p.Rank)
	}
	for _, p := range w.Troughs {
		fmt.Fprintf(a.out, "    trough %s  %s records\n", p.Week, humanize.Comma(int64(p.Count)))
	}
	for _, m := range w.OffSeason {
		warn.Fprintf(a.out, "    off-season %s  %s records\n", m.Month, humanize.Comma(int64(m.Count)))
	}
	for _, n := range w.Notes {
		warn.Fprintf(a.out, "  note: %s\n", n)
	}
}
