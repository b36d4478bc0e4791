package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"virsift/internal/adapters/exports"
	"virsift/internal/config"
	"virsift/internal/core"
	"virsift/pkg/domain"
)

const (
	selectAnchors = "anchors"
	selectAll     = "all"
)

// timelineFlags are shared by timeline and export.
type timelineFlags struct {
	scope          string
	minClusterSize int
	representative string
	selection      string
	cells          []string
	from, to       string
	qualify        bool
}

func (t *timelineFlags) register(f *pflag.FlagSet) {
	f.StringVar(&t.scope, "scope", string(core.ScopeCurrent), "records to cluster: current|original")
	f.IntVar(&t.minClusterSize, "min-cluster-size", 0, "smallest clone that gets a matrix row (default from config)")
	f.StringVar(&t.representative, "representative", "", "highest_quality|earliest|latest (default from config)")
	f.StringVar(&t.selection, "select", selectAnchors, "cells to keep when --cells is empty: anchors|all")
	f.StringSliceVar(&t.cells, "cells", nil, "explicit CLONEID@YYYY-MM cells to keep")
	f.StringVar(&t.from, "from", "", "first month column (YYYY-MM)")
	f.StringVar(&t.to, "to", "", "last month column (YYYY-MM)")
	f.BoolVar(&t.qualify, "qualify-by-subtype", false, "key clones on sequence and subtype (default from config)")
}

// request resolves the flags against config defaults.
func (t *timelineFlags) request(f *pflag.FlagSet, cfg config.Config) (core.TimelineRequest, error) {
	scope, err := core.ParseScope(t.scope)
	if err != nil {
		return core.TimelineRequest{}, err
	}
	req := core.TimelineRequest{
		Scope:            scope,
		QualifyBySubtype: cfg.Timeline.QualifyBySubtype,
		Options: core.TimelineOptions{
			MinClusterSize: cfg.Timeline.MinClusterSize,
			Policy:         cfg.Representative(),
		},
		Cells: t.cells,
	}
	if f.Changed("qualify-by-subtype") {
		req.QualifyBySubtype = t.qualify
	}
	if f.Changed("min-cluster-size") {
		req.Options.MinClusterSize = t.minClusterSize
	}
	if t.representative != "" {
		if req.Options.Policy, err = core.ParseRepresentativePolicy(t.representative); err != nil {
			return core.TimelineRequest{}, err
		}
	}
	switch t.selection {
	case selectAnchors, "":
	case selectAll:
		req.SelectAll = len(t.cells) == 0
	default:
		return core.TimelineRequest{}, fmt.Errorf("unknown selection %q", t.selection)
	}
	if t.from != "" {
		if req.Options.From, err = domain.ParseMonth(t.from); err != nil {
			return core.TimelineRequest{}, err
		}
	}
	if t.to != "" {
		if req.Options.To, err = domain.ParseMonth(t.to); err != nil {
			return core.TimelineRequest{}, err
		}
	}
	return req, nil
}

func newTimelineCmd(a *app) *cobra.Command {
	var (
		tf          timelineFlags
		session     string
		name        string
		outDir      string
		publish     bool
		apply       bool
		persistence bool
	)
	cmd := &cobra.Command{
		Use:   "timeline [FILE...]",
		Short: "Cluster identical sequences and build the clone-by-month timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && session == "" {
				return fmt.Errorf("timeline needs input files or --session")
			}
			req, err := tf.request(cmd.Flags(), a.cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, id, err := a.resolveSession(ctx, session, name, args)
			if err != nil {
				return err
			}
			res, err := svc.Timeline(ctx, id, req)
			if err != nil {
				return err
			}
			a.printTimeline(res)
			if persistence {
				a.printPersistence(core.PersistenceReport(res.Matrix.Partition, res.Matrix.Options.MinClusterSize, res.Matrix.Options.Policy))
			}
			if outDir != "" {
				if err := writeTimelineDir(outDir, res); err != nil {
					return err
				}
				good.Fprintf(a.errOut, "wrote %s\n", outDir)
			}
			if publish {
				rec, err := a.publish(ctx, svc, exports.Input{
					SessionID: id,
					Scope:     req.Scope,
					Formats: []exports.Format{
						exports.FormatClusterCSV, exports.FormatMatrixCSV, exports.FormatFASTA,
						exports.FormatMetadataCSV, exports.FormatMethodology,
					},
					Timeline:    &req,
					RequestedBy: "cli",
				})
				if err != nil {
					return err
				}
				a.printExport(rec)
			}
			if apply {
				// Applied last so published artifacts describe the pre-apply set.
				applied, err := svc.ApplyTimeline(ctx, id, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "applied: current set is now %s records\n", humanize.Comma(int64(applied.Preview.Curated.Len())))
			}
			return nil
		},
	}
	f := cmd.Flags()
	tf.register(f)
	f.StringVar(&session, "session", "", "use an existing session instead of ingesting files")
	f.StringVar(&name, "name", "", "name for the new session (default: first input file)")
	f.StringVar(&outDir, "out-dir", "", "write clusters.csv, timeline_matrix.csv, curated.fasta, metadata.csv and methodology.json here")
	f.BoolVar(&publish, "publish", false, "publish the artifacts to the configured blob store")
	f.BoolVar(&apply, "apply", false, "replace the session's current set with the curated set")
	f.BoolVar(&persistence, "persistence", false, "print the seasonal persistence report")
	return cmd
}

func writeTimelineDir(dir string, res core.TimelineResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	curated := res.Preview.Curated
	renders := []func() (exports.Rendered, error){
		func() (exports.Rendered, error) { return exports.RenderClusterCSV("clusters.csv", res.Matrix) },
		func() (exports.Rendered, error) { return exports.RenderMatrixCSV("timeline_matrix.csv", res.Matrix) },
		func() (exports.Rendered, error) { return exports.RenderFASTA("curated.fasta", curated) },
		func() (exports.Rendered, error) { return exports.RenderMetadataCSV("metadata.csv", curated) },
		func() (exports.Rendered, error) { return exports.RenderMethodology("methodology.json", res.Methodology) },
	}
	for _, render := range renders {
		r, err := render()
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, r.Name), r.Body, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) printTimeline(res core.TimelineResult) {
	m, p := res.Matrix, res.Preview
	heading.Fprintln(a.out, "Timeline")
	fmt.Fprintf(a.out, "  clones:       %s (%d rows, %d below threshold %d)\n",
		humanize.Comma(int64(m.Partition.Len())), len(m.Rows), len(m.Excluded), m.Options.MinClusterSize)
	fmt.Fprintf(a.out, "  months:       %d\n", len(m.Months))
	fmt.Fprintf(a.out, "  cells:        %d selected of %d active\n", p.SelectedCells, m.ActiveCells())
	if p.IgnoredCells > 0 {
		warn.Fprintf(a.out, "  ignored:      %d cells\n", p.IgnoredCells)
	}
	fmt.Fprintf(a.out, "  curated:      %s of %s records\n", humanize.Comma(int64(p.Curated.Len())), humanize.Comma(int64(p.InputCount)))
	fmt.Fprintf(a.out, "  pass-through: %d (+%d fallback)\n", p.PassThrough, p.Fallback)
	fmt.Fprintf(a.out, "  compression:  %.2f%%\n", p.CompressionPercent)
	fmt.Fprintf(a.out, "  coverage:     %.2f%%\n", p.CoveragePercent)
	if p.Delta > 0 {
		warn.Fprintf(a.out, "  delta:        %+d (curated set is larger than the input)\n", p.Delta)
	} else {
		fmt.Fprintf(a.out, "  delta:        %+d\n", p.Delta)
	}
	for _, adj := range m.Adjustments {
		warn.Fprintf(a.out, "  note: %s\n", adj)
	}
	for _, n := range p.Notes {
		warn.Fprintf(a.out, "  note: %s\n", n)
	}
}

func (a *app) printPersistence(rows []core.Persistence) {
	heading.Fprintln(a.out, "Persistence")
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  CLONE\tLABEL\tSIZE\tSPAN\tMONTHS\tLIFESPAN\tOVERWINTERS")
	for _, r := range rows {
		ow := "no"
		if r.Overwinters {
			ow = good.Sprint("yes")
		}
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%s..%s\t%d\t%s\t%s\n",
			r.CloneID, r.Label, r.Size, r.FirstDate, r.LastDate, r.MonthsActive, r.Lifespan, ow)
	}
	tw.Flush()
}
