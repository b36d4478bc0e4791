package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"virsift/internal/core"
	"virsift/internal/fasta"
	"virsift/pkg/domain"
)

type curateOptions struct {
	session string
	name    string
	steps   []string
	out     string

	minLength int
	maxNRun   int
	dedupMode string

	groupBy string
	sortBy  string
	keep    string

	accessions  string
	rules       []string
	subtypes    []string
	clades      []string
	cladeLevel  int
	independent bool
	qualify     bool

	checkpoints   []string
	toleranceDays int

	sensitivity   float64
	minPeakHeight int
}

func newCurateCmd(a *app) *cobra.Command {
	var o curateOptions
	cmd := &cobra.Command{
		Use:   "curate [FILE...]",
		Short: "Apply filters and samplers in order and write the curated FASTA",
		Long: `curate ingests FILES into a new session (or reuses --session) and applies
the --steps in the order given. Steps: quality, dedup, group, accessions,
rules, subtype, clade, clade-monthly, adaptive, waves, checkpoint.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && o.session == "" {
				return fmt.Errorf("curate needs input files or --session")
			}
			if !cmd.Flags().Changed("min-length") {
				o.minLength = a.cfg.Quality.MinLength
			}
			if !cmd.Flags().Changed("max-n-run") {
				o.maxNRun = a.cfg.Quality.MaxNRun
			}
			ops, err := o.operations(a.cfg.Workers)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, id, err := a.resolveSession(ctx, o.session, o.name, args)
			if err != nil {
				return err
			}
			res, err := svc.Apply(ctx, id, ops...)
			if err != nil {
				return err
			}
			a.printActions(res.Actions)
			sess, err := svc.Session(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "current: %s of %s records\n",
				humanize.Comma(int64(sess.Current().Len())), humanize.Comma(int64(sess.Original().Len())))
			if o.out == "" {
				return nil
			}
			if err := a.writeFASTA(o.out, sess.Current().Records()); err != nil {
				return err
			}
			if o.out != fasta.Stdin {
				good.Fprintf(a.errOut, "wrote %s\n", o.out)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.session, "session", "", "apply to an existing session instead of ingesting files")
	f.StringVar(&o.name, "name", "", "name for the new session (default: first input file)")
	f.StringSliceVar(&o.steps, "steps", []string{"quality", "dedup"}, "operations to apply, in order")
	f.StringVarP(&o.out, "out", "o", "", `write the curated FASTA here ("-" for stdout)`)
	f.IntVar(&o.minLength, "min-length", 0, "quality: minimum sequence length")
	f.IntVar(&o.maxNRun, "max-n-run", 0, "quality: longest allowed run of N")
	f.StringVar(&o.dedupMode, "dedup-mode", string(core.DedupBasic), "dedup: basic|advanced")
	f.StringVar(&o.groupBy, "group-by", "", "group: comma-separated field keys")
	f.StringVar(&o.sortBy, "sort-by", "", "group: field key ordering each group")
	f.StringVar(&o.keep, "keep", string(core.KeepFirst), "group, clade-monthly: first|last|both|all")
	f.StringVar(&o.accessions, "accessions", "", "accessions: file of identifiers to keep")
	f.StringArrayVar(&o.rules, "rule", nil, "rules: field:operator:value, repeatable")
	f.StringSliceVar(&o.subtypes, "subtypes", nil, "subtype: HxNy values to keep")
	f.StringSliceVar(&o.clades, "clades", nil, "clade, clade-monthly: clades to keep")
	f.IntVar(&o.cladeLevel, "clade-level", 0, "clade: compare at this hierarchy level (0 includes sub-clades)")
	f.BoolVar(&o.independent, "independent", false, "clade-monthly: sample each clade on its own")
	f.BoolVar(&o.qualify, "qualify-by-subtype", false, "adaptive: key clones on sequence and subtype")
	f.Float64Var(&o.sensitivity, "sensitivity", core.DefaultWaveSensitivity, "adaptive, waves: peak prominence as a fraction of the median week")
	f.IntVar(&o.minPeakHeight, "min-peak-height", core.DefaultMinPeakHeight, "adaptive, waves: smallest weekly count that can be a peak")
	f.StringSliceVar(&o.checkpoints, "checkpoints", nil, "checkpoint: YYYY-MM-DD dates (window) or YYYY-MM months (first record of the month)")
	f.IntVar(&o.toleranceDays, "tolerance-days", 15, "checkpoint: days either side of a checkpoint")
	return cmd
}

// operations builds the pipeline named by steps.
func (o curateOptions) operations(workers int) ([]core.Operation, error) {
	var ops []core.Operation
	for _, step := range o.steps {
		step = strings.ToLower(strings.TrimSpace(step))
		if step == "" {
			continue
		}
		op, err := o.operation(step, workers)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step, err)
		}
		ops = append(ops, op)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("no steps given")
	}
	return ops, nil
}

func (o curateOptions) operation(step string, workers int) (core.Operation, error) {
	switch step {
	case "quality":
		return core.NewQualityFilter(o.minLength, o.maxNRun), nil
	case "dedup":
		mode, err := core.ParseDedupMode(o.dedupMode)
		if err != nil {
			return nil, err
		}
		return core.Deduplicator{Mode: mode, Workers: workers}, nil
	case "group":
		spec, err := core.ParseGroupSpec(o.groupBy, o.sortBy, o.keep)
		if err != nil {
			return nil, err
		}
		return spec, nil
	case "accessions":
		if o.accessions == "" {
			return nil, fmt.Errorf("--accessions is required")
		}
		set, err := readAccessionFile(o.accessions)
		if err != nil {
			return nil, err
		}
		return core.AccessionFilter{Set: set}, nil
	case "rules":
		if len(o.rules) == 0 {
			return nil, fmt.Errorf("at least one --rule is required")
		}
		rules := make([]core.HeaderRule, 0, len(o.rules))
		for _, s := range o.rules {
			r, err := core.ParseHeaderRule(s)
			if err != nil {
				return nil, err
			}
			rules = append(rules, r)
		}
		filter, err := core.NewHeaderRuleFilter(rules...)
		if err != nil {
			return nil, err
		}
		return filter, nil
	case "subtype":
		if len(o.subtypes) == 0 {
			return nil, fmt.Errorf("--subtypes is required")
		}
		return core.SubtypeFilter{Subtypes: o.subtypes}, nil
	case "clade":
		if len(o.clades) == 0 {
			return nil, fmt.Errorf("--clades is required")
		}
		return core.CladeFilter{Clades: o.clades, Level: o.cladeLevel}, nil
	case "clade-monthly":
		keep, err := core.ParseKeepPolicy(o.keep)
		if err != nil {
			return nil, err
		}
		return core.CladeMonthly{Clades: o.clades, Keep: keep, Independent: o.independent}, nil
	case "adaptive":
		return core.AdaptiveSampler{QualifyBySubtype: o.qualify, Workers: workers, Waves: o.waveOptions()}, nil
	case "waves":
		return core.WaveSampler{Options: o.waveOptions(), QualifyBySubtype: o.qualify, Workers: workers}, nil
	case "checkpoint":
		if len(o.checkpoints) == 0 {
			return nil, fmt.Errorf("--checkpoints is required")
		}
		op := core.CheckpointSampler{ToleranceDays: o.toleranceDays}
		for _, s := range o.checkpoints {
			s = strings.TrimSpace(s)
			if d, ok := domain.ParseDate(s); ok {
				op.Checkpoints = append(op.Checkpoints, d)
				continue
			}
			m, err := domain.ParseMonth(s)
			if err != nil {
				return nil, fmt.Errorf("invalid checkpoint %q: want YYYY-MM-DD or YYYY-MM", s)
			}
			op.Months = append(op.Months, m)
		}
		return op, nil
	}
	return nil, fmt.Errorf("unknown step")
}

func (o curateOptions) waveOptions() core.WaveOptions {
	return core.WaveOptions{Sensitivity: o.sensitivity, MinPeakHeight: o.minPeakHeight}
}

// writeFASTA writes records to path, or to the command output for "-".
func (a *app) writeFASTA(path string, records []domain.Record) error {
	if path == fasta.Stdin {
		return fasta.Write(a.out, records)
	}
	return fasta.WriteFile(path, records)
}

func readAccessionFile(path string) (core.AccessionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.AccessionSet{}, err
	}
	defer f.Close()
	return core.ReadAccessions(f)
}

// resolveSession ingests args into a new session, or opens an existing one.
func (a *app) resolveSession(ctx context.Context, id, name string, args []string) (*core.Service, string, error) {
	if id != "" {
		svc, err := a.service(ctx)
		if err != nil {
			return nil, "", err
		}
		if _, err := svc.Session(ctx, id); err != nil {
			return nil, "", err
		}
		return svc, id, nil
	}
	if name == "" {
		name = args[0]
	}
	svc, summary, err := a.ingest(ctx, name, args)
	if err != nil {
		return nil, "", err
	}
	return svc, summary.ID, nil
}

func (a *app) printActions(actions []core.Action) {
	for _, act := range actions {
		fmt.Fprintf(a.out, "  %-20s %s -> %s\n", act.Operation,
			humanize.Comma(int64(act.Before)), humanize.Comma(int64(act.After)))
		for _, n := range act.Notes {
			warn.Fprintf(a.out, "    note: %s\n", n)
		}
	}
}
