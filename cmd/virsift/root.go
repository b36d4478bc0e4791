package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"virsift/internal/config"
	"virsift/internal/core"
	"virsift/internal/fasta"
	"virsift/pkg/domain"
)

var (
	heading = color.New(color.Bold)
	warn    = color.New(color.FgYellow)
	failed  = color.New(color.FgRed)
	good    = color.New(color.FgGreen)
)

// app carries what a command needs once flags and config are resolved.
type app struct {
	out    io.Writer
	errOut io.Writer

	v       *viper.Viper
	cfgPath string
	cfg     config.Config
	logger  *slog.Logger
	prom    *core.PrometheusMetricsRecorder
	tracer  *core.JSONTraceTracer
	trace   *os.File
	store   domain.SessionStore
	svc     *core.Service
}

var globalFlags = map[string]string{
	"log.level":        "log-level",
	"log.format":       "log-format",
	"metrics.textfile": "metrics-out",
	"trace.path":       "trace-out",
	"storage.driver":   "storage-driver",
}

// run executes the CLI with args and releases resources whether or not the
// command succeeded.
func run(args []string, stdout, stderr io.Writer) error {
	a := &app{out: stdout, errOut: stderr, v: config.New()}
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.Execute()
	return errors.Join(err, a.teardown())
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "virsift",
		Short: "Curate viral FASTA collections into clone timelines and lean export sets",
		Long: `virsift parses GISAID-style FASTA files, filters and deduplicates them,
clusters identical sequences into clones and builds a clone-by-month timeline
from which a compact, reproducible curated set is exported.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup(cmd) },
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (yaml, toml or json)")
	pf.String("log-level", "info", "log level: debug|info|warn|error")
	pf.String("log-format", "text", "log format: text|json")
	pf.String("metrics-out", "", "write Prometheus metrics to this textfile on exit")
	pf.String("trace-out", "", "append JSON-lines operation spans to this file")
	pf.String("storage-driver", string(core.StorageSQLite), "session store: memory|sqlite|postgres")

	root.AddCommand(
		newInspectCmd(a),
		newCurateCmd(a),
		newTimelineCmd(a),
		newAccessionsCmd(a),
		newSessionsCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := config.BindFlags(a.v, cmd.Root().PersistentFlags(), globalFlags); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(a.errOut)
	a.prom = core.NewPrometheusMetricsRecorder()
	if cfg.Trace.Path != "" {
		f, err := os.OpenFile(cfg.Trace.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open trace output: %w", err)
		}
		a.trace = f
		a.tracer = core.NewJSONTracer(f)
	}
	return nil
}

func (a *app) teardown() error {
	var errs []error
	if a.cfg.Metrics.Textfile != "" && a.prom != nil {
		errs = append(errs, a.prom.WriteTextfile(a.cfg.Metrics.Textfile))
		a.prom = nil
	}
	if a.trace != nil {
		errs = append(errs, a.trace.Close())
		a.trace = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	return errors.Join(errs...)
}

// service opens the session store on first use.
func (a *app) service(ctx context.Context) (*core.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	store, err := core.OpenSessionStore(ctx, a.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	a.store = store
	opts := []core.ServiceOption{
		core.WithLogger(a.logger),
		core.WithAuditRecorder(slogAudit{logger: a.logger}),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{a.prom, core.NewExpvarMetricsRecorder("")}),
		core.WithWorkers(a.cfg.Workers),
		core.WithPartitionCache(a.cfg.Cache.Partitions),
	}
	if a.tracer != nil {
		opts = append(opts, core.WithTracer(a.tracer))
	}
	a.svc = core.NewService(store, opts...)
	return a.svc, nil
}

// readInputs parses FASTA sources, reporting unreadable files without
// aborting the others.
func (a *app) readInputs(ctx context.Context, paths []string) (fasta.Batch, error) {
	hosts, err := a.cfg.HostTable()
	if err != nil {
		return fasta.Batch{}, err
	}
	batch, err := fasta.NewReader(domain.NewHeaderParser(hosts)).ReadFiles(ctx, paths)
	if err != nil {
		return batch, err
	}
	for _, f := range batch.Failed() {
		failed.Fprintf(a.errOut, "skipped %s: %v\n", f.Path, f.Err)
		a.logger.Warn("input skipped", "path", f.Path, "error", f.Err)
	}
	if len(batch.Failed()) == len(paths) && len(paths) > 0 {
		return batch, errors.New("no readable input files")
	}
	return batch, nil
}

// ingest reads paths into a new session.
func (a *app) ingest(ctx context.Context, name string, paths []string) (*core.Service, domain.SessionSummary, error) {
	batch, err := a.readInputs(ctx, paths)
	if err != nil {
		return nil, domain.SessionSummary{}, err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return nil, domain.SessionSummary{}, err
	}
	summary, err := svc.CreateSession(ctx, name, batch.Paths(), batch.Records)
	if err != nil {
		return nil, domain.SessionSummary{}, err
	}
	fmt.Fprintf(a.out, "session: %s (%s)\n", summary.ID, summary.Name)
	return svc, summary, nil
}
