package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"virsift/internal/adapters/exports"
	"virsift/internal/blob"
	"virsift/internal/core"
	"virsift/pkg/domain"
)

// publishTimeout bounds a single CLI export run.
const publishTimeout = 5 * time.Minute

func newExportCmd(a *app) *cobra.Command {
	var (
		tf      timelineFlags
		formats []string
		splitBy string
	)
	cmd := &cobra.Command{
		Use:   "export SESSION",
		Short: "Render a session's artifacts and publish them to the blob store",
		Long: `export renders the requested formats for SESSION and stores them under
exports/<session>/<export-id>/ in the configured blob store. Formats:
fasta, metadata_csv, cluster_csv, matrix_csv, methodology_json, accessions,
split_zip, action_log_json. Timeline formats use the timeline flags; when
any is requested the fasta and metadata artifacts hold the curated set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := exports.Input{SessionID: args[0], RequestedBy: "cli"}
			needsTimeline := false
			for _, name := range formats {
				f, err := exports.ParseFormat(name)
				if err != nil {
					return err
				}
				needsTimeline = needsTimeline || f.NeedsTimeline()
				input.Formats = append(input.Formats, f)
			}
			req, err := tf.request(cmd.Flags(), a.cfg)
			if err != nil {
				return err
			}
			input.Scope = req.Scope
			if needsTimeline {
				input.Timeline = &req
			}
			if splitBy != "" {
				if input.SplitBy, err = domain.ParseFieldKey(splitBy); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			rec, err := a.publish(ctx, svc, input)
			if err != nil {
				return err
			}
			a.printExport(rec)
			return nil
		},
	}
	f := cmd.Flags()
	tf.register(f)
	f.StringSliceVar(&formats, "formats", []string{string(exports.FormatFASTA), string(exports.FormatMetadataCSV)}, "artifact formats")
	f.StringVar(&splitBy, "split-by", "", "field key for split_zip members")
	return cmd
}

// publish runs one export through a dedicated worker and waits for it.
func (a *app) publish(ctx context.Context, svc *core.Service, input exports.Input) (exports.Record, error) {
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return exports.Record{}, fmt.Errorf("open blob store: %w", err)
	}
	w := exports.NewWorker(svc, store,
		exports.WithLogger(a.logger),
		exports.WithAuditRecorder(slogAudit{logger: a.logger}),
	)
	w.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Stop(stopCtx)
	}()

	rec, err := w.Enqueue(ctx, input)
	if err != nil {
		return exports.Record{}, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	rec, err = w.Wait(waitCtx, rec.ID)
	if err != nil {
		return rec, err
	}
	if rec.Status == exports.StatusFailed {
		return rec, errors.New("export failed: " + rec.Error)
	}
	return rec, nil
}

func (a *app) printExport(rec exports.Record) {
	heading.Fprintf(a.out, "Export %s\n", rec.ID)
	for _, art := range rec.Artifacts {
		fmt.Fprintf(a.out, "  %-22s %8s  %s\n", art.Name, humanize.Bytes(uint64(art.SizeBytes)), art.Key)
		if art.URL != "" {
			fmt.Fprintf(a.out, "  %-22s %8s  %s\n", "", "", art.URL)
		}
	}
}

// slogAudit writes audit entries to the CLI logger.
type slogAudit struct {
	logger core.Logger
}

func (s slogAudit) Record(_ context.Context, e core.AuditEntry) {
	args := []any{"operation", e.Operation, "session", e.SessionID, "status", e.Status, "duration", e.Duration}
	if e.Status == core.AuditStatusError {
		s.logger.Warn("audit", append(args, "error", e.Error)...)
		return
	}
	s.logger.Debug("audit", args...)
}
