package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"virsift/internal/core"
	"virsift/pkg/domain"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, inspect, reset or delete persisted curation sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(a),
		newSessionsShowCmd(a),
		newSessionsResetCmd(a),
		newSessionsDeleteCmd(a),
	)
	return cmd
}

func newSessionsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			sessions, err := svc.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(a.out, "no sessions")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tORIGINAL\tCURRENT\tACTIONS\tUPDATED")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", s.ID, s.Name,
					humanize.Comma(int64(s.Original)), humanize.Comma(int64(s.Current)),
					s.Actions, humanize.Time(s.UpdatedAt))
			}
			return tw.Flush()
		},
	}
}

type sessionView struct {
	domain.SessionSummary
	Sources []string      `json:"sources,omitempty"`
	History []core.Action `json:"history"`
}

func newSessionsShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a session and its action history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			sess, err := svc.Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			snap := sess.Snapshot()
			view := sessionView{SessionSummary: snap.Summary(), Sources: snap.Sources, History: sess.History()}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			heading.Fprintf(a.out, "%s (%s)\n", view.Name, view.ID)
			for _, src := range view.Sources {
				fmt.Fprintf(a.out, "  source: %s\n", src)
			}
			fmt.Fprintf(a.out, "  records: %s current of %s original\n",
				humanize.Comma(int64(view.Current)), humanize.Comma(int64(view.Original)))
			fmt.Fprintf(a.out, "  updated: %s\n", view.UpdatedAt.Format(time.RFC3339))
			if len(view.History) == 0 {
				return nil
			}
			heading.Fprintln(a.out, "History")
			a.printActions(view.History)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")
	return cmd
}

func newSessionsResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset ID",
		Short: "Restore a session's current set to the original records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			act, err := svc.Reset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "reset %s: %s -> %s records\n", args[0],
				humanize.Comma(int64(act.Before)), humanize.Comma(int64(act.After)))
			return nil
		},
	}
}

func newSessionsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s\n", args[0])
			return nil
		},
	}
}
