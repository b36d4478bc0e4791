package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"virsift/internal/core"
	"virsift/internal/fasta"
	"virsift/pkg/domain"
)

func newAccessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accessions",
		Short: "Extract accession lists or filter FASTA files by accession",
	}
	cmd.AddCommand(newAccessionsExtractCmd(a), newAccessionsFilterCmd(a))
	return cmd
}

func newAccessionsExtractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract FILE...",
		Short: "Print the distinct accessions of the input, one per line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := a.readInputs(cmd.Context(), args)
			if err != nil {
				return err
			}
			for _, id := range core.ExtractAccessions(domain.NewDataset(batch.Records)) {
				fmt.Fprintln(a.out, id)
			}
			return nil
		},
	}
}

func newAccessionsFilterCmd(a *app) *cobra.Command {
	var ids, out string
	cmd := &cobra.Command{
		Use:   "filter FILE...",
		Short: "Keep the records whose accession is listed in --ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := readAccessionFile(ids)
			if err != nil {
				return err
			}
			batch, err := a.readInputs(cmd.Context(), args)
			if err != nil {
				return err
			}
			kept, match := core.MatchAccessions(domain.NewDataset(batch.Records), set)
			fmt.Fprintln(a.errOut, match.String())
			if n := len(match.Missing); n > 0 {
				warn.Fprintf(a.errOut, "%d requested accessions not found\n", n)
			}
			return a.writeFASTA(out, kept.Records())
		},
	}
	cmd.Flags().StringVar(&ids, "ids", "", "file of accessions (whitespace, comma or semicolon separated)")
	cmd.Flags().StringVarP(&out, "out", "o", fasta.Stdin, `output FASTA ("-" for stdout)`)
	_ = cmd.MarkFlagRequired("ids")
	return cmd
}
