package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/oukeidos/ebt/internal/pipeline"
	"github.com/oukeidos/ebt/internal/prompt"
	"github.com/spf13/cobra"
)

var newConfirmer = prompt.DefaultConfirmer

type progressOptions struct {
	progressPath string
	inputPath    string
	verbose      bool
	yes          bool
}

func addProgressFlags(cmd *cobra.Command, opts *progressOptions) {
	cmd.Flags().StringVar(&opts.progressPath, "progress", "", "Path to the progress file (default: derived from <output.epub>)")
	cmd.Flags().StringVar(&opts.inputPath, "input", "", "Limit to the package of this input EPUB")
}

func (o *progressOptions) config(args []string) (pipeline.Config, error) {
	cfg := pipeline.Config{ProgressPath: o.progressPath, InputPath: o.inputPath}
	if len(args) > 0 {
		cfg.OutputPath = args[0]
	}
	if cfg.ProgressPath == "" && cfg.OutputPath == "" {
		return cfg, fmt.Errorf("output file or --progress is required")
	}
	return cfg, nil
}

func newStatusCmd() *cobra.Command {
	opts := progressOptions{}
	cmd := &cobra.Command{
		Use:   "status [output.epub]",
		Short: "Show stored translation progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(args)
			if err != nil {
				return err
			}
			report, err := pipeline.Status(cfg)
			if err != nil {
				return err
			}
			return printStatus(cmd, report, opts.verbose)
		},
		SilenceUsage: true,
	}
	addProgressFlags(cmd, &opts)
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "List every document")
	return cmd
}

func printStatus(cmd *cobra.Command, report pipeline.StatusReport, verbose bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Progress file: %s\n", report.ProgressPath)
	if len(report.Packages) == 0 {
		fmt.Fprintln(out, "No progress recorded.")
		return nil
	}
	for _, pkg := range report.Packages {
		s := pkg.Summary
		fmt.Fprintf(out, "\n%s\n", pkg.Source)
		fmt.Fprintf(out, "  documents: %d  succeeded: %d  kept original: %d  pending: %d  in progress: %d\n",
			s.Total, s.Succeeded, s.Fallback, s.Pending, s.InProgress)
		if !verbose {
			continue
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, doc := range pkg.Documents {
			detail := doc.Error
			if doc.FallbackBatches > 0 {
				detail = fmt.Sprintf("%d batch(es) kept original", doc.FallbackBatches)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", doc.Name, doc.Status, detail)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func newClearProgressCmd() *cobra.Command {
	opts := progressOptions{}
	cmd := &cobra.Command{
		Use:   "clear-progress [output.epub]",
		Short: "Delete stored translation progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(args)
			if err != nil {
				return err
			}
			target := cfg.ProgressPath
			if target == "" {
				target = "the progress of " + cfg.OutputPath
			}
			ok, err := newConfirmer().Confirm(fmt.Sprintf("Delete %s?", target), opts.yes)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing cleared.")
				return nil
			}
			n, err := pipeline.ClearProgress(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared progress for %d package(s).\n", n)
			return nil
		},
		SilenceUsage: true,
	}
	addProgressFlags(cmd, &opts)
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Clear without asking")
	return cmd
}
