package main

import (
	"fmt"
	"time"

	"github.com/oukeidos/ebt/internal/logger"
	"github.com/oukeidos/ebt/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	runRepairPipeline    = pipeline.RunRepair
	printRepairStatsFunc = printUsageStats
)

func newRepairCmd() *cobra.Command {
	opts := translateOptions{}
	cmd := &cobra.Command{
		Use:     "repair <input.epub> <output.epub>",
		Short:   "Retry documents and batches that kept their original text",
		Example: repairExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				_ = cmd.Usage()
				return fmt.Errorf("input and output files are required")
			}
			return runRepair(cmd, args, &opts)
		},
		SilenceUsage: true,
	}

	addTranslateFlags(cmd, &opts)
	return cmd
}

func runRepair(cmd *cobra.Command, args []string, opts *translateOptions) error {
	if err := validateEPUBPathExtensions(args[0], args[1]); err != nil {
		return err
	}
	cfg, err := buildConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := initLogging(opts.debug, opts.logFilePath); err != nil {
		return err
	}
	startTime := time.Now()

	actualKey, source, err := resolveAPIKey(cfg.Provider, opts.allowEnv, opts.envOnly)
	if err != nil {
		return err
	}
	logger.Info("Using API Key", "service", cfg.Provider, "source", source)

	cfg.InputPath = args[0]
	cfg.OutputPath = args[1]
	cfg.APIKey = actualKey
	cfg.OnProgress = logProgress

	ctx, stop := signalContext()
	defer stop()
	result, err := runRepairPipeline(ctx, cfg)

	if shouldPrintRepairStats(result) {
		printRepairStatsFunc(cmd.OutOrStdout(), result.Usage, time.Since(startTime), cfg.Provider, cfg.Model)
	}
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("Repair canceled", "error", err)
			return nil
		}
		return err
	}
	if len(result.Reset) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Retried %d document(s).\n", len(result.Reset))
	}
	return translationStatusError(result.TranslationResult)
}

func shouldPrintRepairStats(result pipeline.RepairResult) bool {
	return len(result.Reset) > 0 || result.Usage.TotalTokenCount > 0
}
