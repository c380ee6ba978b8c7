package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/oukeidos/ebt/internal/logger"
	"github.com/oukeidos/ebt/internal/progress"
)

// RepairResult contains the result of a repair operation.
type RepairResult struct {
	TranslationResult
	// Reset lists the documents that were queued for another attempt.
	Reset []string
}

// RunRepair retries every document of the input package that ended with the
// original content, fully or in some batches, and rebuilds the output.
func RunRepair(ctx context.Context, cfg Config) (RepairResult, error) {
	if cfg.InputPath == "" || cfg.OutputPath == "" {
		return RepairResult{}, fmt.Errorf("input and output paths are required for repair")
	}
	absIn, err := filepath.Abs(cfg.InputPath)
	if err != nil {
		return RepairResult{}, fmt.Errorf("failed to resolve input path: %w", err)
	}
	pkgID, err := progress.HashFileHex(absIn)
	if err != nil {
		return RepairResult{}, fmt.Errorf("failed to compute input hash: %w", err)
	}

	store, err := progress.Open(progressPath(cfg))
	if err != nil {
		return RepairResult{}, fmt.Errorf("failed to open progress file: %w", err)
	}
	if !slices.Contains(store.Packages(), pkgID) {
		return RepairResult{}, fmt.Errorf("no progress recorded for %s in %s", cfg.InputPath, store.Path())
	}
	reset, err := store.ResetFallback(pkgID)
	if err != nil {
		return RepairResult{}, fmt.Errorf("failed to reset fallback documents: %w", err)
	}
	if len(reset) == 0 {
		logger.Info("Nothing to repair", "progress", store.Path())
		return RepairResult{TranslationResult: TranslationResult{Status: TranslationStatusSkipped, ProgressPath: store.Path()}}, nil
	}
	logger.Info("Starting repair", "documents", len(reset), "progress", store.Path())

	// The earlier output is the file being repaired.
	cfg.Overwrite = true
	res, err := RunTranslation(ctx, cfg)
	return RepairResult{TranslationResult: res, Reset: reset}, err
}
