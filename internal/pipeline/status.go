package pipeline

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/oukeidos/ebt/internal/progress"
)

// DocumentStatus is the stored state of one document.
type DocumentStatus struct {
	Name            string
	Status          progress.Status
	FallbackBatches int
	Error           string
}

// PackageStatus is the stored state of one source package.
type PackageStatus struct {
	ID        string
	Source    string
	Summary   progress.Summary
	Documents []DocumentStatus
}

// StatusReport describes a progress file.
type StatusReport struct {
	ProgressPath string
	Packages     []PackageStatus
}

// Status reads the progress file of cfg. When InputPath is set only that
// package is reported.
func Status(cfg Config) (StatusReport, error) {
	store, ids, err := openProgressFor(cfg)
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{ProgressPath: store.Path()}
	for _, id := range ids {
		ps := PackageStatus{ID: id, Source: store.Source(id), Summary: store.Summary(id)}
		for name, rec := range store.Snapshot(id) {
			ps.Documents = append(ps.Documents, DocumentStatus{
				Name:            name,
				Status:          rec.Status,
				FallbackBatches: rec.FallbackBatches,
				Error:           rec.Error,
			})
		}
		sort.Slice(ps.Documents, func(i, j int) bool { return ps.Documents[i].Name < ps.Documents[j].Name })
		report.Packages = append(report.Packages, ps)
	}
	return report, nil
}

// ClearProgress removes stored progress. When InputPath is set only that
// package is cleared. It returns the number of packages removed.
func ClearProgress(cfg Config) (int, error) {
	store, ids, err := openProgressFor(cfg)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := store.Clear(id); err != nil {
			return 0, fmt.Errorf("failed to clear progress: %w", err)
		}
	}
	return len(ids), nil
}

func openProgressFor(cfg Config) (*progress.Store, []string, error) {
	if cfg.ProgressPath == "" && cfg.OutputPath == "" {
		return nil, nil, fmt.Errorf("a progress file or output path is required")
	}
	store, err := progress.Open(progressPath(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open progress file: %w", err)
	}
	ids := store.Packages()
	if cfg.InputPath == "" {
		return store, ids, nil
	}
	absIn, err := filepath.Abs(cfg.InputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve input path: %w", err)
	}
	pkgID, err := progress.HashFileHex(absIn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute input hash: %w", err)
	}
	for _, id := range ids {
		if id == pkgID {
			return store, []string{id}, nil
		}
	}
	return store, nil, nil
}
