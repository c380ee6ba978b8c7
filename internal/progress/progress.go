package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oukeidos/ebt/internal/files"
)

// Status is the persisted state of one document.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in_progress"
	StatusSucceeded      Status = "succeeded"
	StatusFailedFallback Status = "failed_fallback"
)

// Done reports whether the status is terminal.
func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailedFallback
}

// Record is the stored state of one document.
type Record struct {
	Status Status `json:"status"`
	// OutputRef points at the stored translated document, relative to the
	// progress file. Empty for fallback records.
	OutputRef       string    `json:"output_ref,omitempty"`
	FallbackBatches int       `json:"fallback_batches,omitempty"`
	Error           string    `json:"error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Package groups the records of one source archive.
type Package struct {
	Source    string             `json:"source,omitempty"`
	Documents map[string]*Record `json:"documents"`
}

// Summary counts documents per status.
type Summary struct {
	Total      int
	Pending    int
	InProgress int
	Succeeded  int
	Fallback   int
}

const CurrentVersion = 1

type fileData struct {
	Version   int                 `json:"version"`
	LastRunID string              `json:"last_run_id,omitempty"`
	Packages  map[string]*Package `json:"packages"`
}

// Store is a JSON backed progress file. Every mutation is written to disk
// before it returns.
type Store struct {
	path     string
	partsDir string
	runID    string
	now      func() time.Time

	mu   sync.RWMutex
	data fileData
}

// Open loads the progress file at path, creating an empty store when the file
// does not exist yet.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("progress path is empty")
	}
	s := &Store{
		path:     path,
		partsDir: partsDirFor(path),
		runID:    newRunID(),
		now:      time.Now,
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the progress file location.
func (s *Store) Path() string { return s.path }

// PartsDir returns the directory holding stored documents.
func (s *Store) PartsDir() string { return s.partsDir }

// Load rereads the progress file. Records left in progress by an earlier run
// are treated as pending.
func (s *Store) Load() error {
	data := fileData{Version: CurrentVersion, Packages: map[string]*Package{}}
	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to read progress file: %w", err)
	default:
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("failed to parse progress file: %w", err)
		}
		if data.Version != CurrentVersion {
			return fmt.Errorf("unsupported progress file version: %d", data.Version)
		}
		if data.Packages == nil {
			data.Packages = map[string]*Package{}
		}
	}
	for _, pkg := range data.Packages {
		if pkg.Documents == nil {
			pkg.Documents = map[string]*Record{}
		}
		for _, rec := range pkg.Documents {
			if rec.Status == StatusInProgress {
				rec.Status = StatusPending
			}
		}
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// Register records the source path of a package.
func (s *Store) Register(pkg, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pkgLocked(pkg)
	if p.Source == source {
		return nil
	}
	p.Source = source
	return s.saveLocked()
}

// MarkStarted moves a document to in_progress. Terminal records are left alone.
func (s *Store) MarkStarted(pkg, doc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(pkg, doc)
	if rec.Status.Done() || rec.Status == StatusInProgress {
		return nil
	}
	rec.Status = StatusInProgress
	rec.UpdatedAt = s.now()
	return s.saveLocked()
}

// MarkSucceeded records a reconstructed document and where its output is stored.
func (s *Store) MarkSucceeded(pkg, doc, outputRef string, fallbackBatches int) error {
	if outputRef == "" {
		return fmt.Errorf("output reference is required for %s", doc)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(pkg, doc)
	if rec.Status == StatusSucceeded && rec.OutputRef == outputRef && rec.FallbackBatches == fallbackBatches {
		return nil
	}
	*rec = Record{
		Status:          StatusSucceeded,
		OutputRef:       outputRef,
		FallbackBatches: fallbackBatches,
		UpdatedAt:       s.now(),
	}
	return s.saveLocked()
}

// MarkFallback records that the original document is used unchanged.
func (s *Store) MarkFallback(pkg, doc, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(pkg, doc)
	if rec.Status == StatusFailedFallback && rec.Error == reason {
		return nil
	}
	*rec = Record{
		Status:    StatusFailedFallback,
		Error:     reason,
		UpdatedAt: s.now(),
	}
	return s.saveLocked()
}

// IsDone reports whether a document reached a terminal state.
func (s *Store) IsDone(pkg, doc string) bool {
	rec, ok := s.Get(pkg, doc)
	return ok && rec.Status.Done()
}

// Get returns a copy of the record of a document.
func (s *Store) Get(pkg, doc string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.Packages[pkg]
	if !ok {
		return Record{}, false
	}
	rec, ok := p.Documents[doc]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns a copy of all records of a package.
func (s *Store) Snapshot(pkg string) map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]Record{}
	p, ok := s.data.Packages[pkg]
	if !ok {
		return out
	}
	for doc, rec := range p.Documents {
		out[doc] = *rec
	}
	return out
}

// Packages lists the package ids present in the file.
func (s *Store) Packages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data.Packages))
	for id := range s.data.Packages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Source returns the registered source path of a package.
func (s *Store) Source(pkg string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.data.Packages[pkg]; ok {
		return p.Source
	}
	return ""
}

// Summary counts the records of a package by status.
func (s *Store) Summary(pkg string) Summary {
	var sum Summary
	for _, rec := range s.Snapshot(pkg) {
		sum.Total++
		switch rec.Status {
		case StatusPending:
			sum.Pending++
		case StatusInProgress:
			sum.InProgress++
		case StatusSucceeded:
			sum.Succeeded++
		case StatusFailedFallback:
			sum.Fallback++
		}
	}
	return sum
}

// ResetFallback returns fallback records, and succeeded records that kept
// some original batches, to pending. It returns the reset document ids.
func (s *Store) ResetFallback(pkg string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.Packages[pkg]
	if !ok {
		return nil, nil
	}
	var reset []string
	for doc, rec := range p.Documents {
		if rec.Status == StatusFailedFallback || (rec.Status == StatusSucceeded && rec.FallbackBatches > 0) {
			*rec = Record{Status: StatusPending, UpdatedAt: s.now()}
			reset = append(reset, doc)
		}
	}
	if len(reset) == 0 {
		return nil, nil
	}
	sort.Strings(reset)
	return reset, s.saveLocked()
}

// Clear removes every record of a package together with its stored parts.
// The progress file is removed once no package is left.
func (s *Store) Clear(pkg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.Packages[pkg]
	if !ok {
		return nil
	}
	for _, rec := range p.Documents {
		if rec.OutputRef == "" {
			continue
		}
		if path, err := s.resolveRef(rec.OutputRef); err == nil {
			_ = os.Remove(path)
		}
	}
	delete(s.data.Packages, pkg)
	if len(s.data.Packages) > 0 {
		return s.saveLocked()
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove progress file: %w", err)
	}
	_ = os.Remove(s.partsDir)
	return nil
}

func (s *Store) pkgLocked(pkg string) *Package {
	p, ok := s.data.Packages[pkg]
	if !ok {
		p = &Package{Documents: map[string]*Record{}}
		s.data.Packages[pkg] = p
	}
	return p
}

func (s *Store) recordLocked(pkg, doc string) *Record {
	p := s.pkgLocked(pkg)
	rec, ok := p.Documents[doc]
	if !ok {
		rec = &Record{Status: StatusPending}
		p.Documents[doc] = rec
	}
	return rec
}

func (s *Store) saveLocked() error {
	s.data.Version = CurrentVersion
	s.data.LastRunID = s.runID
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := files.AtomicWrite(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// partsDirFor derives the parts directory from the progress file name:
// book_ebt_progress.json keeps its parts in book_ebt_parts.
func partsDirFor(path string) string {
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimSuffix(base, "_progress")
	return filepath.Join(dir, base+"_parts")
}

func newRunID() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}
