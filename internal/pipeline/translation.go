package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oukeidos/ebt/internal/apperrors"
	"github.com/oukeidos/ebt/internal/content"
	"github.com/oukeidos/ebt/internal/epub"
	"github.com/oukeidos/ebt/internal/files"
	"github.com/oukeidos/ebt/internal/gemini"
	"github.com/oukeidos/ebt/internal/language"
	"github.com/oukeidos/ebt/internal/logger"
	"github.com/oukeidos/ebt/internal/openai"
	"github.com/oukeidos/ebt/internal/progress"
	"github.com/oukeidos/ebt/internal/provider"
	"github.com/oukeidos/ebt/internal/quality"
	"github.com/oukeidos/ebt/internal/reconstruct"
	"github.com/oukeidos/ebt/internal/segmenter"
	"github.com/oukeidos/ebt/internal/translator"
	"golang.org/x/sync/errgroup"
)

// newClient builds the translation client for cfg. The returned func releases it.
var newClient = func(ctx context.Context, cfg Config) (provider.Translator, func() error, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		c := openai.NewClient(cfg.APIKey, cfg.Model)
		c.SetSampling(cfg.Temperature, cfg.TopP)
		return c, func() error { return nil }, nil
	default:
		c, err := gemini.NewClient(ctx, cfg.APIKey, cfg.Model, gemini.Options{Temperature: cfg.Temperature, TopP: cfg.TopP})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		c.SetTimeout(cfg.AttemptTimeout)
		return c, c.Close, nil
	}
}

// documentUnit is one spine document during a run.
type documentUnit struct {
	member epub.Document
	raw    []byte
	doc    content.Document
	opaque bool
}

// run holds the state shared by one translation session.
type run struct {
	cfg    Config
	pkg    *epub.Package
	pkgID  string
	store  *progress.Store
	target language.Language

	mu      sync.Mutex
	outputs map[string][]byte
	result  TranslationResult
}

// RunTranslation executes the full translation pipeline.
func RunTranslation(ctx context.Context, cfg Config) (TranslationResult, error) {
	var notes []string
	cfg, notes = cfg.Normalize()
	for _, note := range notes {
		logger.Warn("Config normalized", "detail", note)
	}
	if err := cfg.Validate(); err != nil {
		return TranslationResult{}, fmt.Errorf("invalid configuration: %w", err)
	}

	// 1. Validation & Setup
	absIn, err := checkPaths(cfg)
	if err != nil {
		return TranslationResult{}, err
	}

	shouldOverwrite := cfg.Overwrite
	outputExists := false
	if _, err := os.Stat(cfg.OutputPath); err == nil {
		outputExists = true
		if !shouldOverwrite && cfg.OnConfirmOverwrite != nil {
			shouldOverwrite = cfg.OnConfirmOverwrite(cfg.OutputPath)
		}
		if !shouldOverwrite {
			logger.Info("Output file exists. Aborted by user.", "path", cfg.OutputPath)
			return TranslationResult{Status: TranslationStatusSkipped}, nil // Not an error, just user cancellation
		}
		logger.Info("Overwriting output file", "path", cfg.OutputPath)
	}

	target, err := language.Parse(cfg.TargetLang)
	if err != nil {
		return TranslationResult{}, fmt.Errorf("unsupported target language: %w", err)
	}

	// 2. Open package and progress
	pkg, err := epub.Open(absIn)
	if err != nil {
		return TranslationResult{}, fmt.Errorf("failed to open package: %w", err)
	}
	defer pkg.Close()

	pkgID, err := progress.HashFileHex(absIn)
	if err != nil {
		return TranslationResult{}, fmt.Errorf("failed to compute input hash: %w", err)
	}
	store, err := progress.Open(progressPath(cfg))
	if err != nil {
		return TranslationResult{}, fmt.Errorf("failed to open progress file: %w", err)
	}
	if err := store.Register(pkgID, absIn); err != nil {
		return TranslationResult{}, err
	}
	meta := pkg.Metadata()
	if meta.Language != "" && language.Same(meta.Language, target.Code) {
		logger.Warn("Book language already matches the target language", "book", meta.Language, "target", target.Code)
	}
	logger.Info("Opened package", "title", meta.Title, "documents", len(pkg.DocumentMembers()), "progress", store.Path())

	r := &run{
		cfg:     cfg,
		pkg:     pkg,
		pkgID:   pkgID,
		store:   store,
		target:  target,
		outputs: map[string][]byte{},
		result: TranslationResult{
			ProgressPath: store.Path(),
			Documents:    len(pkg.DocumentMembers()),
		},
	}

	// 3. Reuse finished documents, segment the rest
	pending, err := r.reuseFinished()
	if err != nil {
		return r.result, err
	}
	units, err := r.prepare(pending)
	if err != nil {
		return r.result, err
	}

	// 4. Translate
	if len(units) > 0 {
		if err := r.translate(ctx, units); err != nil {
			return r.result, err
		}
	} else {
		logger.Info("All documents already finished; no translation needed")
	}

	// 5. Assemble
	effectiveOutputPath := cfg.OutputPath
	if !(outputExists && shouldOverwrite) {
		safePath, changed, err := files.SafePath(cfg.OutputPath)
		if err != nil {
			return r.result, fmt.Errorf("failed to resolve output path: %w", err)
		}
		if changed {
			logger.Warn("Output path adjusted to avoid overwrite", "original", cfg.OutputPath, "effective", safePath)
			effectiveOutputPath = safePath
		}
	}
	for _, m := range pkg.DocumentMembers() {
		data, ok := r.outputs[m.Name]
		if !ok {
			continue
		}
		if err := pkg.WriteMember(m.Name, data); err != nil {
			return r.result, err
		}
	}
	if err := pkg.Build(effectiveOutputPath); err != nil {
		return r.result, fmt.Errorf("failed to assemble output package: %w", err)
	}
	r.result.OutputPath = effectiveOutputPath
	r.result.Status = r.result.computeStatus()
	logger.Info("Saved results", "path", effectiveOutputPath, "status", r.result.Status)
	return r.result, nil
}

func checkPaths(cfg Config) (string, error) {
	absIn, err := filepath.Abs(cfg.InputPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve input path: %w", err)
	}
	absOut, err := filepath.Abs(cfg.OutputPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path: %w", err)
	}
	if absIn == absOut {
		return "", fmt.Errorf("input and output files are the same (%s)", absIn)
	}
	if inInfo, err := os.Stat(absIn); err == nil {
		if outInfo, err := os.Stat(absOut); err == nil {
			if os.SameFile(inInfo, outInfo) {
				return "", fmt.Errorf("input and output files are the same (%s)", absIn)
			}
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to stat output path: %w", err)
		}
	} else {
		return "", fmt.Errorf("failed to stat input path: %w", err)
	}
	if err := files.RejectSymlinkPaths(cfg.OutputPath, cfg.LogPath, progressPath(cfg)); err != nil {
		return "", err
	}
	return absIn, nil
}

func progressPath(cfg Config) string {
	if cfg.ProgressPath != "" {
		return cfg.ProgressPath
	}
	return progress.DefaultPath(cfg.OutputPath)
}

// reuseFinished loads stored outputs of documents finished by an earlier run
// and returns the documents that still need work, in spine order.
func (r *run) reuseFinished() ([]epub.Document, error) {
	members := r.pkg.DocumentMembers()
	reused := make([][]byte, len(members))
	records := make([]progress.Record, len(members))
	done := make([]bool, len(members))

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, m := range members {
		rec, ok := r.store.Get(r.pkgID, m.Name)
		if !ok || !rec.Status.Done() {
			continue
		}
		records[i] = rec
		if rec.Status == progress.StatusFailedFallback {
			done[i] = true
			continue
		}
		g.Go(func() error {
			data, err := r.store.ReadPart(rec.OutputRef)
			if err != nil {
				logger.Warn("Stored document unusable; translating again", "doc", m.Name, "error", err)
				return nil
			}
			reused[i] = data
			done[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pending []epub.Document
	for i, m := range members {
		if !done[i] {
			pending = append(pending, m)
			continue
		}
		r.result.Skipped++
		if reused[i] == nil {
			r.result.Fallback++
			continue
		}
		r.outputs[m.Name] = reused[i]
		r.result.Succeeded++
		r.result.FallbackBatches += records[i].FallbackBatches
	}
	if r.result.Skipped > 0 {
		logger.Info("Reusing finished documents", "count", r.result.Skipped)
	}
	return pending, nil
}

// prepare segments pending documents. Unparseable documents follow the
// fallback policy.
func (r *run) prepare(pending []epub.Document) ([]*documentUnit, error) {
	var units []*documentUnit
	for _, m := range pending {
		raw, err := r.pkg.ReadMember(m.Name)
		if err != nil {
			return nil, err
		}
		doc, err := segmenter.Segment(raw)
		if err != nil {
			if !apperrors.Is(err, apperrors.KindMalformed) {
				return nil, err
			}
			if r.cfg.FallbackPolicy == FallbackOpaque {
				logger.Warn("Document could not be segmented; translating its text as one block", "doc", m.Name, "error", err)
				units = append(units, &documentUnit{member: m, raw: raw, doc: segmenter.Opaque(raw), opaque: true})
				continue
			}
			logger.Warn("Document could not be segmented; keeping original", "doc", m.Name, "error", err)
			if err := r.fallback(m.Name, apperrors.PublicMessage(err)); err != nil {
				return nil, err
			}
			continue
		}
		if !translatable(doc.Items) {
			// Rebuilding would only lose markup such as an SVG cover.
			if err := r.keepOriginal(m.Name, raw); err != nil {
				return nil, err
			}
			continue
		}
		units = append(units, &documentUnit{member: m, raw: raw, doc: doc})
	}
	return units, nil
}

// translatable reports whether any item carries text or alt text.
func translatable(items []content.Item) bool {
	for _, it := range items {
		if strings.TrimSpace(it.Payload()) != "" {
			return true
		}
	}
	return false
}

// keepOriginal records a document that needs no translation as finished with
// its original bytes.
func (r *run) keepOriginal(name string, raw []byte) error {
	ref, err := r.store.SavePart(r.pkgID, name, raw)
	if err != nil {
		return err
	}
	if err := r.store.MarkSucceeded(r.pkgID, name, ref, 0); err != nil {
		return err
	}
	r.mu.Lock()
	r.outputs[name] = raw
	r.result.Succeeded++
	r.mu.Unlock()
	logger.Info("Document has no translatable content; keeping original", "doc", name)
	return nil
}

func (r *run) translate(ctx context.Context, units []*documentUnit) error {
	client, closeClient, err := newClient(ctx, r.cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	orch, err := translator.New(client, translator.Options{
		TargetLanguage:    r.target.Name,
		Instructions:      r.cfg.PromptInstructions,
		MaxItems:          r.cfg.MaxItems,
		MaxChars:          r.cfg.MaxChars,
		ContextSize:       r.cfg.ContextSize,
		Concurrency:       r.cfg.Concurrency,
		RequestsPerMinute: r.cfg.RequestsPerMinute,
		AttemptTimeout:    r.cfg.AttemptTimeout,
		Retry:             r.cfg.retryPolicy(),
		Split:             r.cfg.splitPolicy(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize translator: %w", err)
	}

	byID := make(map[string]*documentUnit, len(units))
	jobs := make([]translator.Job, 0, len(units))
	for _, u := range units {
		byID[u.member.Name] = u
		jobs = append(jobs, translator.Job{DocID: u.member.Name, Items: u.doc.Items})
		if err := r.store.MarkStarted(r.pkgID, u.member.Name); err != nil {
			return err
		}
	}

	var persistErr error
	var persistOnce sync.Once
	logger.Info("Starting translation", "provider", r.cfg.Provider, "model", r.cfg.Model, "documents", len(units), "target", r.target.Code)
	runErr := orch.Run(ctx, jobs, r.cfg.OnProgress, func(res translator.DocumentResult) {
		if err := r.finish(byID[res.DocID], res); err != nil {
			persistOnce.Do(func() { persistErr = err })
		}
	})
	r.result.Usage = orch.Usage()
	if persistErr != nil {
		return persistErr
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			r.result.Status = TranslationStatusFailure
			return fmt.Errorf("translation interrupted; finished documents were saved to %s: %w", r.store.Path(), runErr)
		}
		return fmt.Errorf("fatal translation error: %w", runErr)
	}
	return nil
}

// finish reconstructs a translated document, checks it and records the outcome.
func (r *run) finish(u *documentUnit, res translator.DocumentResult) error {
	name := u.member.Name
	xhtml, err := reconstruct.Build(u.doc, res.Ranges, reconstruct.Options{Lang: r.target.Code})
	if err != nil {
		logger.Error("Reconstruction failed; keeping original", "doc", name, "error", err)
		return r.fallback(name, apperrors.PublicMessage(err))
	}
	if !u.opaque {
		if report := quality.Check(u.raw, u.doc.Items, xhtml); !report.OK() {
			logger.Error("Quality check failed; keeping original", "doc", name, "problems", report.Problems)
			return r.fallback(name, report.Error().Error())
		} else if len(report.Warnings) > 0 {
			logger.Warn("Quality check warnings", "doc", name, "warnings", report.Warnings)
		}
	}

	data := []byte(xhtml)
	ref, err := r.store.SavePart(r.pkgID, name, data)
	if err != nil {
		return err
	}
	if err := r.store.MarkSucceeded(r.pkgID, name, ref, res.FallbackRanges); err != nil {
		return err
	}

	r.mu.Lock()
	r.outputs[name] = data
	r.result.Succeeded++
	r.result.Translated++
	r.result.FallbackBatches += res.FallbackRanges
	r.mu.Unlock()
	logger.Info("Document translated", "doc", name, "fallback_batches", res.FallbackRanges)
	return nil
}

func (r *run) fallback(name, reason string) error {
	if err := r.store.MarkFallback(r.pkgID, name, reason); err != nil {
		return err
	}
	r.mu.Lock()
	r.result.Fallback++
	r.mu.Unlock()
	return nil
}
