package pipeline

import "github.com/oukeidos/ebt/internal/provider"

// TranslationStatus is the terminal state of a translation run.
type TranslationStatus string

const (
	TranslationStatusSuccess        TranslationStatus = "Success"
	TranslationStatusPartialSuccess TranslationStatus = "Partial Success"
	TranslationStatusFailure        TranslationStatus = "Failure"
	TranslationStatusSkipped        TranslationStatus = "Skipped"
)

// TranslationResult contains structured outputs from RunTranslation.
type TranslationResult struct {
	Status       TranslationStatus
	OutputPath   string
	ProgressPath string
	Usage        provider.Usage

	Documents       int // spine documents in the package
	Succeeded       int // reconstructed, in this run or an earlier one
	Fallback        int // kept as the original document
	Skipped         int // finished by an earlier run
	Translated      int // reconstructed in this run
	FallbackBatches int // original batches kept inside succeeded documents
}

// computeStatus derives the run status from the document counts.
func (r TranslationResult) computeStatus() TranslationStatus {
	switch {
	case r.Fallback == 0 && r.FallbackBatches == 0:
		return TranslationStatusSuccess
	case r.Succeeded > 0:
		return TranslationStatusPartialSuccess
	default:
		return TranslationStatusFailure
	}
}
