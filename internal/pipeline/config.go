package pipeline

import (
	"fmt"
	"slices"
	"time"

	"github.com/oukeidos/ebt/internal/httpclient"
	"github.com/oukeidos/ebt/internal/metadata"
	"github.com/oukeidos/ebt/internal/translator"
)

// Config holds all configuration required for running a translation or repair session.
type Config struct {
	// IO Paths
	InputPath    string
	OutputPath   string
	ProgressPath string // Optional: defaults to <output stem>_ebt_progress.json
	LogPath      string // Optional: JSONL log file

	// API Configuration
	Provider    string
	APIKey      string
	Model       string
	Temperature float32
	TopP        float32

	// Batching
	MaxItems    int
	MaxChars    int
	ContextSize int

	// Adaptive splitting of rejected batches
	MinChunkItems    int
	MinChunkChars    int
	MaxSplitAttempts int

	// Requests
	MaxRetries        int
	Concurrency       int
	RequestsPerMinute int
	AttemptTimeout    time.Duration

	// Output
	TargetLang         string
	FallbackPolicy     string
	PromptInstructions string
	Overwrite          bool // If true, overwrite output file without asking (CLI mostly)

	// Callbacks
	// OnProgress is called with translation progress updates.
	OnProgress func(translator.TranslationProgress)

	// OnConfirmOverwrite is called when the output file exists.
	// It should return true if the file should be overwritten.
	// If nil, it assumes Overwrite flag accounts for it or it's already checked.
	OnConfirmOverwrite func(path string) bool
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	// FallbackOriginal keeps an unparseable document byte for byte.
	FallbackOriginal = "original"
	// FallbackOpaque translates the tag-stripped text of an unparseable document as one item.
	FallbackOpaque = "opaque"
)

const (
	MinConcurrency  = 1
	MaxConcurrency  = 20
	MaxBatchItems   = 500
	MaxContextSize  = 20
	MaxSplitDepth   = 10
	DefaultRPM      = 60
	DefaultMaxItems = 50
	DefaultMaxChars = 6000
)

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Provider:          ProviderGemini,
		Model:             "gemini-2.0-flash",
		Temperature:       0.7,
		TopP:              0.9,
		MaxItems:          DefaultMaxItems,
		MaxChars:          DefaultMaxChars,
		ContextSize:       2,
		MinChunkItems:     1,
		MinChunkChars:     100,
		MaxSplitAttempts:  3,
		MaxRetries:        3,
		Concurrency:       4,
		RequestsPerMinute: DefaultRPM,
		AttemptTimeout:    httpclient.DefaultTimeout,
		TargetLang:        "ko",
		FallbackPolicy:    FallbackOriginal,
	}
}

func ClampConcurrency(value int) (int, bool) {
	if value < MinConcurrency {
		return MinConcurrency, true
	}
	if value > MaxConcurrency {
		return MaxConcurrency, true
	}
	return value, false
}

// Normalize applies safe bounds to config values and returns any adjustments.
func (c Config) Normalize() (Config, []string) {
	var notes []string
	if clamped, changed := ClampConcurrency(c.Concurrency); changed {
		notes = append(notes, fmt.Sprintf("concurrency clamped from %d to %d (max %d)", c.Concurrency, clamped, MaxConcurrency))
		c.Concurrency = clamped
	}
	if c.MaxItems > MaxBatchItems {
		notes = append(notes, fmt.Sprintf("max-items clamped from %d to %d (max %d)", c.MaxItems, MaxBatchItems, MaxBatchItems))
		c.MaxItems = MaxBatchItems
	}
	if c.ContextSize > MaxContextSize {
		notes = append(notes, fmt.Sprintf("context-size clamped from %d to %d (max %d)", c.ContextSize, MaxContextSize, MaxContextSize))
		c.ContextSize = MaxContextSize
	}
	if c.MaxSplitAttempts > MaxSplitDepth {
		notes = append(notes, fmt.Sprintf("max-split-attempts clamped from %d to %d (max %d)", c.MaxSplitAttempts, MaxSplitDepth, MaxSplitDepth))
		c.MaxSplitAttempts = MaxSplitDepth
	}
	if c.RequestsPerMinute < 0 {
		notes = append(notes, fmt.Sprintf("rpm %d treated as unlimited", c.RequestsPerMinute))
		c.RequestsPerMinute = 0
	}
	if c.Provider == "" {
		c.Provider = ProviderGemini
	}
	if c.FallbackPolicy == "" {
		c.FallbackPolicy = FallbackOriginal
	}
	if c.Model != "" && !slices.Contains(metadata.ModelIDs(c.Provider), c.Model) {
		notes = append(notes, fmt.Sprintf("model %s has no pricing entry; cost estimates use default %s pricing", c.Model, c.Provider))
	}
	return c, notes
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.MaxItems <= 0 && c.MaxChars <= 0 {
		return fmt.Errorf("at least one of max-items and max-chars must be greater than 0")
	}
	if c.MaxItems < 0 || c.MaxChars < 0 {
		return fmt.Errorf("batch bounds must not be negative (max-items %d, max-chars %d)", c.MaxItems, c.MaxChars)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be greater than 0, got %d", c.Concurrency)
	}
	if c.ContextSize < 0 {
		return fmt.Errorf("contextSize must be 0 or greater, got %d", c.ContextSize)
	}
	if c.MinChunkItems < 1 {
		return fmt.Errorf("min-chunk-items must be at least 1, got %d", c.MinChunkItems)
	}
	if c.MinChunkChars < 0 || c.MaxSplitAttempts < 0 || c.MaxRetries < 0 {
		return fmt.Errorf("split and retry limits must not be negative")
	}
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}
	switch c.FallbackPolicy {
	case FallbackOriginal, FallbackOpaque:
	default:
		return fmt.Errorf("unsupported fallback policy: %s (use %s or %s)", c.FallbackPolicy, FallbackOriginal, FallbackOpaque)
	}
	if c.Model == "" {
		return fmt.Errorf("model name is empty")
	}
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	return nil
}

// retryPolicy maps MaxRetries, the number of additional attempts, onto the
// translator policy.
func (c Config) retryPolicy() translator.RetryPolicy {
	p := translator.DefaultRetryPolicy()
	p.MaxAttempts = c.MaxRetries + 1
	return p
}

func (c Config) splitPolicy() translator.SplitPolicy {
	return translator.SplitPolicy{
		MinChunkItems:    c.MinChunkItems,
		MinChunkChars:    c.MinChunkChars,
		MaxSplitAttempts: c.MaxSplitAttempts,
	}
}
