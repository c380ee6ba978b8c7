package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oukeidos/ebt/internal/language"
	"github.com/oukeidos/ebt/internal/logger"
	"github.com/oukeidos/ebt/internal/pipeline"
	"github.com/spf13/cobra"
)

var runTranslationPipeline = pipeline.RunTranslation

// defaultOpenAIModel replaces the Gemini default when only --provider openai is given.
const defaultOpenAIModel = "gpt-4.1-mini"

type translateOptions struct {
	configPath       string
	targetLangCode   string
	providerName     string
	modelName        string
	maxItems         int
	maxChars         int
	contextSize      int
	minChunkItems    int
	minChunkChars    int
	maxSplitAttempts int
	maxRetries       int
	concurrency      int
	rpm              int
	timeout          time.Duration
	fallback         string
	temperature      float32
	topP             float32
	progressPath     string
	yes              bool
	logFilePath      string
	allowEnv         bool
	envOnly          bool
	debug            bool
}

func newTranslateCmd() *cobra.Command {
	opts := translateOptions{}
	cmd := &cobra.Command{
		Use:     "translate <input.epub> <output.epub>",
		Short:   "Translate an EPUB book",
		Example: translateExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				_ = cmd.Usage()
				return fmt.Errorf("input and output files are required")
			}
			return runTranslate(cmd, args, &opts)
		},
		SilenceUsage: true,
	}

	addTranslateFlags(cmd, &opts)
	return cmd
}

func addTranslateFlags(cmd *cobra.Command, opts *translateOptions) {
	def := pipeline.DefaultConfig()
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	cmd.Flags().StringVar(&opts.targetLangCode, "target", def.TargetLang, "Target language code or name")
	cmd.Flags().StringVar(&opts.providerName, "provider", def.Provider, "Translation provider (gemini or openai)")
	cmd.Flags().StringVar(&opts.modelName, "model", def.Model, "Model name")
	cmd.Flags().IntVar(&opts.maxItems, "max-items", def.MaxItems, "Maximum content items per request (0 disables)")
	cmd.Flags().IntVar(&opts.maxChars, "max-chars", def.MaxChars, "Maximum characters per request (0 disables)")
	cmd.Flags().IntVar(&opts.contextSize, "context-size", def.ContextSize, "Number of context items before/after each batch")
	cmd.Flags().IntVar(&opts.minChunkItems, "min-chunk-items", def.MinChunkItems, "Smallest batch (items) that is still split after a rejection")
	cmd.Flags().IntVar(&opts.minChunkChars, "min-chunk-chars", def.MinChunkChars, "Smallest batch (characters) that is still split after a rejection")
	cmd.Flags().IntVar(&opts.maxSplitAttempts, "max-split-attempts", def.MaxSplitAttempts, "Maximum split depth for rejected batches")
	cmd.Flags().IntVar(&opts.maxRetries, "max-retries", def.MaxRetries, "Retries per batch after transient failures")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", def.Concurrency, "Number of concurrent API requests (1-20)")
	cmd.Flags().IntVar(&opts.rpm, "rpm", def.RequestsPerMinute, "Requests per minute across all workers (0 disables)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", def.AttemptTimeout, "Timeout for a single request")
	cmd.Flags().StringVar(&opts.fallback, "fallback", def.FallbackPolicy, "Policy for unparseable documents (original or opaque)")
	cmd.Flags().Float32Var(&opts.temperature, "temperature", def.Temperature, "Sampling temperature")
	cmd.Flags().Float32Var(&opts.topP, "top-p", def.TopP, "Nucleus sampling probability")
	cmd.Flags().StringVar(&opts.progressPath, "progress", "", "Path to the progress file (default: <output>_ebt_progress.json)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Overwrite output file without asking")
	cmd.Flags().StringVar(&opts.logFilePath, "log-file", "", "Path to save machine-readable JSONL logs")
	cmd.Flags().BoolVar(&opts.allowEnv, "allow-env", false, "Allow reading API key from environment variables")
	cmd.Flags().BoolVar(&opts.envOnly, "env-only", false, "Use only environment variables for API keys")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
}

// buildConfig layers the config file over the defaults and explicitly set
// flags over both.
func buildConfig(cmd *cobra.Command, opts *translateOptions) (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	if opts.configPath != "" {
		fc, err := loadConfigFile(opts.configPath)
		if err != nil {
			return cfg, err
		}
		fc.apply(&cfg)
	}

	changed := cmd.Flags().Changed
	if changed("target") {
		cfg.TargetLang = opts.targetLangCode
	}
	if changed("provider") {
		cfg.Provider = opts.providerName
	}
	if changed("model") {
		cfg.Model = opts.modelName
	} else if changed("provider") && cfg.Provider == pipeline.ProviderOpenAI && cfg.Model == pipeline.DefaultConfig().Model {
		cfg.Model = defaultOpenAIModel
	}
	if changed("max-items") {
		cfg.MaxItems = opts.maxItems
	}
	if changed("max-chars") {
		cfg.MaxChars = opts.maxChars
	}
	if changed("context-size") {
		cfg.ContextSize = opts.contextSize
	}
	if changed("min-chunk-items") {
		cfg.MinChunkItems = opts.minChunkItems
	}
	if changed("min-chunk-chars") {
		cfg.MinChunkChars = opts.minChunkChars
	}
	if changed("max-split-attempts") {
		cfg.MaxSplitAttempts = opts.maxSplitAttempts
	}
	if changed("max-retries") {
		cfg.MaxRetries = opts.maxRetries
	}
	if changed("concurrency") {
		cfg.Concurrency = opts.concurrency
	}
	if changed("rpm") {
		cfg.RequestsPerMinute = opts.rpm
	}
	if changed("timeout") {
		cfg.AttemptTimeout = opts.timeout
	}
	if changed("fallback") {
		cfg.FallbackPolicy = opts.fallback
	}
	if changed("temperature") {
		cfg.Temperature = opts.temperature
	}
	if changed("top-p") {
		cfg.TopP = opts.topP
	}
	if changed("progress") {
		cfg.ProgressPath = opts.progressPath
	}

	code, err := resolveLanguageCode(cfg.TargetLang)
	if err != nil {
		return cfg, err
	}
	cfg.TargetLang = code
	cfg.LogPath = opts.logFilePath
	cfg.Overwrite = opts.yes
	return cfg, nil
}

func runTranslate(cmd *cobra.Command, args []string, opts *translateOptions) error {
	if len(args) < 2 {
		return fmt.Errorf("input and output files are required")
	}
	if len(args) > 2 {
		fmt.Fprintf(os.Stderr, "Warning: expected 2 arguments but got %d. Did you forget quotes around file paths?\n", len(args))
		fmt.Fprintf(os.Stderr, "  Using input: %s\n", args[0])
		fmt.Fprintf(os.Stderr, "  Using output: %s\n", args[1])
	}
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
	cfg.OnConfirmOverwrite = func(path string) bool {
		confirmed, err := newConfirmer().ConfirmOverwrite(path, opts.yes)
		if err != nil {
			logger.Error("Overwrite confirmation failed", "error", err)
			return false
		}
		return confirmed
	}

	ctx, stop := signalContext()
	defer stop()
	result, err := runTranslationPipeline(ctx, cfg)

	// Always print stats (even on partial success)
	printUsageStats(cmd.OutOrStdout(), result.Usage, time.Since(startTime), cfg.Provider, cfg.Model)

	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("Translation canceled; rerun the same command to resume", "error", err)
			return nil
		}
		return err
	}

	return translationStatusError(result)
}

func translationStatusError(result pipeline.TranslationResult) error {
	switch result.Status {
	case pipeline.TranslationStatusSuccess:
		return nil
	case pipeline.TranslationStatusSkipped:
		return nil
	case pipeline.TranslationStatusPartialSuccess, pipeline.TranslationStatusFailure:
		return fmt.Errorf("translation finished with status: %s (%d of %d documents kept original, %d batches kept original; run `ebt repair` to retry)",
			result.Status, result.Fallback, result.Documents, result.FallbackBatches)
	default:
		return fmt.Errorf("translation finished with unknown status: %q", result.Status)
	}
}

func resolveLanguageCode(input string) (string, error) {
	needle := strings.TrimSpace(input)
	if needle == "" {
		return "", fmt.Errorf("language is empty")
	}
	for _, entry := range language.GetSupportedLanguages() {
		if strings.EqualFold(entry.Name, needle) {
			return entry.Code, nil
		}
	}
	if lang, ok := language.GetLanguage(needle); ok {
		return lang.Code, nil
	}
	return "", fmt.Errorf("unsupported language: %s", input)
}

const epubExtension = ".epub"

func validateEPUBPathExtensions(inputPath, outputPath string) error {
	if err := validateEPUBExtension("input", inputPath); err != nil {
		return err
	}
	return validateEPUBExtension("output", outputPath)
}

func validateEPUBExtension(kind, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == epubExtension {
		return nil
	}
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Errorf("unsupported %s extension %q (supported: %s)", kind, ext, epubExtension)
}
