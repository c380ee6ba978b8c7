package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oukeidos/ebt/internal/auth"
	"github.com/oukeidos/ebt/internal/cleanup"
	"github.com/oukeidos/ebt/internal/files"
	"github.com/oukeidos/ebt/internal/logger"
	"github.com/oukeidos/ebt/internal/metadata"
	"github.com/oukeidos/ebt/internal/provider"
	"github.com/oukeidos/ebt/internal/translator"
	"golang.org/x/term"
)

var (
	isTerminal   = term.IsTerminal
	getKey       = auth.GetKey
	getEnvKey    = auth.GetEnvKey
	getStatus    = auth.GetStatus
	promptForKey = auth.PromptForAPIKey
)

// resolveAPIKey handles the logic for finding the API key.
func resolveAPIKey(service string, allowEnv, envOnly bool) (string, string, error) {
	if envOnly {
		if key, ok := getEnvKey(service); ok {
			return key, auth.SourceEnv, nil
		}
		return "", "", fmt.Errorf("env-only set but %s is not set", auth.EnvVar(service))
	}

	if key, source := getKey(service, false); key != "" {
		return key, source, nil
	}

	if allowEnv {
		if key, ok := getEnvKey(service); ok {
			return key, auth.SourceEnv, nil
		}
	}

	if isTerminal(int(os.Stdin.Fd())) {
		key, err := promptForKey(fmt.Sprintf("%s API Key (press Enter to skip): ", serviceLabel(service)))
		if err != nil {
			return "", "", fmt.Errorf("error reading API key: %w", err)
		}
		if strings.TrimSpace(key) != "" {
			return strings.TrimSpace(key), "Terminal Prompt", nil
		}
	}

	if !isTerminal(int(os.Stdin.Fd())) {
		return "", "", fmt.Errorf("no API key available (non-interactive shell); set keychain or use --allow-env")
	}
	if allowEnv {
		return "", "", fmt.Errorf("API key is required; not found in keychain or environment")
	}
	return "", "", fmt.Errorf("API key is required; not found in keychain (environment disabled by default; use --allow-env)")
}

func serviceLabel(service string) string {
	if service == "openai" {
		return "OpenAI"
	}
	return "Gemini"
}

// initLogging sets up the global logger and, when path is set, a JSONL log file
// closed by the cleanup hooks.
func initLogging(debug bool, path string) error {
	level := logger.LevelInfo
	if debug {
		level = logger.LevelDebug
	}
	var logFileW io.Writer
	if path != "" {
		if err := files.RejectSymlinkPath(path); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cleanup.Register(f.Close)
		logFileW = f
	}
	logger.Init(level, logFileW)
	return nil
}

func logProgress(p translator.TranslationProgress) {
	switch p.State {
	case translator.StateCompleted:
		logger.Debug("Batch completed", "doc", p.DocID, "start", p.Start, "end", p.End)
	case translator.StateRetrying:
		logger.Warn("Batch retry", "doc", p.DocID, "start", p.Start, "end", p.End, "attempt", p.Attempt, "error", p.Error)
	case translator.StateSplit:
		logger.Warn("Batch rejected, retrying in halves", "doc", p.DocID, "start", p.Start, "end", p.End, "depth", p.Depth)
	case translator.StateFallback:
		logger.Warn("Batch kept original", "doc", p.DocID, "start", p.Start, "end", p.End, "error", p.Error)
	}
}

func printUsageStats(w io.Writer, usage provider.Usage, duration time.Duration, providerName, model string) {
	fmt.Fprintln(w, "\n--- Execution Stats ---")
	fmt.Fprintf(w, "Time: %s\n", duration)
	fmt.Fprintf(w, "Model: %s (%s)\n", model, providerName)
	if usage.TotalTokenCount <= 0 {
		return
	}
	fmt.Fprintf(w, "Tokens: In=%d, Out=%d, Total=%d\n", usage.PromptTokenCount, usage.CandidatesTokenCount, usage.TotalTokenCount)

	// Reasoning tokens are billed as output tokens.
	reasoningTokens := usage.TotalTokenCount - (usage.PromptTokenCount + usage.CandidatesTokenCount)
	if reasoningTokens < 0 {
		reasoningTokens = 0
	}
	cost, known := metadata.EstimateCost(providerName, model, usage.PromptTokenCount, usage.CandidatesTokenCount+reasoningTokens)
	note := ""
	if !known {
		note = ", default pricing"
	}
	fmt.Fprintf(w, "Estimated Cost: $%.5f (Reasoning Tokens: %d%s)\n", cost, reasoningTokens, note)
}

func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("Cancellation requested")
		cancel()
	}()
	stop := func() {
		signal.Stop(sigCh)
		cancel()
	}
	return ctx, stop
}
