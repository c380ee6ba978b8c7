package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oukeidos/ebt/internal/pipeline"
	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML configuration file. Unset keys keep the
// built-in defaults; command-line flags override both.
type fileConfig struct {
	TargetLanguage     *string        `yaml:"target_language"`
	Provider           *string        `yaml:"provider"`
	Model              *string        `yaml:"model"`
	MaxItemsPerBatch   *int           `yaml:"max_items_per_batch"`
	MaxCharsPerBatch   *int           `yaml:"max_chars_per_batch"`
	ContextSize        *int           `yaml:"context_size"`
	MinChunkItems      *int           `yaml:"min_chunk_items"`
	MinChunkChars      *int           `yaml:"min_chunk_chars"`
	MaxSplitAttempts   *int           `yaml:"max_split_attempts"`
	MaxRetries         *int           `yaml:"max_retries"`
	Concurrency        *int           `yaml:"concurrency"`
	RequestsPerMinute  *int           `yaml:"requests_per_minute"`
	RequestTimeout     *time.Duration `yaml:"request_timeout"`
	FallbackPolicy     *string        `yaml:"fallback_policy"`
	Temperature        *float32       `yaml:"temperature"`
	TopP               *float32       `yaml:"top_p"`
	ProgressFile       *string        `yaml:"progress_file"`
	PromptInstructions *string        `yaml:"prompt_instructions"`
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &fc, nil
}

func (fc *fileConfig) apply(cfg *pipeline.Config) {
	setString(&cfg.TargetLang, fc.TargetLanguage)
	setString(&cfg.Provider, fc.Provider)
	setString(&cfg.Model, fc.Model)
	setInt(&cfg.MaxItems, fc.MaxItemsPerBatch)
	setInt(&cfg.MaxChars, fc.MaxCharsPerBatch)
	setInt(&cfg.ContextSize, fc.ContextSize)
	setInt(&cfg.MinChunkItems, fc.MinChunkItems)
	setInt(&cfg.MinChunkChars, fc.MinChunkChars)
	setInt(&cfg.MaxSplitAttempts, fc.MaxSplitAttempts)
	setInt(&cfg.MaxRetries, fc.MaxRetries)
	setInt(&cfg.Concurrency, fc.Concurrency)
	setInt(&cfg.RequestsPerMinute, fc.RequestsPerMinute)
	if fc.RequestTimeout != nil {
		cfg.AttemptTimeout = *fc.RequestTimeout
	}
	setString(&cfg.FallbackPolicy, fc.FallbackPolicy)
	if fc.Temperature != nil {
		cfg.Temperature = *fc.Temperature
	}
	if fc.TopP != nil {
		cfg.TopP = *fc.TopP
	}
	setString(&cfg.ProgressPath, fc.ProgressFile)
	setString(&cfg.PromptInstructions, fc.PromptInstructions)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
