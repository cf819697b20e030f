package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/settings"
)

type Config struct {
	InPath     string
	OutDir     string
	ConfigPath string

	Model          string
	AggregateModel string
	Aggregate      bool
	APIKey         string
	BaseURL        string

	Prompt        string
	PromptFile    string
	PromptName    string
	PromptLibrary string

	MaxBytes int
	Size     string

	MaxAttempts    int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	MinInterval    time.Duration

	SchemaPath string
	ListModels bool
	Overwrite  bool
}

func (c Config) Validate() error {
	if c.ListModels {
		return nil
	}
	if c.InPath == "" {
		return fmt.Errorf("missing -in")
	}
	if c.OutDir == "" {
		return fmt.Errorf("missing -out")
	}
	if c.Model == "" {
		return fmt.Errorf("missing -model")
	}
	if c.MaxBytes < 0 {
		return fmt.Errorf("max-bytes must be >= 0")
	}
	if c.Size != "" {
		if _, err := analysis.ChunkSizePreset(c.Size); err != nil {
			return err
		}
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max-attempts must be >= 0")
	}
	if c.RetryDelay < 0 || c.RequestTimeout < 0 || c.MinInterval < 0 {
		return fmt.Errorf("durations must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:    filepath.FromSlash("data/transcript.txt"),
		OutDir:    filepath.FromSlash("data/analysis"),
		Aggregate: true,
	}
}

// withSettings fills everything not given on the command line.
func (c Config) withSettings(s settings.Settings) Config {
	if c.Model == "" {
		c.Model = s.Model
	}
	if c.AggregateModel == "" {
		c.AggregateModel = c.Model
	}
	if c.BaseURL == "" {
		c.BaseURL = s.Provider.BaseURL
	}
	if c.PromptLibrary == "" {
		c.PromptLibrary = s.Prompts.Library
	}
	if c.PromptName == "" {
		c.PromptName = s.Prompts.Default
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = s.Retry.MaxAttempts
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = s.Retry.Delay
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = s.Retry.RequestTimeout
	}
	if c.MinInterval == 0 {
		c.MinInterval = s.Analysis.MinInterval
	}
	return c
}

func (c Config) retryPolicy() analysis.RetryPolicy {
	return analysis.RetryPolicy{
		MaxAttempts:    c.MaxAttempts,
		Delay:          c.RetryDelay,
		RequestTimeout: c.RequestTimeout,
	}
}

// chunkOptions resolves the byte budget: -max-bytes, then -size, then settings.
func (c Config) chunkOptions(s settings.Settings) analysis.ChunkOptions {
	opts := s.ChunkOptions()
	switch {
	case c.MaxBytes > 0:
		opts.MaxBytes = c.MaxBytes
	case c.Size != "":
		if n, err := analysis.ChunkSizePreset(c.Size); err == nil {
			opts.MaxBytes = n
		}
	}
	return opts
}
