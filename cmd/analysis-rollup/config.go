package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/settings"
)

type Config struct {
	InDir      string
	ConfigPath string

	// Model and Prompt default to what the chunk reports recorded.
	Model      string
	Prompt     string
	PromptFile string

	APIKey  string
	BaseURL string

	MaxAttempts    int
	RetryDelay     time.Duration
	RequestTimeout time.Duration

	Overwrite bool
}

func (c Config) Validate() error {
	if c.InDir == "" {
		return fmt.Errorf("missing -in")
	}
	if c.Prompt != "" && c.PromptFile != "" {
		return fmt.Errorf("-prompt and -prompt-file are mutually exclusive")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max-attempts must be >= 0")
	}
	if c.RetryDelay < 0 || c.RequestTimeout < 0 {
		return fmt.Errorf("durations must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InDir: filepath.FromSlash("data/analysis"),
	}
}

func (c Config) withSettings(s settings.Settings) Config {
	if c.BaseURL == "" {
		c.BaseURL = s.Provider.BaseURL
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
	return c
}

func (c Config) retryPolicy() analysis.RetryPolicy {
	return analysis.RetryPolicy{
		MaxAttempts:    c.MaxAttempts,
		Delay:          c.RetryDelay,
		RequestTimeout: c.RequestTimeout,
	}
}
