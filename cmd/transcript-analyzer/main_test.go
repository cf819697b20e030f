package main

import (
	"flag"
	"testing"
	"time"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/settings"
)

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("transcript-analyzer", flag.ContinueOnError)
	cfg, err := parseFlags(fs, nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.InPath == "" || cfg.OutDir == "" {
		t.Fatalf("expected default paths, got in=%q out=%q", cfg.InPath, cfg.OutDir)
	}
	if !cfg.Aggregate {
		t.Fatalf("Aggregate=false, want true")
	}
	if cfg.Model != "" {
		t.Fatalf("Model=%q, want empty until settings are applied", cfg.Model)
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("transcript-analyzer", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-in", "t.txt",
		"-out", "reports",
		"-model", "qwen/qwen-turbo",
		"-aggregate=false",
		"-prompt-name", "timeline",
		"-size", "small",
		"-max-attempts", "3",
		"-retry-delay", "250ms",
		"-min-interval", "1s",
		"-overwrite",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Model != "qwen/qwen-turbo" {
		t.Fatalf("Model=%q, want %q", cfg.Model, "qwen/qwen-turbo")
	}
	if cfg.Aggregate {
		t.Fatalf("Aggregate=true, want false")
	}
	if cfg.PromptName != "timeline" || cfg.Size != "small" {
		t.Fatalf("PromptName=%q Size=%q", cfg.PromptName, cfg.Size)
	}
	if cfg.MaxAttempts != 3 || cfg.RetryDelay != 250*time.Millisecond || cfg.MinInterval != time.Second {
		t.Fatalf("MaxAttempts=%d RetryDelay=%s MinInterval=%s", cfg.MaxAttempts, cfg.RetryDelay, cfg.MinInterval)
	}
	if !cfg.Overwrite {
		t.Fatalf("Overwrite=false, want true")
	}
}

func TestConfig_WithSettings(t *testing.T) {
	t.Parallel()

	st, err := settings.Default()
	if err != nil {
		t.Fatalf("settings.Default: %v", err)
	}
	cfg := Config{MaxAttempts: 2}.withSettings(st)
	if cfg.Model != st.Model || cfg.AggregateModel != st.Model {
		t.Fatalf("Model=%q AggregateModel=%q, want %q", cfg.Model, cfg.AggregateModel, st.Model)
	}
	want := analysis.RetryPolicy{MaxAttempts: 2, Delay: st.Retry.Delay, RequestTimeout: st.Retry.RequestTimeout}
	if got := cfg.retryPolicy(); got != want {
		t.Fatalf("retryPolicy=%+v, want %+v", got, want)
	}
	if got := cfg.chunkOptions(st).MaxBytes; got != analysis.DefaultMaxChunkBytes {
		t.Fatalf("MaxBytes=%d, want %d", got, analysis.DefaultMaxChunkBytes)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error for empty config")
	}
	if err := (Config{ListModels: true}).Validate(); err != nil {
		t.Fatalf("-list-models needs nothing else: %v", err)
	}
	if err := (Config{InPath: "t.txt", OutDir: "o"}).Validate(); err == nil {
		t.Fatalf("expected error for missing model")
	}
	if err := (Config{InPath: "t.txt", OutDir: "o", Model: "m", Size: "huge"}).Validate(); err == nil {
		t.Fatalf("expected error for unknown size")
	}
	if err := (Config{InPath: "t.txt", OutDir: "o", Model: "m", RetryDelay: -time.Second}).Validate(); err == nil {
		t.Fatalf("expected error for negative delay")
	}
	if err := (Config{InPath: "t.txt", OutDir: "o", Model: "m"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
