package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/analysis/provider"
	"github.com/theimaginaryfoundation/digest-o-bot/analysis/report"
	"github.com/theimaginaryfoundation/digest-o-bot/logging"
	"github.com/theimaginaryfoundation/digest-o-bot/prompts"
	"github.com/theimaginaryfoundation/digest-o-bot/settings"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	st, err := settings.Load(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := logging.Setup(st.Log.Level, st.Log.Console, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	cfg = cfg.withSettings(st)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if cfg.ListModels {
		fmt.Fprint(os.Stdout, listModels(st.Models))
		return
	}
	if cfg.SchemaPath != "" {
		if err := report.WriteSchema(cfg.SchemaPath, cfg.Overwrite); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	lib := prompts.Builtin()
	if cfg.PromptLibrary != "" {
		lib, err = prompts.Load(cfg.PromptLibrary)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
	}
	prompt, err := prompts.Resolve(lib, cfg.Prompt, cfg.PromptFile, cfg.PromptName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	pcfg := st.ProviderConfig(cfg.APIKey)
	pcfg.BaseURL = cfg.BaseURL
	if pcfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENROUTER_API_KEY (or OPENAI_API_KEY, DIGEST_PROVIDER__API_KEY, -api-key)")
		os.Exit(2)
	}
	inf, err := provider.NewChatCompletions(pcfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	b, err := os.ReadFile(cfg.InPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("mkdir -out: %w", err).Error())
		os.Exit(2)
	}
	if err := checkOutDir(cfg.OutDir, cfg.Overwrite); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := report.NewRunID()
	j := job{
		RunID:     runID,
		Source:    cfg.InPath,
		OutDir:    cfg.OutDir,
		Text:      string(b),
		Prompt:    prompt,
		Model:     cfg.Model,
		AggModel:  cfg.AggregateModel,
		Aggregate: cfg.Aggregate,
		Chunking:  cfg.chunkOptions(st),
		Prices:    st.Models,
		Overwrite: cfg.Overwrite,
		Log:       logging.WithRun(runID),
	}
	out, err := analyze(ctx, inf, j,
		analysis.WithRetryPolicy(cfg.retryPolicy()),
		analysis.WithMinInterval(cfg.MinInterval),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if errors.Is(err, errAggregationFailed) {
			fmt.Fprintf(os.Stderr, "chunk reports kept; retry with: go run ./cmd/analysis-rollup -in %s\n", cfg.OutDir)
		}
		os.Exit(1)
	}

	usage, cost := out.totals()
	fmt.Fprintf(os.Stdout, "run_id=%s chunks=%d succeeded=%d state=%s total_tokens=%d cost_usd=%.4f out_dir=%s digest=%s\n",
		runID, len(out.Run.Results), out.Run.SuccessCount(), out.Run.State(), usage.TotalTokens, cost, cfg.OutDir, out.Artifacts.DigestPath)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Transcript text file")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Directory for per-chunk reports, the summary report, index.jsonl and digest.md")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional TOML settings file")

	fs.StringVar(&cfg.Model, "model", "", "Model id, e.g. openai/gpt-4.1-mini (default from settings; see -list-models)")
	fs.StringVar(&cfg.AggregateModel, "aggregate-model", "", "Model for the summary request (defaults to -model)")
	fs.BoolVar(&cfg.Aggregate, "aggregate", cfg.Aggregate, "Combine chunk analyses into one summary when the transcript was split")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key (defaults to settings, then OPENROUTER_API_KEY, then OPENAI_API_KEY)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "OpenAI-compatible endpoint (default from settings: OpenRouter)")

	fs.StringVar(&cfg.Prompt, "prompt", "", "Analysis prompt text")
	fs.StringVar(&cfg.PromptFile, "prompt-file", "", "File containing the analysis prompt")
	fs.StringVar(&cfg.PromptName, "prompt-name", "", "Prompt name from the prompt library")
	fs.StringVar(&cfg.PromptLibrary, "prompt-library", "", "YAML prompt library (adds to the built-in prompts)")

	fs.IntVar(&cfg.MaxBytes, "max-bytes", 0, "Max UTF-8 bytes per chunk (0 = -size or settings)")
	fs.StringVar(&cfg.Size, "size", "", "Chunk size preset: full|medium|small")

	fs.IntVar(&cfg.MaxAttempts, "max-attempts", 0, "Attempts per request (0 = settings)")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", 0, "Fixed wait between attempts (0 = settings)")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", 0, "Timeout per attempt (0 = settings)")
	fs.DurationVar(&cfg.MinInterval, "min-interval", 0, "Minimum spacing between requests (0 = settings)")

	fs.StringVar(&cfg.SchemaPath, "schema-out", "", "Also write the report JSON schema to this path")
	fs.BoolVar(&cfg.ListModels, "list-models", false, "Print the model price table and exit")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing reports")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/transcript-analyzer -list-models")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/transcript-analyzer -in data/transcript.txt -out data/analysis -prompt-name timeline")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/transcript-analyzer -model qwen/qwen-turbo -size small -aggregate=false -prompt \"Who argues most?\"")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutDir = filepath.Clean(cfg.OutDir)
	if cfg.PromptFile != "" {
		cfg.PromptFile = filepath.Clean(cfg.PromptFile)
	}
	return cfg, nil
}
