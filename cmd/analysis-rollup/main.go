package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/analysis/provider"
	"github.com/theimaginaryfoundation/digest-o-bot/logging"
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

	prompt := cfg.Prompt
	if cfg.PromptFile != "" {
		b, err := os.ReadFile(cfg.PromptFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
		prompt = strings.TrimSpace(string(b))
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := rollup(ctx, inf, rollupJob{
		Dir:       cfg.InDir,
		Model:     cfg.Model,
		Prompt:    prompt,
		Prices:    st.Models,
		Overwrite: cfg.Overwrite,
	}, analysis.WithRetryPolicy(cfg.retryPolicy()))
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "run_id=%s chunks=%d sections=%d total_tokens=%d cost_usd=%.4f summary=%s digest=%s\n",
		out.RunID, len(out.Chunks), out.Summary.Succeeded, out.Summary.Usage.TotalTokens, out.Summary.Cost.Total, out.Path, out.Artifacts.DigestPath)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InDir, "in", cfg.InDir, "Directory holding analysis_part_<i>_of_<n>.json reports")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional TOML settings file")
	fs.StringVar(&cfg.Model, "model", "", "Model for the summary request (defaults to the model recorded in the reports)")
	fs.StringVar(&cfg.Prompt, "prompt", "", "Prompt for the summary (defaults to the prompt recorded in the reports)")
	fs.StringVar(&cfg.PromptFile, "prompt-file", "", "File containing the summary prompt")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key (defaults to settings, then OPENROUTER_API_KEY, then OPENAI_API_KEY)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "OpenAI-compatible endpoint (default from settings)")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", 0, "Attempts for the summary request (0 = settings)")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", 0, "Fixed wait between attempts (0 = settings)")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", 0, "Timeout per attempt (0 = settings)")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite an existing summary report")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/analysis-rollup -in data/analysis")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/analysis-rollup -in data/analysis -model openai/gpt-4.1 -overwrite")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InDir = filepath.Clean(cfg.InDir)
	if cfg.PromptFile != "" {
		cfg.PromptFile = filepath.Clean(cfg.PromptFile)
	}
	return cfg, nil
}
