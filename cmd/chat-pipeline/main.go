package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/theimaginaryfoundation/digest-o-bot/archive/fileutils"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stages := allStages
	if cfg.OnlyStage != "" {
		stages = []string{strings.ToLower(strings.TrimSpace(cfg.OnlyStage))}
	} else if cfg.FromStage != "" {
		stages = stagesFrom(stages, cfg.FromStage)
	}

	l := newLayout(cfg.BaseDir)
	ran := 0
	for _, stage := range stages {
		args, skip := stageArgs(cfg, l, stage)
		if skip != "" {
			fmt.Fprintln(os.Stdout, "skip "+stage+": "+skip)
			continue
		}
		if cfg.DryRun {
			fmt.Fprintln(os.Stdout, "go "+strings.Join(args, " "))
			continue
		}
		if err := runGo(ctx, args...); err != nil {
			os.Exit(1)
		}
		ran++
	}

	fmt.Fprintf(os.Stdout, "stages_run=%d base_dir=%s transcript=%s analysis=%s\n", ran, cfg.BaseDir, l.Transcript, l.Analysis)
}

// stageArgs builds the `go run` arguments for one stage, or explains why the stage is skipped.
func stageArgs(cfg Config, l layout, stage string) ([]string, string) {
	var args []string
	switch stage {
	case "extract":
		args = []string{"run", "./cmd/archive-extractor", "-in", filepath.Clean(cfg.ExportDir), "-out", l.Shards}
		if cfg.Overwrite {
			args = append(args, "-overwrite")
		} else {
			args = append(args, "-resume")
		}
		if cfg.Pretty {
			args = append(args, "-pretty")
		}
	case "merge":
		if !cfg.Overwrite && fileutils.FileExists(l.Merged) {
			return nil, "merged archive already exists"
		}
		args = []string{"run", "./cmd/shard-merger", "-in", l.Shards, "-out", l.Merged}
		if cfg.Overwrite {
			args = append(args, "-overwrite")
		}
	case "format":
		if !cfg.Overwrite && fileutils.FileExists(l.Transcript) {
			return nil, "transcript already exists"
		}
		args = []string{"run", "./cmd/transcript-formatter", "-in", l.Merged, "-out", l.Transcript}
		if cfg.Overwrite {
			args = append(args, "-overwrite")
		}
	case "analyze":
		if !cfg.Overwrite && dirHasReports(l.Analysis) {
			return nil, "analysis reports already exist"
		}
		args = []string{"run", "./cmd/transcript-analyzer", "-in", l.Transcript, "-out", l.Analysis,
			fmt.Sprintf("-aggregate=%t", cfg.Aggregate)}
		if cfg.Model != "" {
			args = append(args, "-model", cfg.Model)
		}
		if cfg.PromptName != "" {
			args = append(args, "-prompt-name", cfg.PromptName)
		}
		if cfg.PromptFile != "" {
			args = append(args, "-prompt-file", cfg.PromptFile)
		}
		if cfg.Size != "" {
			args = append(args, "-size", cfg.Size)
		}
		if cfg.Overwrite {
			args = append(args, "-overwrite")
		}
	default:
		return nil, "unknown stage"
	}
	if cfg.ConfigPath != "" {
		args = append(args, "-config", cfg.ConfigPath)
	}
	return args, ""
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ExportDir, "in", cfg.ExportDir, "Directory of exported HTML shards")
	fs.StringVar(&cfg.BaseDir, "base-dir", cfg.BaseDir, "Base output directory (shards/, merged.json, transcript.txt, analysis/)")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional TOML settings file passed to every stage")
	fs.StringVar(&cfg.Model, "model", "", "Model id for the analyze stage (default from settings)")
	fs.StringVar(&cfg.PromptName, "prompt-name", "", "Prompt library entry for the analyze stage")
	fs.StringVar(&cfg.PromptFile, "prompt-file", "", "Prompt file for the analyze stage")
	fs.StringVar(&cfg.Size, "size", "", "Chunk size preset for the analyze stage: full|medium|small")
	fs.BoolVar(&cfg.Aggregate, "aggregate", cfg.Aggregate, "Combine chunk analyses into one summary")
	fs.StringVar(&cfg.FromStage, "from-stage", "", "Start at stage: extract|merge|format|analyze")
	fs.StringVar(&cfg.OnlyStage, "only-stage", "", "Run only one stage: extract|merge|format|analyze")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print per-shard JSON")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing outputs (disables resume and skip behavior)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Print the stage commands instead of running them")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/chat-pipeline -in export/messages -base-dir data")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/chat-pipeline -from-stage analyze -model openai/gpt-4.1 -prompt-name timeline")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.PromptFile != "" {
		cfg.PromptFile = filepath.Clean(cfg.PromptFile)
	}
	return cfg, nil
}

func runGo(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "command failed:", "go "+strings.Join(args, " "))
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		return err
	}
	fmt.Fprintln(os.Stdout, "ok:", "go "+strings.Join(args, " "), "(", time.Since(start).Round(time.Millisecond).String()+")")
	return nil
}

func stagesFrom(stages []string, from string) []string {
	from = strings.ToLower(strings.TrimSpace(from))
	for i, s := range stages {
		if s == from {
			return stages[i:]
		}
	}
	return stages
}

func dirHasReports(dir string) bool {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range ents {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "analysis_") && strings.HasSuffix(e.Name(), ".json") {
			return true
		}
	}
	return false
}
