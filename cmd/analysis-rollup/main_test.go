package main

import (
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/analysis/report"
	"github.com/theimaginaryfoundation/digest-o-bot/settings"
)

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("analysis-rollup", flag.ContinueOnError)
	cfg, err := parseFlags(fs, nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.InDir == "" {
		t.Fatalf("expected default InDir")
	}
	if cfg.Model != "" || cfg.Prompt != "" {
		t.Fatalf("Model=%q Prompt=%q, want empty", cfg.Model, cfg.Prompt)
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("analysis-rollup", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{"-in", "r/", "-model", "openai/gpt-4.1", "-max-attempts", "2", "-overwrite"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.InDir != "r" || cfg.Model != "openai/gpt-4.1" || cfg.MaxAttempts != 2 || !cfg.Overwrite {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error for empty config")
	}
	if err := (Config{InDir: "r", Prompt: "p", PromptFile: "f"}).Validate(); err == nil {
		t.Fatalf("expected error for -prompt with -prompt-file")
	}
	st, err := settings.Default()
	if err != nil {
		t.Fatalf("settings.Default: %v", err)
	}
	cfg := Config{InDir: "r"}.withSettings(st)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.retryPolicy() != st.RetryPolicy() {
		t.Fatalf("retryPolicy=%+v, want settings policy", cfg.retryPolicy())
	}
}

func writeReports(t *testing.T, dir string, ok ...bool) {
	t.Helper()
	for i, succeeded := range ok {
		res := analysis.AnalysisResult{
			ChunkIndex: i + 1,
			Total:      len(ok),
			Model:      "openai/gpt-4.1-mini",
			Prompt:     "Who argues most?",
			Attempts:   1,
			Succeeded:  succeeded,
			Timestamp:  time.Date(2024, 5, 1, 12, 0, i, 0, time.UTC),
		}
		if succeeded {
			res.ResponseText = "part " + string(rune('A'+i))
		} else {
			res.Error = "failed after 5 attempts"
		}
		_, err := report.WriteChunkReport(dir, report.NewChunkDocument("run-9", res, nil), false)
		require.NoError(t, err)
	}
}

func TestRollup_AggregatesSucceededSections(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeReports(t, dir, true, false, true)

	var seen analysis.Request
	inf := analysis.InferencerFunc(func(_ context.Context, req analysis.Request) (analysis.Response, error) {
		seen = req
		return analysis.Response{Model: req.Model, Text: "overall", Usage: analysis.Usage{TotalTokens: 42}}, nil
	})

	out, err := rollup(context.Background(), inf, rollupJob{Dir: dir, Prices: analysis.DefaultPriceTable()})
	require.NoError(t, err)
	require.Equal(t, "run-9", out.RunID)
	require.Equal(t, "openai/gpt-4.1-mini", seen.Model)
	require.True(t, strings.HasPrefix(seen.Prompt, "Who argues most?"))
	require.Contains(t, seen.Prompt, analysis.SectionLabel(1)+"\npart A")
	require.Contains(t, seen.Prompt, analysis.SectionLabel(3)+"\npart C")
	require.NotContains(t, seen.Prompt, analysis.SectionLabel(2))

	require.Equal(t, 2, out.Summary.Succeeded)
	require.Equal(t, "analysis_summary_of_2_of_3.json", filepath.Base(out.Path))
	require.Equal(t, "GPT-4.1 Mini", out.Summary.ModelName)

	_, err = rollup(context.Background(), inf, rollupJob{Dir: dir})
	require.Error(t, err, "summary exists without overwrite")
	_, err = rollup(context.Background(), inf, rollupJob{Dir: dir, Model: "qwen/qwen-turbo", Overwrite: true})
	require.NoError(t, err)
	require.Equal(t, "qwen/qwen-turbo", seen.Model)
}

func TestRollup_AllFailed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeReports(t, dir, false, false)

	inf := analysis.InferencerFunc(func(context.Context, analysis.Request) (analysis.Response, error) {
		t.Fatalf("no request expected")
		return analysis.Response{}, nil
	})
	_, err := rollup(context.Background(), inf, rollupJob{Dir: dir})
	require.ErrorIs(t, err, analysis.ErrRunExhausted)
}

func TestRollup_RefusesPartialRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i := 1; i <= 2; i++ {
		res := analysis.AnalysisResult{
			ChunkIndex: i, Total: 5, Model: "m", Prompt: "p", Attempts: 1,
			Succeeded: true, ResponseText: "ok",
			Timestamp: time.Date(2024, 5, 1, 12, 0, i, 0, time.UTC),
		}
		_, err := report.WriteChunkReport(dir, report.NewChunkDocument("run-cut", res, nil), false)
		require.NoError(t, err)
	}

	inf := analysis.InferencerFunc(func(context.Context, analysis.Request) (analysis.Response, error) {
		t.Fatalf("no request expected")
		return analysis.Response{}, nil
	})
	_, err := rollup(context.Background(), inf, rollupJob{Dir: dir})
	require.ErrorIs(t, err, analysis.ErrRunIncomplete)
}

func TestRollup_DefaultsToRequestedModel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i, ok := range []bool{false, true} {
		res := analysis.AnalysisResult{
			ChunkIndex:     i + 1,
			Total:          2,
			Model:          "openai/gpt-4.1-mini-2025-04-14",
			RequestedModel: "openai/gpt-4.1-mini",
			Prompt:         "p",
			Attempts:       1,
			Succeeded:      ok,
			Timestamp:      time.Date(2024, 5, 1, 12, 0, i, 0, time.UTC),
		}
		if ok {
			res.ResponseText = "part"
		} else {
			res.Model = res.RequestedModel
			res.Error = "boom"
		}
		_, err := report.WriteChunkReport(dir, report.NewChunkDocument("run-dated", res, nil), false)
		require.NoError(t, err)
	}

	var seen analysis.Request
	inf := analysis.InferencerFunc(func(_ context.Context, req analysis.Request) (analysis.Response, error) {
		seen = req
		return analysis.Response{Model: "openai/gpt-4.1-mini-2025-04-14", Text: "overall"}, nil
	})
	out, err := rollup(context.Background(), inf, rollupJob{Dir: dir, Prices: analysis.DefaultPriceTable()})
	require.NoError(t, err)
	require.Equal(t, "openai/gpt-4.1-mini", seen.Model)
	require.Equal(t, "openai/gpt-4.1-mini", out.Summary.RequestedModel)
	require.Contains(t, seen.Prompt, "split into 2 chunks; 1 could not be analysed")
}
