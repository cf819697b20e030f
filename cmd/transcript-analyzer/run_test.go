package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/analysis/report"
)

var threeParagraphs = strings.Repeat("x", 30) + "\n\n" + strings.Repeat("y", 30) + "\n\n" + strings.Repeat("z", 30)

func testJob(dir, text string) job {
	return job{
		RunID:     "run-test",
		Source:    "transcript.txt",
		OutDir:    dir,
		Text:      text,
		Prompt:    "Summarise.",
		Model:     "openai/gpt-4.1-mini",
		AggModel:  "openai/gpt-4.1-mini",
		Aggregate: true,
		Chunking:  analysis.ChunkOptions{MaxBytes: 40},
		Prices:    analysis.DefaultPriceTable(),
		Log:       zerolog.Nop(),
	}
}

// scripted answers every chunk and aggregation prompt unless fail says otherwise.
func scripted(calls *int32, fail func(prompt string) error) analysis.Inferencer {
	return analysis.InferencerFunc(func(_ context.Context, req analysis.Request) (analysis.Response, error) {
		atomic.AddInt32(calls, 1)
		if err := fail(req.Prompt); err != nil {
			return analysis.Response{}, err
		}
		text := "chunk analysis"
		if strings.Contains(req.Prompt, "--- chunk") {
			text = "combined summary"
		}
		return analysis.Response{
			Model: req.Model,
			Text:  text,
			Usage: analysis.Usage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110},
		}, nil
	})
}

func fastRetries() []analysis.Option {
	return []analysis.Option{
		analysis.WithRetryPolicy(analysis.RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond, RequestTimeout: time.Second}),
		analysis.WithSleep(func(time.Duration) {}),
	}
}

func TestAnalyze_PartialFailureAggregates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var calls int32
	inf := scripted(&calls, func(p string) error {
		if strings.Contains(p, "(chunk 2 of 3)") {
			return analysis.ClassifyStatus(413, "request entity too large")
		}
		return nil
	})

	out, err := analyze(context.Background(), inf, testJob(dir, threeParagraphs), fastRetries()...)
	require.NoError(t, err)
	require.Equal(t, analysis.StateAggregationComplete, out.Run.State())
	require.Equal(t, 2, out.Run.SuccessCount())
	require.EqualValues(t, 4, atomic.LoadInt32(&calls))

	for _, name := range []string{
		"analysis_part_1_of_3.json",
		"analysis_part_2_of_3.json",
		"analysis_part_3_of_3.json",
		"analysis_summary_of_2_of_3.json",
		report.IndexFileName,
		report.DigestFileName,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}

	failed, err := report.ReadDocument(filepath.Join(dir, "analysis_part_2_of_3.json"))
	require.NoError(t, err)
	require.Equal(t, report.StatusFailed, failed.Status)
	require.Equal(t, 1, failed.Attempts)

	require.NotNil(t, out.Summary)
	require.Equal(t, "combined summary", out.Summary.ResponseText)

	usage, cost := out.totals()
	require.EqualValues(t, 330, usage.TotalTokens)
	require.Greater(t, cost, 0.0)
}

func TestAnalyze_SingleChunkSkipsAggregation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var calls int32
	out, err := analyze(context.Background(), scripted(&calls, func(string) error { return nil }), testJob(dir, "short"), fastRetries()...)
	require.NoError(t, err)
	require.Equal(t, analysis.StateAggregationSkipped, out.Run.State())
	require.Nil(t, out.Summary)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	matches, err := filepath.Glob(filepath.Join(dir, "analysis_summary_*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestAnalyze_ExhaustedStillWritesIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var calls int32
	inf := scripted(&calls, func(string) error { return analysis.ClassifyStatus(401, "bad key") })

	out, err := analyze(context.Background(), inf, testJob(dir, threeParagraphs), fastRetries()...)
	require.ErrorIs(t, err, analysis.ErrRunExhausted)
	require.Equal(t, analysis.StateExhausted, out.Run.State())
	require.Len(t, out.Chunks, 3)
	_, err = os.Stat(filepath.Join(dir, report.IndexFileName))
	require.NoError(t, err)
}

func TestAnalyze_AggregationFailureKeepsChunks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var calls int32
	inf := scripted(&calls, func(p string) error {
		if strings.Contains(p, "--- chunk") {
			return analysis.ClassifyStatus(400, "context length exceeded")
		}
		return nil
	})

	out, err := analyze(context.Background(), inf, testJob(dir, threeParagraphs), fastRetries()...)
	require.True(t, errors.Is(err, errAggregationFailed))
	require.Equal(t, analysis.StateAggregationOffered, out.Run.State())

	docs, err := report.LoadChunkReports(dir)
	require.NoError(t, err)
	require.Len(t, docs, 3)
}

func TestAnalyze_ReportWriteFailureStopsRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "analysis_part_1_of_3.json"), []byte("{}"), 0o644))

	var calls int32
	_, err := analyze(context.Background(), scripted(&calls, func(string) error { return nil }), testJob(dir, threeParagraphs), fastRetries()...)
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCheckOutDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, checkOutDir(dir, false))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "analysis_part_1_of_1.json"), []byte("{}"), 0o644))
	require.Error(t, checkOutDir(dir, false))
	require.NoError(t, checkOutDir(dir, true))
}

func TestListModels(t *testing.T) {
	t.Parallel()

	out := listModels(analysis.DefaultPriceTable())
	require.Equal(t, 10, strings.Count(out, "\n"))
	require.Contains(t, out, "qwen/qwen-turbo\tQwen Turbo ($0.05/M tokens)")
}
