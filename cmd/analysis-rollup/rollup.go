package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/analysis/report"
)

type rollupJob struct {
	Dir       string
	Model     string
	Prompt    string
	Prices    analysis.PriceTable
	Overwrite bool
}

type rollupOutcome struct {
	RunID     string
	Chunks    []report.Document
	Summary   report.Document
	Path      string
	Artifacts report.Artifacts
}

// rollup aggregates the chunk reports of the latest run in j.Dir into a summary report.
func rollup(ctx context.Context, inf analysis.Inferencer, j rollupJob, opts ...analysis.Option) (rollupOutcome, error) {
	docs, err := report.LoadChunkReports(j.Dir)
	if err != nil {
		return rollupOutcome{}, err
	}
	out := rollupOutcome{RunID: docs[0].RunID, Chunks: docs}

	model := j.Model
	if model == "" {
		model = report.RequestedModel(docs)
	}
	prompt := j.Prompt
	if prompt == "" {
		prompt = docs[0].Prompt
	}
	if model == "" {
		return out, errors.New("rollup: chunk reports carry no model; pass -model")
	}

	orch := analysis.NewOrchestrator(inf, opts...)
	run, err := orch.Restore(report.Results(docs), model, prompt)
	if err != nil {
		return out, fmt.Errorf("rollup: %w", err)
	}
	log.Info().
		Str("run_id", out.RunID).
		Int("chunks", len(run.Results)).
		Int("succeeded", run.SuccessCount()).
		Str("model", model).
		Msg("aggregating chunk reports")

	sum, err := run.Aggregate(ctx, model)
	if err != nil {
		return out, err
	}
	out.Summary = report.NewAggregateDocument(out.RunID, sum, run.SuccessCount(), j.Prices)
	out.Path, err = report.WriteAggregateReport(j.Dir, out.Summary, j.Overwrite)
	if err != nil {
		return out, err
	}

	out.Artifacts, err = report.WriteRunArtifacts(j.Dir, report.Digest{
		RunID:   out.RunID,
		Chunks:  docs,
		Summary: &out.Summary,
	}, true)
	return out, err
}
