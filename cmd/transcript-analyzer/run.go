package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/analysis/report"
)

// job is one analysis of one transcript.
type job struct {
	RunID     string
	Source    string
	OutDir    string
	Text      string
	Prompt    string
	Model     string
	AggModel  string
	Aggregate bool
	Chunking  analysis.ChunkOptions
	Prices    analysis.PriceTable
	Overwrite bool
	Log       zerolog.Logger
}

type outcome struct {
	Run       *analysis.Run
	Chunks    []report.Document
	Summary   *report.Document
	Artifacts report.Artifacts
}

// errAggregationFailed means chunk reports are on disk but the summary request failed.
var errAggregationFailed = errors.New("aggregation failed")

// checkOutDir refuses to mix a new run into a directory that already holds reports.
func checkOutDir(dir string, overwrite bool) error {
	if overwrite {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "analysis_*.json"))
	if err != nil {
		return err
	}
	if len(matches) > 0 {
		return fmt.Errorf("%s already contains analysis reports (pass -overwrite)", dir)
	}
	return nil
}

// analyze splits the transcript, writes a report as each chunk finishes, then aggregates
// (or skips) and writes the run index and digest.
func analyze(ctx context.Context, inf analysis.Inferencer, j job, opts ...analysis.Option) (outcome, error) {
	var out outcome
	var writeErr error

	// A failed report write stops the run before the next chunk is sent.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := func(res analysis.AnalysisResult) {
		doc := report.NewChunkDocument(j.RunID, res, j.Prices)
		out.Chunks = append(out.Chunks, doc)
		if writeErr != nil {
			return
		}
		if _, err := report.WriteChunkReport(j.OutDir, doc, j.Overwrite); err != nil {
			writeErr = err
			cancel()
			return
		}
		j.Log.Info().
			Int("chunk", res.ChunkIndex).
			Int("total", res.Total).
			Bool("succeeded", res.Succeeded).
			Int("attempts", res.Attempts).
			Msg("chunk report written")
	}
	opts = append(opts,
		analysis.OnChunkStart(func(c analysis.Chunk) {
			fmt.Fprintf(os.Stderr, "progress transcript-analyzer: chunk %d/%d (%d bytes)\n", c.Index, c.Total, len(c.Text))
		}),
		analysis.OnChunkDone(progress),
	)

	orch := analysis.NewOrchestrator(inf, opts...)
	run, runErr := orch.AnalyzeText(ctx, j.Text, j.Model, j.Prompt, j.Chunking)
	out.Run = run
	if writeErr != nil {
		return out, writeErr
	}
	if run == nil {
		return out, runErr
	}
	if runErr != nil && !errors.Is(runErr, analysis.ErrRunExhausted) {
		return out, runErr
	}

	var aggErr error
	if run.State() == analysis.StateAggregationOffered {
		if j.Aggregate && len(run.Results) > 1 {
			sum, err := run.Aggregate(ctx, j.AggModel)
			if err != nil {
				aggErr = fmt.Errorf("%w: %v", errAggregationFailed, err)
			} else {
				doc := report.NewAggregateDocument(j.RunID, sum, run.SuccessCount(), j.Prices)
				if _, err := report.WriteAggregateReport(j.OutDir, doc, j.Overwrite); err != nil {
					return out, err
				}
				out.Summary = &doc
			}
		} else if err := run.Skip(); err != nil {
			return out, err
		}
	}

	a, err := report.WriteRunArtifacts(j.OutDir, report.Digest{
		RunID:   j.RunID,
		Source:  j.Source,
		Chunks:  out.Chunks,
		Summary: out.Summary,
	}, true)
	if err != nil {
		return out, err
	}
	out.Artifacts = a

	if runErr != nil {
		return out, runErr
	}
	return out, aggErr
}

func (o outcome) totals() (analysis.Usage, float64) {
	var cost float64
	for _, c := range o.Chunks {
		cost += c.Cost.Total
	}
	if o.Summary != nil {
		cost += o.Summary.Cost.Total
	}
	if o.Run == nil {
		return analysis.Usage{}, cost
	}
	return o.Run.Usage(), cost
}

func listModels(prices analysis.PriceTable) string {
	var b strings.Builder
	for _, m := range prices {
		fmt.Fprintf(&b, "%s\t%s\n", m.ID, m.Label())
	}
	return b.String()
}
