package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// BuildChunkPrompt embeds one chunk after the user prompt.
func BuildChunkPrompt(prompt string, c Chunk) string {
	if c.Total <= 1 {
		return fmt.Sprintf("%s\n\nText for analysis:\n%s", prompt, c.Text)
	}
	return fmt.Sprintf("%s\n\nText for analysis (chunk %d of %d):\n%s", prompt, c.Index, c.Total, c.Text)
}

// SectionLabel is the heading placed before a chunk's response in the aggregation prompt.
func SectionLabel(index int) string {
	return fmt.Sprintf("--- chunk %d ---", index)
}

// BuildAggregationPrompt combines the original prompt with every successful chunk response,
// one labelled section per chunk in ascending chunk order. Failed chunks are only counted.
// total is the number of chunks the text was split into; a smaller value is raised to len(results).
func BuildAggregationPrompt(prompt string, results []AnalysisResult, total int) string {
	if total < len(results) {
		total = len(results)
	}
	var ok []AnalysisResult
	for _, r := range results {
		if r.Succeeded {
			ok = append(ok, r)
		}
	}
	sortByChunk(ok)

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n")
	if len(ok) != total {
		fmt.Fprintf(&b, "Note: the text was split into %d chunks; %d could not be analysed, so you are working with the %d that succeeded.\n\n",
			total, total-len(ok), len(ok))
	} else {
		fmt.Fprintf(&b, "Note: the text was split into %d chunks because of its size; all %d succeeded.\n\n", total, len(ok))
	}
	b.WriteString("Below are the analyses of every chunk. Combine them into one analysis that answers the original request.\n")
	for _, r := range ok {
		b.WriteString("\n")
		b.WriteString(SectionLabel(r.ChunkIndex))
		b.WriteString("\n")
		b.WriteString(r.ResponseText)
		b.WriteString("\n")
	}
	return b.String()
}

func sortByChunk(rs []AnalysisResult) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].ChunkIndex < rs[j].ChunkIndex })
}

// Aggregate issues the single second-pass request over the successful chunk results.
// An empty model reuses the run's model. On failure the run stays AggregationOffered.
func (r *Run) Aggregate(ctx context.Context, model string) (AnalysisResult, error) {
	if r == nil || r.orch == nil {
		return AnalysisResult{}, errors.New("Run.Aggregate: run not started by an orchestrator")
	}
	if ctx == nil {
		return AnalysisResult{}, errors.New("Run.Aggregate: nil context")
	}
	if r.state != StateAggregationOffered {
		return AnalysisResult{}, fmt.Errorf("Run.Aggregate: state %s: %w", r.state, ErrAggregationUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return AnalysisResult{}, err
	}
	if model == "" {
		model = r.Model
	}

	req := Request{Model: model, Prompt: BuildAggregationPrompt(r.Prompt, r.Results, r.total)}
	resp, rr, err := r.orch.retrier.Do(ctx, r.orch.inf, req)
	if err != nil {
		log.Warn().Err(err).Int("attempts", rr.Attempts).Msg("aggregation failed")
		return AnalysisResult{}, fmt.Errorf("Run.Aggregate: %w", err)
	}

	sum := AnalysisResult{
		ChunkIndex:     0,
		Total:          r.total,
		Model:          resp.Model,
		RequestedModel: model,
		Prompt:         r.Prompt,
		ResponseText:   resp.Text,
		Usage:          resp.Usage,
		Succeeded:      true,
		Attempts:       rr.Attempts,
		Timestamp:      r.orch.now().UTC(),
	}
	r.Summary = &sum
	r.state = StateAggregationComplete
	log.Info().
		Int("sections", r.SuccessCount()).
		Int("chunks", r.total).
		Int64("total_tokens", resp.Usage.TotalTokens).
		Msg("aggregation complete")
	return sum, nil
}

// Skip declines the offered aggregation.
func (r *Run) Skip() error {
	if r == nil || r.state != StateAggregationOffered {
		state := RunState("")
		if r != nil {
			state = r.state
		}
		return fmt.Errorf("Run.Skip: state %s: %w", state, ErrAggregationUnavailable)
	}
	r.state = StateAggregationSkipped
	return nil
}
