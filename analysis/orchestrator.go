package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RunState is the lifecycle of one orchestration run.
type RunState string

const (
	StatePending             RunState = "pending"
	StateSubmitting          RunState = "submitting"
	StateAllAttempted        RunState = "all_attempted"
	StateAggregationOffered  RunState = "aggregation_offered"
	StateExhausted           RunState = "exhausted"
	StateAggregationComplete RunState = "aggregation_complete"
	StateAggregationSkipped  RunState = "aggregation_skipped"
	// StateAbandoned means the caller cancelled between chunks.
	StateAbandoned RunState = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	switch s {
	case StateExhausted, StateAggregationComplete, StateAggregationSkipped, StateAbandoned:
		return true
	}
	return false
}

// Orchestrator submits chunks one at a time to an Inferencer.
type Orchestrator struct {
	inf     Inferencer
	retrier Retrier
	now     func() time.Time

	onChunkStart func(Chunk)
	onChunkDone  func(AnalysisResult)
}

type Option func(*Orchestrator)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retrier.Policy = p }
}

// WithMinInterval spaces consecutive requests at least d apart.
func WithMinInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.retrier.Limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithSleep replaces the wait between retry attempts.
func WithSleep(fn func(time.Duration)) Option {
	return func(o *Orchestrator) { o.retrier.Sleep = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

func OnChunkStart(fn func(Chunk)) Option {
	return func(o *Orchestrator) { o.onChunkStart = fn }
}

func OnChunkDone(fn func(AnalysisResult)) Option {
	return func(o *Orchestrator) { o.onChunkDone = fn }
}

func NewOrchestrator(inf Inferencer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		inf:     inf,
		retrier: Retrier{Policy: DefaultRetryPolicy()},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run is the state of one orchestration over an ordered chunk list.
type Run struct {
	orch *Orchestrator

	Model   string
	Prompt  string
	Chunks  []Chunk
	Results []AnalysisResult
	Summary *AnalysisResult

	total int
	state RunState
}

func (r *Run) State() RunState { return r.state }

// Total is the number of chunks the text was split into.
func (r *Run) Total() int { return r.total }

// Succeeded returns the successful chunk results in chunk order.
func (r *Run) Succeeded() []AnalysisResult {
	var out []AnalysisResult
	for _, res := range r.Results {
		if res.Succeeded {
			out = append(out, res)
		}
	}
	return out
}

func (r *Run) SuccessCount() int { return len(r.Succeeded()) }

// Usage sums token usage over all chunk results and the summary.
func (r *Run) Usage() Usage {
	var u Usage
	for _, res := range r.Results {
		u = u.Add(res.Usage)
	}
	if r.Summary != nil {
		u = u.Add(r.Summary.Usage)
	}
	return u
}

// Run submits every chunk in order. A failed chunk is recorded and the loop moves on.
// Cancellation of ctx is honoured between chunks only; the returned Run is then Abandoned.
// If no chunk succeeds the Run is Exhausted and ErrRunExhausted is returned.
func (o *Orchestrator) Run(ctx context.Context, chunks []Chunk, model, prompt string) (*Run, error) {
	if ctx == nil {
		return nil, errors.New("Orchestrator.Run: nil context")
	}
	if o == nil || o.inf == nil {
		return nil, errors.New("Orchestrator.Run: nil inferencer")
	}
	if model == "" {
		return nil, errors.New("Orchestrator.Run: empty model")
	}
	if len(chunks) == 0 {
		return nil, errors.New("Orchestrator.Run: no chunks")
	}

	run := &Run{
		orch:    o,
		Model:   model,
		Prompt:  prompt,
		Chunks:  chunks,
		Results: make([]AnalysisResult, 0, len(chunks)),
		total:   len(chunks),
		state:   StatePending,
	}

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			run.state = StateAbandoned
			return run, fmt.Errorf("Orchestrator.Run: abandoned after %d of %d chunks: %w", i, len(chunks), err)
		}
		if c.Index == 0 {
			c.Index = i + 1
		}
		if c.Total == 0 {
			c.Total = len(chunks)
		}

		run.state = StateSubmitting
		if o.onChunkStart != nil {
			o.onChunkStart(c)
		}

		res := o.submitChunk(ctx, c, model, prompt)
		run.Results = append(run.Results, res)
		if o.onChunkDone != nil {
			o.onChunkDone(res)
		}
	}

	run.state = StateAllAttempted
	ok := run.SuccessCount()
	log.Info().
		Str("model", model).
		Int("chunks", len(chunks)).
		Int("succeeded", ok).
		Msg("all chunks attempted")

	if ok == 0 {
		run.state = StateExhausted
		return run, ErrRunExhausted
	}
	run.state = StateAggregationOffered
	return run, nil
}

func (o *Orchestrator) submitChunk(ctx context.Context, c Chunk, model, prompt string) AnalysisResult {
	req := Request{Model: model, Prompt: BuildChunkPrompt(prompt, c)}
	resp, rr, err := o.retrier.Do(ctx, o.inf, req)

	res := AnalysisResult{
		ChunkIndex:     c.Index,
		Total:          c.Total,
		Model:          model,
		RequestedModel: model,
		Prompt:         prompt,
		Attempts:       rr.Attempts,
		Timestamp:      o.now().UTC(),
	}
	if err != nil {
		res.Error = err.Error()
		log.Warn().Err(err).
			Int("chunk", c.Index).
			Int("total", c.Total).
			Int("attempts", rr.Attempts).
			Msg("chunk analysis failed")
		return res
	}

	res.Succeeded = true
	res.Model = resp.Model
	res.ResponseText = resp.Text
	res.Usage = resp.Usage
	log.Info().
		Int("chunk", c.Index).
		Int("total", c.Total).
		Int("bytes", len(c.Text)).
		Int64("total_tokens", resp.Usage.TotalTokens).
		Msg("chunk analysed")
	return res
}

// Restore rebuilds a finished run from previously recorded chunk results so that it can
// still be aggregated or skipped. The results must cover chunks 1..N of one run exactly once;
// otherwise the run is returned Abandoned with ErrRunIncomplete.
func (o *Orchestrator) Restore(results []AnalysisResult, model, prompt string) (*Run, error) {
	if o == nil || o.inf == nil {
		return nil, errors.New("Orchestrator.Restore: nil inferencer")
	}
	if len(results) == 0 {
		return nil, errors.New("Orchestrator.Restore: no results")
	}
	rs := make([]AnalysisResult, len(results))
	copy(rs, results)
	sortByChunk(rs)

	run := &Run{orch: o, Model: model, Prompt: prompt, Results: rs, state: StateAllAttempted}
	total, err := recordedTotal(rs)
	if err != nil {
		run.total = total
		run.state = StateAbandoned
		return run, fmt.Errorf("Orchestrator.Restore: %w", err)
	}
	for i := range rs {
		if rs[i].Total == 0 {
			rs[i].Total = total
		}
	}
	run.total = total
	if run.SuccessCount() == 0 {
		run.state = StateExhausted
		return run, ErrRunExhausted
	}
	run.state = StateAggregationOffered
	return run, nil
}

// recordedTotal returns the chunk count shared by rs, which must be sorted by chunk index.
// Results without a total take len(rs).
func recordedTotal(rs []AnalysisResult) (int, error) {
	total := 0
	for _, r := range rs {
		if r.Total == 0 {
			continue
		}
		if total != 0 && r.Total != total {
			return total, fmt.Errorf("chunk totals %d and %d disagree: %w", total, r.Total, ErrRunIncomplete)
		}
		total = r.Total
	}
	if total == 0 {
		total = len(rs)
	}
	if len(rs) != total {
		return total, fmt.Errorf("%d of %d chunks recorded: %w", len(rs), total, ErrRunIncomplete)
	}
	for i, r := range rs {
		if r.ChunkIndex != i+1 {
			return total, fmt.Errorf("chunk %d missing: %w", i+1, ErrRunIncomplete)
		}
	}
	return total, nil
}

// AnalyzeText splits text and runs every chunk. A text within budget is the single-chunk case.
func (o *Orchestrator) AnalyzeText(ctx context.Context, text, model, prompt string, opts ChunkOptions) (*Run, error) {
	chunks := SplitText(text, opts)
	if len(chunks) == 0 {
		return nil, errors.New("Orchestrator.AnalyzeText: empty text")
	}
	return o.Run(ctx, chunks, model, prompt)
}
