package analysis

import (
	"context"
	"time"
)

// Request is one inference call: a model id and the full prompt text.
type Request struct {
	Model  string
	Prompt string
}

type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// Response is what the endpoint returned. Model echoes the model that actually served the call.
type Response struct {
	Model string
	Text  string
	Usage Usage
}

// Inferencer sends one request to a remote model.
// Implementations return *ServiceError for failures they can classify.
type Inferencer interface {
	Infer(ctx context.Context, req Request) (Response, error)
}

// InferencerFunc adapts a function to Inferencer.
type InferencerFunc func(ctx context.Context, req Request) (Response, error)

func (f InferencerFunc) Infer(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }

// AnalysisResult is the outcome of one chunk request, or of the aggregation request when ChunkIndex is 0.
type AnalysisResult struct {
	ChunkIndex int    `json:"chunk_index"`
	Total      int    `json:"total"`
	Model      string `json:"model_id"`
	// RequestedModel is the id the request named; Model is the id the endpoint echoed.
	RequestedModel string    `json:"requested_model"`
	Prompt         string    `json:"prompt"`
	ResponseText   string    `json:"response_text"`
	Usage          Usage     `json:"usage_tokens"`
	Succeeded      bool      `json:"succeeded"`
	Error          string    `json:"error,omitempty"`
	Attempts       int       `json:"attempts"`
	Timestamp      time.Time `json:"timestamp"`
}

// IsAggregate reports whether r is a second-pass summary rather than a chunk result.
func (r AnalysisResult) IsAggregate() bool { return r.ChunkIndex == 0 }
