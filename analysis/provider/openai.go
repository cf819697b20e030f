package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1/"
	DefaultReferer = "https://github.com/theimaginaryfoundation/digest-o-bot"
	DefaultTitle   = "digest-o-bot chat analysis"
)

type Config struct {
	APIKey  string
	BaseURL string
	// Referer and Title identify the app to OpenRouter.
	Referer    string
	Title      string
	HTTPClient *http.Client
}

// ChatCompletions is an analysis.Inferencer backed by an OpenAI-compatible chat completions endpoint.
type ChatCompletions struct {
	client *openai.Client
}

var _ analysis.Inferencer = (*ChatCompletions)(nil)

func NewChatCompletions(cfg Config) (*ChatCompletions, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("NewChatCompletions: missing API key")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	referer := cfg.Referer
	if referer == "" {
		referer = DefaultReferer
	}
	title := cfg.Title
	if title == "" {
		title = DefaultTitle
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		// Retries and timeouts belong to the orchestrator.
		option.WithMaxRetries(0),
		option.WithHeader("HTTP-Referer", referer),
		option.WithHeader("X-Title", title),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	return &ChatCompletions{client: &client}, nil
}

// Infer sends the prompt as a single user message.
func (c *ChatCompletions) Infer(ctx context.Context, req analysis.Request) (analysis.Response, error) {
	if c == nil || c.client == nil {
		return analysis.Response{}, errors.New("ChatCompletions: client is nil")
	}
	if req.Model == "" {
		return analysis.Response{}, errors.New("ChatCompletions: model is empty")
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	})
	if err != nil {
		return analysis.Response{}, classify(ctx, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return analysis.Response{}, &analysis.ServiceError{Message: "response has no choices", Retryable: true, Err: analysis.ErrEmptyResponse}
	}

	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return analysis.Response{}, &analysis.ServiceError{Message: "model returned no text", Retryable: true, Err: analysis.ErrEmptyResponse}
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return analysis.Response{
		Model: model,
		Text:  text,
		Usage: analysis.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func classify(ctx context.Context, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		msg := strings.TrimSpace(apierr.Message)
		if msg == "" {
			msg = http.StatusText(apierr.StatusCode)
		}
		se := analysis.ClassifyStatus(apierr.StatusCode, msg)
		if se.Err == nil {
			se.Err = err
		}
		return se
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return &analysis.ServiceError{Message: "request timed out", Retryable: true, Err: err}
	}
	return &analysis.ServiceError{Message: "transport error", Retryable: true, Err: err}
}
