package ai

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"notes-ai-jobs/internal/domain/ports/adapter"
	"notes-ai-jobs/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.StructuredGenerator = (*OpenAIAdapter)(nil)

// OpenAIAdapter answers structured prompts through the Chat Completions API.
// A custom base URL allows OpenAI-compatible gateways.
type OpenAIAdapter struct {
	client openai.Client
	model  string
}

func NewOpenAIAdapter(apiKey, model, baseURL string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (o *OpenAIAdapter) GenerateStructured(ctx context.Context, prompt string) (json.RawMessage, error) {
	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(o.model),
	})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		metrics.ObserveAICall("openai", o.model, 0, 0, latency, false)
		return nil, err
	}
	metrics.ObserveAICall("openai", o.model, int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens), latency, true)

	for _, c := range resp.Choices {
		if c.Message.Content == "" {
			continue
		}
		out, err := ExtractJSON(c.Message.Content)
		if err != nil {
			metrics.IncInvalidJSON("openai", o.model)
		}
		return out, err
	}
	return nil, errors.New("no choice content")
}
