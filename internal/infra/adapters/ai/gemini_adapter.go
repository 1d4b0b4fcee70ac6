// File: .\internal\infra\adapters\ai\gemini_adapter.go
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"notes-ai-jobs/internal/domain/ports/adapter"
	"notes-ai-jobs/internal/infra/metrics"
)

var _ adapter.StructuredGenerator = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, defaultModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: modelOrDefault(defaultModel, "gemini-2.0-flash")}, nil
}

func (g *GeminiAdapter) GenerateStructured(ctx context.Context, prompt string) (json.RawMessage, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.defaultModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		metrics.ObserveAICall("gemini", g.defaultModel, 0, 0, latency, false)
		return nil, err
	}

	in, out := 0, 0
	if resp.UsageMetadata != nil {
		in = int(resp.UsageMetadata.PromptTokenCount)
		out = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	metrics.ObserveAICall("gemini", g.defaultModel, in, out, latency, true)

	text := resp.Text()
	if text == "" {
		return nil, errors.New("gemini: empty response")
	}
	doc, err := ExtractJSON(text)
	if err != nil {
		metrics.IncInvalidJSON("gemini", g.defaultModel)
	}
	return doc, err
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
