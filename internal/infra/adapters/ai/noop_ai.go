package ai

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/domain/ports/adapter"
)

var _ adapter.StructuredGenerator = (*NoopAIAdapter)(nil)

// noopAnswer carries an empty value for every view's top-level fields.
const noopAnswer = `{"summary":"noop","themes":[],"nodes":[],"edges":[],"recommendations":[],"contradictions":[]}`

// NoopAIAdapter implements adapter.StructuredGenerator for local/dev testing.
// It logs prompts instead of sending real AI requests.
type NoopAIAdapter struct {
	log *zerolog.Logger
}

func NewNoopAIAdapter(logger *zerolog.Logger) *NoopAIAdapter {
	return &NoopAIAdapter{log: logger}
}

func (a *NoopAIAdapter) GenerateStructured(ctx context.Context, prompt string) (json.RawMessage, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	a.log.Debug().Int("prompt_len", len(prompt)).Msg("[noop-ai] structured prompt")
	return json.RawMessage(noopAnswer), nil
}
