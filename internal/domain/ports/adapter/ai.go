package adapter

import (
	"context"
	"encoding/json"
)

// StructuredGenerator is the port for LLM calls that must answer with JSON.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string) (json.RawMessage, error)
}
