package ai

import (
	"context"
	"encoding/json"
	"time"

	"notes-ai-jobs/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.StructuredGenerator = (*limitedAI)(nil)

// limitedAI bounds concurrent calls and gives each one a deadline.
type limitedAI struct {
	inner   adapter.StructuredGenerator
	sem     chan struct{}
	timeout time.Duration
}

func NewLimitedAI(inner adapter.StructuredGenerator, maxConcurrent int, timeout time.Duration) adapter.StructuredGenerator {
	if maxConcurrent <= 0 && timeout <= 0 {
		return inner
	}
	l := &limitedAI{inner: inner, timeout: timeout}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

func (l *limitedAI) GenerateStructured(ctx context.Context, prompt string) (json.RawMessage, error) {
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
			defer func() { <-l.sem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.inner.GenerateStructured(ctx, prompt)
}
