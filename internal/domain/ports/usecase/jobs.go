package usecase

import (
	"context"
	"encoding/json"

	"notes-ai-jobs/internal/domain/model"
)

// JobHandler computes one heavy view for one user. It is invoked once per attempt.
type JobHandler interface {
	Handle(ctx context.Context, userID int64, input string) (json.RawMessage, error)
}

type JobHandlerFunc func(ctx context.Context, userID int64, input string) (json.RawMessage, error)

func (f JobHandlerFunc) Handle(ctx context.Context, userID int64, input string) (json.RawMessage, error) {
	return f(ctx, userID, input)
}

// JobHandlerRegistry resolves the handler bound to a job type.
type JobHandlerRegistry interface {
	Resolve(t model.JobType) (JobHandler, error)
}
