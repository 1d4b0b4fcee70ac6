package repository

import (
	"context"
	"time"

	"notes-ai-jobs/internal/domain/model"
)

// AIJobRepository is the durable Job Store.
type AIJobRepository interface {
	// CreateJob inserts a queued row. Returns domain.ErrAlreadyExists when the id is taken.
	CreateJob(ctx context.Context, tx Tx, job *model.Job) error
	// UpdateJob applies one status write. Repeating an identical terminal write is a no-op;
	// any non-monotonic transition yields domain.ErrInvalidTransition.
	UpdateJob(ctx context.Context, id string, upd model.JobUpdate) error
	GetJob(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// ListUnfinished returns queued or active jobs last touched before olderThan, oldest first.
	ListUnfinished(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error)
}
