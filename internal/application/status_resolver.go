package application

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/adapter"
	"notes-ai-jobs/internal/domain/ports/repository"
)

// StatusSource answers "what is the state of job id" from one place.
// Implementations return domain.ErrNotFound when they have no record.
type StatusSource interface {
	Name() string
	Lookup(ctx context.Context, id string) (*model.JobState, error)
}

// QueueSource reads the live state kept by the queue backend.
type QueueSource struct {
	Queue adapter.JobQueue
}

func (s QueueSource) Name() string { return "queue" }

func (s QueueSource) Lookup(ctx context.Context, id string) (*model.JobState, error) {
	return s.Queue.Lookup(ctx, id)
}

// StoreSource reads the durable job row.
type StoreSource struct {
	Jobs repository.AIJobRepository
}

func (s StoreSource) Name() string { return "store" }

func (s StoreSource) Lookup(ctx context.Context, id string) (*model.JobState, error) {
	job, err := s.Jobs.GetJob(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	return job.State(), nil
}

// StatusResolver asks its sources in order and returns the first answer.
// Answers are never merged across sources.
type StatusResolver struct {
	sources []StatusSource
	log     *zerolog.Logger
}

func NewStatusResolver(logger *zerolog.Logger, sources ...StatusSource) *StatusResolver {
	l := logger.With().Str("component", "status_resolver").Logger()
	return &StatusResolver{sources: sources, log: &l}
}

// GetStatus returns domain.ErrNotFound only when every source reports not found.
// A source that errors is skipped; its error is returned if no later source answers.
// An unreachable queue is not a queue without the job: with no store row either,
// the job may exist or not, so the caller gets the error rather than a guessed
// "queued" or "not found".
func (r *StatusResolver) GetStatus(ctx context.Context, id string) (*model.JobState, error) {
	var lastErr error
	for _, src := range r.sources {
		st, err := src.Lookup(ctx, id)
		if err == nil {
			return st, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		r.log.Warn().Err(err).Str("source", src.Name()).Str("job_id", id).Msg("status lookup failed")
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, domain.ErrNotFound
}
