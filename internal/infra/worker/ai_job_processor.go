package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/adapter"
	"notes-ai-jobs/internal/domain/ports/repository"
	"notes-ai-jobs/internal/domain/ports/usecase"
	"notes-ai-jobs/internal/infra/logging"
	"notes-ai-jobs/internal/infra/metrics"
	"notes-ai-jobs/internal/infra/persist"
)

var _ adapter.DeliveryHandler = (*AIJobProcessor)(nil)

type ProcessorOptions struct {
	HandlerTimeout time.Duration
	CacheTTL       func(model.JobType) time.Duration
	Persist        persist.Policy
}

// AIJobProcessor runs one attempt of one job: it marks the job active, calls
// the type's handler and records the outcome in the cache and the job store.
type AIJobProcessor struct {
	jobsRepo repository.AIJobRepository
	cache    repository.ResultCache
	inflight repository.InflightIndex
	handlers usecase.JobHandlerRegistry
	opts     ProcessorOptions
	log      *zerolog.Logger
}

func NewAIJobProcessor(
	jobsRepo repository.AIJobRepository,
	cache repository.ResultCache,
	inflight repository.InflightIndex,
	handlers usecase.JobHandlerRegistry,
	opts ProcessorOptions,
	log *zerolog.Logger,
) *AIJobProcessor {
	l := log.With().Str("component", "ai_job_processor").Logger()
	return &AIJobProcessor{
		jobsRepo: jobsRepo,
		cache:    cache,
		inflight: inflight,
		handlers: handlers,
		opts:     opts,
		log:      &l,
	}
}

func (p *AIJobProcessor) Process(ctx context.Context, d adapter.Delivery) (json.RawMessage, error) {
	ctx = logging.WithJobID(ctx, d.JobID)
	ctx = logging.WithJobType(ctx, string(d.Type))
	ctx = logging.WithUserID(ctx, d.Payload.UserID)
	log := logging.With(ctx, p.log)

	finished, err := p.markActive(ctx, log, d)
	if err != nil {
		return nil, err
	}
	if finished != nil {
		// an earlier delivery already recorded the outcome
		log.Warn().Str("status", string(finished.Status)).Msg("job already finished, skipping redelivery")
		p.release(ctx, log, d)
		if finished.Status == model.JobStatusCompleted {
			return finished.Result, nil
		}
		return nil, domain.SkipRetry(errors.New(finished.Error))
	}
	log.Info().Int("attempt", d.Attempt).Int("max_attempts", d.MaxAttempts).Msg("job attempt started")

	start := time.Now()
	result, herr := p.runHandler(ctx, d)
	elapsed := time.Since(start)
	metrics.ObserveAIJobDuration(string(d.Type), elapsed.Milliseconds(), herr == nil)

	if herr == nil {
		if err := p.complete(ctx, log, d, result); err != nil {
			metrics.IncAIJobAttempt(string(d.Type), "infra")
			return nil, err
		}
		metrics.IncAIJobAttempt(string(d.Type), "success")
		metrics.IncAIJob(string(d.Type), string(model.JobStatusCompleted))
		log.Info().Int("attempt", d.Attempt).Dur("duration", elapsed).Msg("job completed")
		return result, nil
	}

	if !d.Final() && !errors.Is(herr, domain.ErrSkipRetry) {
		metrics.IncAIJobAttempt(string(d.Type), "retry")
		log.Warn().Err(herr).Int("attempt", d.Attempt).Int("max_attempts", d.MaxAttempts).Msg("job attempt failed")
		return nil, herr
	}

	if err := p.fail(ctx, log, d, herr); err != nil {
		metrics.IncAIJobAttempt(string(d.Type), "infra")
		return nil, err
	}
	metrics.IncAIJobAttempt(string(d.Type), "exhausted")
	metrics.IncAIJob(string(d.Type), string(model.JobStatusFailed))
	log.Error().Err(herr).Int("attempts", d.Attempt).Msg("job failed terminally")
	return nil, herr
}

// markActive records the attempt. A missing row means the facade never got
// to write it, so the worker creates it. A row that is already terminal is
// returned as finished and not run again.
func (p *AIJobProcessor) markActive(ctx context.Context, log *zerolog.Logger, d adapter.Delivery) (*model.Job, error) {
	upd := model.JobUpdate{Status: model.JobStatusActive, Attempt: d.Attempt}
	err := persist.Do(ctx, p.opts.Persist, log, "job_store.mark_active", func(ctx context.Context) error {
		err := p.jobsRepo.UpdateJob(ctx, d.JobID, upd)
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		job := model.NewJob(d.JobID, d.Payload.UserID, d.Type, d.Payload.CacheKey)
		if cerr := p.jobsRepo.CreateJob(ctx, nil, job); cerr != nil && !errors.Is(cerr, domain.ErrAlreadyExists) {
			return cerr
		}
		return p.jobsRepo.UpdateJob(ctx, d.JobID, upd)
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		return nil, err
	}

	var job *model.Job
	err = persist.Do(ctx, p.opts.Persist, log, "job_store.get", func(ctx context.Context) error {
		var gerr error
		job, gerr = p.jobsRepo.GetJob(ctx, nil, d.JobID)
		return gerr
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (p *AIJobProcessor) runHandler(ctx context.Context, d adapter.Delivery) (result json.RawMessage, err error) {
	h, err := p.handlers.Resolve(d.Type)
	if err != nil {
		return nil, domain.SkipRetry(err)
	}
	if p.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.HandlerTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()

	result, err = h.Handle(ctx, d.Payload.UserID, d.Payload.Input)
	if err != nil {
		return nil, err
	}
	if !json.Valid(result) {
		return nil, domain.ErrInvalidLLMJSON
	}
	return result, nil
}

// complete writes the cache first so a poll that sees "completed" in the store
// can always be served from the cache as well.
func (p *AIJobProcessor) complete(ctx context.Context, log *zerolog.Logger, d adapter.Delivery, result json.RawMessage) error {
	err := persist.Do(ctx, p.opts.Persist, log, "cache.set", func(ctx context.Context) error {
		return p.cache.Set(ctx, d.Payload.CacheKey, result, p.opts.CacheTTL(d.Type))
	})
	if err != nil {
		return err
	}
	err = persist.Do(ctx, p.opts.Persist, log, "job_store.complete", func(ctx context.Context) error {
		return p.jobsRepo.UpdateJob(ctx, d.JobID, model.JobUpdate{Status: model.JobStatusCompleted, Result: result, Attempt: d.Attempt})
	})
	if err != nil {
		return err
	}
	p.release(ctx, log, d)
	return nil
}

func (p *AIJobProcessor) fail(ctx context.Context, log *zerolog.Logger, d adapter.Delivery, cause error) error {
	err := persist.Do(ctx, p.opts.Persist, log, "job_store.fail", func(ctx context.Context) error {
		return p.jobsRepo.UpdateJob(ctx, d.JobID, model.JobUpdate{Status: model.JobStatusFailed, Error: cause.Error(), Attempt: d.Attempt})
	})
	if err != nil {
		return err
	}
	p.release(ctx, log, d)
	return nil
}

func (p *AIJobProcessor) release(ctx context.Context, log *zerolog.Logger, d adapter.Delivery) {
	if p.inflight == nil {
		return
	}
	if err := p.inflight.Release(ctx, d.Payload.CacheKey, d.JobID); err != nil {
		// the marker expires on its own
		log.Warn().Err(err).Msg("failed to release in-flight marker")
	}
}
