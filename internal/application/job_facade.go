package application

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/adapter"
	"notes-ai-jobs/internal/domain/ports/repository"
	"notes-ai-jobs/internal/infra/logging"
	"notes-ai-jobs/internal/infra/metrics"
	"notes-ai-jobs/internal/infra/persist"
)

type FacadeOptions struct {
	DailyHeavyLimit int
	InflightTTL     time.Duration
	Persist         persist.Policy
	// LogInputs writes request inputs to the log unredacted (dev only).
	LogInputs bool
}

// JobOutcome is either a cached result or a handle to a queued job.
type JobOutcome struct {
	Result json.RawMessage
	JobID  string
	Shared bool // JobID belongs to an identical request already in flight
}

// Cached reports whether the outcome is served without a job.
func (o JobOutcome) Cached() bool { return o.JobID == "" }

// JobFacade is the request-time entry point for heavy views.
type JobFacade struct {
	cache    repository.ResultCache
	budget   repository.BudgetLimiter
	queue    adapter.JobQueue
	jobs     repository.AIJobRepository
	inflight repository.InflightIndex
	status   *StatusResolver
	opts     FacadeOptions
	log      *zerolog.Logger
}

func NewJobFacade(
	cache repository.ResultCache,
	budget repository.BudgetLimiter,
	queue adapter.JobQueue,
	jobs repository.AIJobRepository,
	inflight repository.InflightIndex,
	status *StatusResolver,
	opts FacadeOptions,
	logger *zerolog.Logger,
) *JobFacade {
	return &JobFacade{
		cache:    cache,
		budget:   budget,
		queue:    queue,
		jobs:     jobs,
		inflight: inflight,
		status:   status,
		opts:     opts,
		log:      logging.Component(logger, "job_facade"),
	}
}

// RequestJob serves a cached result or enqueues a new job.
// It fails with domain.ErrRateLimitExceeded when the daily budget is spent
// and with domain.ErrBudgetUnavailable when the budget cannot be checked.
func (f *JobFacade) RequestJob(ctx context.Context, userID int64, jobType model.JobType, disambiguator string) (JobOutcome, error) {
	ctx = logging.WithUserID(ctx, userID)
	ctx = logging.WithJobType(ctx, string(jobType))
	log := logging.With(ctx, f.log)
	if !jobType.UsesInput() {
		disambiguator = ""
	}
	if disambiguator != "" {
		il := log.With().Str("input", logging.Redact(disambiguator, f.opts.LogInputs)).Logger()
		log = &il
	}

	key := model.CacheKey(jobType, userID, disambiguator)

	cached, ok, err := f.cache.Get(ctx, key)
	if err != nil {
		// treated as a miss
		log.Warn().Err(err).Str("cache_key", key).Msg("result cache read failed")
	}
	if ok {
		return JobOutcome{Result: cached}, nil
	}

	if id, ok := f.liveDuplicate(ctx, log, key); ok {
		log.Info().Str("job_id", id).Msg("joined in-flight job")
		return JobOutcome{JobID: id, Shared: true}, nil
	}

	decision, err := f.budget.Consume(ctx, model.BudgetKey(userID, jobType.Category()), f.opts.DailyHeavyLimit)
	if err != nil {
		log.Error().Err(err).Msg("budget check failed")
		return JobOutcome{}, err
	}
	if !decision.Allowed {
		log.Info().Int("limit", f.opts.DailyHeavyLimit).Msg("daily heavy budget exhausted")
		return JobOutcome{}, domain.ErrRateLimitExceeded
	}

	payload := model.JobPayload{UserID: userID, CacheKey: key, Input: disambiguator}
	id, err := f.queue.Enqueue(ctx, jobType, payload)
	if err != nil {
		log.Error().Err(err).Msg("enqueue failed")
		return JobOutcome{}, err
	}
	metrics.IncAIJobEnqueued(string(jobType))
	jl := log.With().Str("job_id", id).Logger()
	log = &jl

	f.claim(ctx, log, key, id)

	err = persist.Do(ctx, f.opts.Persist, log, "job_store.create", func(ctx context.Context) error {
		cerr := f.jobs.CreateJob(ctx, repository.NoTX, model.NewJob(id, userID, jobType, key))
		if errors.Is(cerr, domain.ErrAlreadyExists) {
			return nil
		}
		return cerr
	})
	if err != nil {
		// the queue still owns the job; the worker creates the row if needed
		log.Error().Err(err).Msg("job row not created")
	}

	log.Info().Int("budget_remaining", decision.Remaining).Msg("job queued")
	return JobOutcome{JobID: id}, nil
}

// GetStatus answers a client poll.
func (f *JobFacade) GetStatus(ctx context.Context, id string) (*model.JobState, error) {
	return f.status.GetStatus(ctx, id)
}

// liveDuplicate returns the id of a non-terminal job already computing key.
// Only the queue can vouch for a job being alive: a store row left active by
// a lost queue would otherwise absorb requests until the marker expires.
// Such stale markers are dropped so the next job can claim the key.
func (f *JobFacade) liveDuplicate(ctx context.Context, log *zerolog.Logger, key string) (string, bool) {
	if f.inflight == nil {
		return "", false
	}
	id, ok, err := f.inflight.Current(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("in-flight lookup failed")
		return "", false
	}
	if !ok {
		return "", false
	}
	st, err := f.queue.Lookup(ctx, id)
	switch {
	case err == nil && !st.Status.IsTerminal():
		return id, true
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		log.Warn().Err(err).Str("job_id", id).Msg("in-flight job lookup failed")
		return "", false
	}
	if rerr := f.inflight.Release(ctx, key, id); rerr != nil {
		log.Warn().Err(rerr).Str("cache_key", key).Msg("failed to drop stale in-flight marker")
	}
	return "", false
}

func (f *JobFacade) claim(ctx context.Context, log *zerolog.Logger, key, id string) {
	if f.inflight == nil {
		return
	}
	claimed, err := f.inflight.Claim(ctx, key, id, f.opts.InflightTTL)
	if err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("in-flight claim failed")
		return
	}
	if !claimed {
		log.Debug().Str("cache_key", key).Msg("another job already claimed the key")
	}
}
