// Package asynqueue backs the job queue with asynq on Redis.
package asynqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/config"
	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/adapter"
	"notes-ai-jobs/internal/infra/backoff"
	"notes-ai-jobs/internal/infra/queue"
)

const taskTypePrefix = "ai:"

type Options struct {
	Queue       string
	MaxAttempts int
	// Retention keeps completed tasks and their results inspectable.
	Retention   time.Duration
	Timeout     time.Duration
	Concurrency int
	Backoff     backoff.Exponential
}

var _ adapter.JobQueue = (*Queue)(nil)

// Queue is the producer and inspector side.
type Queue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	opts      Options
	log       *zerolog.Logger
}

// RedisOpt converts the shared Redis settings into asynq's connection option.
func RedisOpt(cfg *config.RedisConfig) (asynq.RedisConnOpt, error) {
	if strings.HasPrefix(cfg.URL, "redis://") || strings.HasPrefix(cfg.URL, "rediss://") {
		opt, err := asynq.ParseRedisURI(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{Addr: cfg.URL, Password: cfg.Password, DB: cfg.DB}, nil
}

func New(redisOpt asynq.RedisConnOpt, opts Options, logger *zerolog.Logger) *Queue {
	l := logger.With().Str("component", "asynqueue").Logger()
	return &Queue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		opts:      opts,
		log:       &l,
	}
}

func (q *Queue) Enqueue(ctx context.Context, jobType model.JobType, payload model.JobPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	task := asynq.NewTask(taskTypePrefix+string(jobType), body)
	info, err := q.client.EnqueueContext(ctx, task, q.taskOptions(queue.NewJobID())...)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (q *Queue) taskOptions(id string) []asynq.Option {
	opts := []asynq.Option{
		asynq.TaskID(id),
		asynq.Queue(q.opts.Queue),
		asynq.MaxRetry(max(q.opts.MaxAttempts-1, 0)),
	}
	if q.opts.Retention > 0 {
		opts = append(opts, asynq.Retention(q.opts.Retention))
	}
	if q.opts.Timeout > 0 {
		opts = append(opts, asynq.Timeout(q.opts.Timeout))
	}
	return opts
}

func (q *Queue) Lookup(_ context.Context, id string) (*model.JobState, error) {
	info, err := q.inspector.GetTaskInfo(q.opts.Queue, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return stateOf(info), nil
}

func (q *Queue) Close() error {
	ierr := q.inspector.Close()
	if err := q.client.Close(); err != nil {
		return err
	}
	return ierr
}

// stateOf maps asynq's task states onto the job lifecycle. A task waiting to
// be retried is still active from the caller's point of view.
func stateOf(info *asynq.TaskInfo) *model.JobState {
	switch info.State {
	case asynq.TaskStateActive, asynq.TaskStateRetry:
		return &model.JobState{Status: model.JobStatusActive}
	case asynq.TaskStateCompleted:
		st := &model.JobState{Status: model.JobStatusCompleted}
		if len(info.Result) > 0 {
			st.Result = json.RawMessage(info.Result)
		}
		return st
	case asynq.TaskStateArchived:
		return &model.JobState{Status: model.JobStatusFailed, Error: info.LastErr}
	default: // pending, scheduled, aggregating
		return &model.JobState{Status: model.JobStatusQueued}
	}
}

// persistHeadroom is added to the handler timeout so the outcome can still be
// recorded after a handler runs up to its deadline.
const persistHeadroom = 30 * time.Second

// OptionsFromConfig maps the queue and jobs settings onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Queue:       cfg.Queue.Name,
		MaxAttempts: cfg.Jobs.Attempts,
		Retention:   cfg.Queue.Retention,
		Timeout:     cfg.Jobs.HandlerTimeout + persistHeadroom,
		Concurrency: cfg.Jobs.Concurrency,
		Backoff:     backoff.NewExponential(cfg.Jobs.BackoffBase, cfg.Jobs.BackoffMax),
	}
}
